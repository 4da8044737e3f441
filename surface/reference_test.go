// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"testing"

	"github.com/gogpu/hwenc/resource"
)

func newReference(t *testing.T, reg *resource.Registry, frame uint32) Reference {
	t.Helper()
	pic := newSurface(t, reg, 64, 64)
	ds, err := NewScaled(reg, pic, "scaled")
	if err != nil {
		t.Fatal(err)
	}
	return Reference{Picture: pic, Scaled: ds, FrameNum: frame}
}

func TestReferenceSetPromote(t *testing.T) {
	reg := resource.NewRegistry(nil)
	set := NewReferenceSet(2)
	r0, r1, r2 := newReference(t, reg, 0), newReference(t, reg, 1), newReference(t, reg, 2)

	if _, ok := set.Promote(r0); ok {
		t.Error("Promote into empty set evicted")
	}
	if _, ok := set.Promote(r1); ok {
		t.Error("Promote into non-full set evicted")
	}
	ev, ok := set.Promote(r2)
	if !ok || ev.FrameNum != 0 {
		t.Errorf("Promote into full set evicted %+v (%v), want frame 0", ev, ok)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}
	active := set.Active(3)
	if len(active) != 2 || active[0].FrameNum != 2 || active[1].FrameNum != 1 {
		t.Errorf("Active(3) frames = %v, want [2 1]", frames(active))
	}
	pics, ds := set.Handles(1)
	if len(pics) != 1 || pics[0] != r2.Picture.Handle || ds[0] != r2.Scaled.Handle {
		t.Errorf("Handles(1) = %v %v, want the most recent reference", pics, ds)
	}
	if !set.Contains(r1.Scaled.Handle) || set.Contains(r0.Picture.Handle) {
		t.Error("Contains does not follow eviction")
	}
	if got := set.Clear(); len(got) != 2 || set.Len() != 0 {
		t.Errorf("Clear() returned %d references, Len() = %d", len(got), set.Len())
	}
}

func TestReferenceSetZeroCapacity(t *testing.T) {
	reg := resource.NewRegistry(nil)
	set := NewReferenceSet(0)
	r := newReference(t, reg, 7)
	ev, ok := set.Promote(r)
	if !ok || ev.FrameNum != 7 || set.Len() != 0 {
		t.Errorf("Promote into zero set = %+v, %v; Len %d", ev, ok, set.Len())
	}
}

func TestReferenceSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(reg *resource.Registry, refs []Reference) resource.Handle
		wantErr error
	}{
		{
			name: "valid",
			mutate: func(reg *resource.Registry, refs []Reference) resource.Handle {
				return resource.Handle{}
			},
		},
		{
			name: "freed picture",
			mutate: func(reg *resource.Registry, refs []Reference) resource.Handle {
				reg.Free(refs[1].Picture.Handle)
				return resource.Handle{}
			},
			wantErr: ErrInvalidReference,
		},
		{
			name: "freed downscaled",
			mutate: func(reg *resource.Registry, refs []Reference) resource.Handle {
				reg.Free(refs[0].Scaled.Handle)
				return resource.Handle{}
			},
			wantErr: ErrInvalidReference,
		},
		{
			name: "reference is recon",
			mutate: func(reg *resource.Registry, refs []Reference) resource.Handle {
				return refs[0].Picture.Handle
			},
			wantErr: ErrInvalidReference,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := resource.NewRegistry(nil)
			set := NewReferenceSet(3)
			refs := []Reference{newReference(t, reg, 0), newReference(t, reg, 1)}
			for _, r := range refs {
				set.Promote(r)
			}
			recon := tt.mutate(reg, refs)
			if err := set.Validate(reg, recon); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func frames(refs []Reference) []uint32 {
	out := make([]uint32, len(refs))
	for i, r := range refs {
		out[i] = r.FrameNum
	}
	return out
}
