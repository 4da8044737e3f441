// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdbuf

import (
	"errors"
	"testing"

	"github.com/gogpu/hwenc/resource"
)

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

func TestBufferBracket(t *testing.T) {
	b := New("test", 16)

	if err := b.Begin(3); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	b.Emit(1, 2)
	b.Emit(3)
	b.Advance()

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	want := []uint32{1, 2, 3}
	for i, w := range b.Words() {
		if w != want[i] {
			t.Errorf("word %d = %d, want %d", i, w, want[i])
		}
	}
}

func TestBufferFull(t *testing.T) {
	b := New("small", 4)
	if err := b.Begin(3); err != nil {
		t.Fatal(err)
	}
	b.Emit(0, 0, 0)
	b.Advance()

	err := b.Begin(2)
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Begin error = %v, want ErrBufferFull", err)
	}
	// A failed Begin leaves no open bracket.
	if err := b.Begin(1); err != nil {
		t.Fatalf("Begin(1) after full: %v", err)
	}
	b.Emit(9)
	b.Advance()
}

func TestBufferProgrammingErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(b *Buffer)
	}{
		{"short bracket", func(b *Buffer) {
			_ = b.Begin(2)
			b.Emit(1)
			b.Advance()
		}},
		{"overrun", func(b *Buffer) {
			_ = b.Begin(1)
			b.Emit(1, 2)
		}},
		{"nested begin", func(b *Buffer) {
			_ = b.Begin(2)
			_ = b.Begin(1)
		}},
		{"emit outside bracket", func(b *Buffer) {
			b.Emit(1)
		}},
		{"advance without begin", func(b *Buffer) {
			b.Advance()
		}},
		{"address overrun", func(b *Buffer) {
			_ = b.Begin(1)
			b.EmitAddress(resource.Handle{}, false, 0)
		}},
		{"begin after resolve", func(b *Buffer) {
			_ = b.Resolve(func(resource.Handle) uint64 { return 0 })
			_ = b.Begin(1)
		}},
		{"zero-word begin", func(b *Buffer) {
			_ = b.Begin(0)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.name, 16)
			mustPanic(t, tt.name, func() { tt.fn(b) })
		})
	}
}

func TestBufferRelocations(t *testing.T) {
	reg := resource.NewRegistry(nil)
	status, _ := reg.Allocate(64, resource.KindStatus, "status")
	dmem, _ := reg.Allocate(128, resource.KindDMEM, "dmem")

	b := New("relocs", 32)
	if err := b.Begin(7); err != nil {
		t.Fatal(err)
	}
	b.Emit(0xDEAD)
	b.EmitAddress(status, true, 8)
	b.EmitAddress(resource.Handle{}, false, 0) // optional buffer
	b.EmitAddress(dmem, false, 0)
	b.Advance()

	relocs := b.Relocations()
	if len(relocs) != 2 {
		t.Fatalf("len(Relocations()) = %d, want 2", len(relocs))
	}
	if relocs[0].Index != 1 || relocs[0].Target != status || !relocs[0].Writable || relocs[0].Offset != 8 {
		t.Errorf("reloc[0] = %+v", relocs[0])
	}
	if relocs[1].Index != 5 || relocs[1].Target != dmem || relocs[1].Writable {
		t.Errorf("reloc[1] = %+v", relocs[1])
	}

	if err := b.Resolve(reg.Address); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !b.Resolved() {
		t.Error("Resolved() = false")
	}

	w := b.Words()
	got := uint64(w[1]) | uint64(w[2])<<32
	if want := reg.Address(status) + 8; got != want {
		t.Errorf("status address = %#x, want %#x", got, want)
	}
	if w[3] != 0 || w[4] != 0 {
		t.Errorf("null address = %#x %#x, want 0 0", w[3], w[4])
	}
	got = uint64(w[5]) | uint64(w[6])<<32
	if want := reg.Address(dmem); got != want {
		t.Errorf("dmem address = %#x, want %#x", got, want)
	}
}

func TestBufferResolveFreed(t *testing.T) {
	reg := resource.NewRegistry(nil)
	h, _ := reg.Allocate(64, resource.KindScratch, "gone")

	b := New("stale", 8)
	_ = b.Begin(2)
	b.EmitAddress(h, false, 0)
	b.Advance()
	reg.Free(h)

	if err := b.Resolve(reg.Address); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("Resolve error = %v, want ErrUnresolved", err)
	}
	if b.Resolved() {
		t.Error("Resolved() = true after failure")
	}
}

func TestBufferReset(t *testing.T) {
	b := New("reset", 0)
	_ = b.Begin(2)
	b.EmitAddress(resource.Handle{}, false, 0)
	b.Advance()
	_ = b.Resolve(func(resource.Handle) uint64 { return 1 })

	b.Reset()
	if b.Len() != 0 || len(b.Relocations()) != 0 || b.Resolved() {
		t.Errorf("after Reset: Len=%d relocs=%d resolved=%v", b.Len(), len(b.Relocations()), b.Resolved())
	}
	if err := b.Begin(1); err != nil {
		t.Errorf("Begin after Reset: %v", err)
	}
	b.Emit(0)
	b.Advance()
}

func BenchmarkBufferEmit(b *testing.B) {
	buf := New("bench", 1<<20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		for range 1000 {
			_ = buf.Begin(4)
			buf.Emit(1, 2, 3, 4)
			buf.Advance()
		}
	}
}
