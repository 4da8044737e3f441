// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"fmt"

	"github.com/gogpu/hwenc/resource"
)

// ErrInvalidReference is returned by Validate for a reference that is not
// allocated or aliases the picture being reconstructed.
var ErrInvalidReference = errors.New("surface: invalid reference")

// Reference is one reconstructed picture kept for prediction.
type Reference struct {
	Picture Surface
	// Scaled is the 4x downscaled luma of Picture.
	Scaled Surface
	// FrameNum is the number of the frame that produced Picture.
	FrameNum uint32
}

// ReferenceSet holds up to a fixed number of references, most recent
// first.
type ReferenceSet struct {
	max  int
	refs []Reference
}

// NewReferenceSet returns an empty set that keeps at most n references.
func NewReferenceSet(n int) *ReferenceSet {
	return &ReferenceSet{max: max(0, n), refs: make([]Reference, 0, max(0, n))}
}

// Max returns the capacity of the set.
func (s *ReferenceSet) Max() int { return s.max }

// Len returns the number of references held.
func (s *ReferenceSet) Len() int { return len(s.refs) }

// Promote makes r the most recent reference. When the set is full the
// oldest reference is evicted and returned so its surfaces can be reused.
func (s *ReferenceSet) Promote(r Reference) (evicted Reference, ok bool) {
	if s.max == 0 {
		return r, true
	}
	if len(s.refs) == s.max {
		evicted, ok = s.refs[len(s.refs)-1], true
		s.refs = s.refs[:len(s.refs)-1]
	}
	s.refs = append(s.refs, Reference{})
	copy(s.refs[1:], s.refs)
	s.refs[0] = r
	return evicted, ok
}

// Active returns the n most recent references.
func (s *ReferenceSet) Active(n int) []Reference {
	return s.refs[:max(0, min(n, len(s.refs)))]
}

// Handles returns the picture and downscaled handles of the n most recent
// references, in the order the sequencer programs them.
func (s *ReferenceSet) Handles(n int) (pics, scaled []resource.Handle) {
	for _, r := range s.Active(n) {
		pics = append(pics, r.Picture.Handle)
		scaled = append(scaled, r.Scaled.Handle)
	}
	return pics, scaled
}

// Contains reports whether h is the picture or downscaled surface of a
// reference.
func (s *ReferenceSet) Contains(h resource.Handle) bool {
	for _, r := range s.refs {
		if r.Picture.Handle == h || r.Scaled.Handle == h {
			return true
		}
	}
	return false
}

// Validate checks that every reference is allocated in reg and none of
// them is recon, the picture about to be reconstructed.
func (s *ReferenceSet) Validate(reg *resource.Registry, recon resource.Handle) error {
	for i, r := range s.refs {
		switch {
		case !r.Picture.Valid(reg):
			return fmt.Errorf("%w: reference %d (frame %d) is not allocated", ErrInvalidReference, i, r.FrameNum)
		case !r.Scaled.IsZero() && !r.Scaled.Valid(reg):
			return fmt.Errorf("%w: downscaled reference %d (frame %d) is not allocated", ErrInvalidReference, i, r.FrameNum)
		case !recon.IsZero() && r.Picture.Handle == recon:
			return fmt.Errorf("%w: reference %d (frame %d) is the reconstructed picture", ErrInvalidReference, i, r.FrameNum)
		}
	}
	return nil
}

// Clear empties the set and returns the references it held.
func (s *ReferenceSet) Clear() []Reference {
	out := s.refs
	s.refs = make([]Reference, 0, s.max)
	return out
}
