// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"fmt"

	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/resource"
)

// Surface errors.
var (
	// ErrInvalidSize is returned for surfaces with a non-positive dimension.
	ErrInvalidSize = errors.New("surface: invalid size")

	// ErrFormat is returned when an operation gets a surface of the wrong
	// format.
	ErrFormat = errors.New("surface: wrong format")
)

// PitchAlign is the row alignment of NV12 surfaces in bytes.
const PitchAlign = 64

// Format is the pixel layout of a surface.
type Format uint8

const (
	// FormatNV12 is a luma plane followed by an interleaved CbCr plane at
	// half resolution.
	FormatNV12 Format = iota
	// FormatY8 is a single luma plane.
	FormatY8
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatNV12:
		return "NV12"
	case FormatY8:
		return "Y8"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// Surface is a picture stored in a registry buffer.
type Surface struct {
	Handle resource.Handle
	Format Format
	Width  int
	Height int
	// Pitch is the luma row stride in bytes. The chroma plane of NV12
	// uses the same stride.
	Pitch int
}

// Size returns the buffer size of a surface with the given layout.
func Size(format Format, pitch, height int) int {
	if format == FormatNV12 {
		h := hw.AlignUp(height, 2)
		return pitch*h + pitch*h/2
	}
	return pitch * height
}

// New allocates an NV12 surface of width by height pixels.
func New(reg *resource.Registry, width, height int, label string) (Surface, error) {
	if width <= 0 || height <= 0 {
		return Surface{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	s := Surface{Format: FormatNV12, Width: width, Height: height, Pitch: hw.AlignUp(width, PitchAlign)}
	return s, s.alloc(reg, label)
}

// NewScaled allocates the Y8 surface that holds the 4x downscaled luma of
// src. Its pitch is a quarter of the pitch of src.
func NewScaled(reg *resource.Registry, src Surface, label string) (Surface, error) {
	s := Surface{Format: FormatY8, Width: src.Width / 4, Height: src.Height / 4, Pitch: src.Pitch / 4}
	if s.Width <= 0 || s.Height <= 0 {
		return Surface{}, fmt.Errorf("%w: %dx%d downscaled from %dx%d",
			ErrInvalidSize, s.Width, s.Height, src.Width, src.Height)
	}
	return s, s.alloc(reg, label)
}

func (s *Surface) alloc(reg *resource.Registry, label string) error {
	h, err := reg.Allocate(Size(s.Format, s.Pitch, s.Height), resource.KindSurface, label)
	if err != nil {
		return err
	}
	s.Handle = h
	return nil
}

// IsZero reports whether the surface was never allocated.
func (s Surface) IsZero() bool { return s.Handle.IsZero() }

// Valid reports whether the surface is allocated in reg and its buffer
// holds the layout.
func (s Surface) Valid(reg *resource.Registry) bool {
	return !s.IsZero() && reg.Valid(s.Handle) && reg.Size(s.Handle) >= Size(s.Format, s.Pitch, s.Height)
}

// Free releases the surface buffer. Freeing a zero surface does nothing.
func (s *Surface) Free(reg *resource.Registry) {
	reg.Free(s.Handle)
	s.Handle = resource.Handle{}
}
