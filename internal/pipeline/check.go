// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/hwenc/internal/hw"
)

// Sequencer errors.
var (
	// ErrUnsupported is returned when a frame needs something the hardware
	// generation cannot do. Nothing is emitted.
	ErrUnsupported = errors.New("pipeline: unsupported")

	// ErrInvalidFrame is returned for frames whose slices do not tile the
	// picture or whose resources are missing.
	ErrInvalidFrame = errors.New("pipeline: invalid frame")
)

// Check verifies that f can be encoded on caps. It runs before any command
// is emitted.
func Check(caps hw.Caps, f *Frame) error {
	if f.Codec != caps.Codec {
		return fmt.Errorf("%w: %s frame on %s sequencer", ErrUnsupported, f.Codec, caps.Codec)
	}
	if f.Type == hw.FrameB && !caps.BSlices {
		return fmt.Errorf("%w: B slices on %s %s", ErrUnsupported, caps.Codec, caps.Generation)
	}
	if f.Type == hw.FrameI && len(f.Res.Refs) > 0 {
		return fmt.Errorf("%w: intra frame with %d references", ErrInvalidFrame, len(f.Res.Refs))
	}
	if f.Type != hw.FrameI && len(f.Res.Refs) == 0 {
		return fmt.Errorf("%w: %s frame without references", ErrInvalidFrame, f.Type)
	}
	if len(f.Res.Refs) > caps.MaxRefs {
		return fmt.Errorf("%w: %d references, at most %d", ErrUnsupported, len(f.Res.Refs), caps.MaxRefs)
	}
	if f.NumROI > hw.MaxROI {
		return fmt.Errorf("%w: %d regions of interest, at most %d", ErrUnsupported, f.NumROI, hw.MaxROI)
	}
	if f.Width <= 0 || f.Height <= 0 || f.Width > caps.MaxWidth || f.Height > caps.MaxHeight {
		return fmt.Errorf("%w: frame %dx%d, at most %dx%d",
			ErrUnsupported, f.Width, f.Height, caps.MaxWidth, caps.MaxHeight)
	}
	if f.Width%caps.BlockSize != 0 || f.Height%caps.BlockSize != 0 {
		return fmt.Errorf("%w: frame %dx%d not aligned to %d", ErrInvalidFrame, f.Width, f.Height, caps.BlockSize)
	}
	if f.BRC && !caps.HuC {
		return fmt.Errorf("%w: BRC without firmware on %s", ErrUnsupported, caps.Generation)
	}
	if len(f.Slices) == 0 || len(f.Slices) > caps.MaxSlices {
		return fmt.Errorf("%w: %d slices, between 1 and %d", ErrUnsupported, len(f.Slices), caps.MaxSlices)
	}
	return checkSlices(caps, f)
}

func checkSlices(caps hw.Caps, f *Frame) error {
	w, h := f.Blocks(caps.BlockSize)
	total := w * h
	if f.Codec == hw.CodecVP9 {
		total = w // tile columns are counted in super-block columns
	}
	next := 0
	for i, s := range f.Slices {
		if s.FirstBlock != next || s.NumBlocks <= 0 {
			return fmt.Errorf("%w: slice %d starts at %d, want %d", ErrInvalidFrame, i, s.FirstBlock, next)
		}
		if s.Type == hw.FrameB && !caps.BSlices {
			return fmt.Errorf("%w: B slice %d on %s", ErrUnsupported, i, caps.Generation)
		}
		next += s.NumBlocks
	}
	if next != total {
		return fmt.Errorf("%w: slices cover %d of %d blocks", ErrInvalidFrame, next, total)
	}
	if f.BRC {
		r := &f.Res
		if r.History.IsZero() || r.HuCStatus.IsZero() || r.ImageInput.IsZero() || r.ConstData.IsZero() {
			return fmt.Errorf("%w: BRC resources missing", ErrInvalidFrame)
		}
	}
	if f.Res.Coded.IsZero() || f.Res.PAKStatus.IsZero() {
		return fmt.Errorf("%w: coded or status buffer missing", ErrInvalidFrame)
	}
	return nil
}
