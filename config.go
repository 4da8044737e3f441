// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwenc

import (
	"fmt"

	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/ratectl"
)

// Default configuration values.
const (
	DefaultQP      = 26
	DefaultFPSNum  = 30
	DefaultFPSDen  = 1
	DefaultGOPSize = 30
)

// Config holds the per-session encode parameters. Zero fields take the
// documented defaults.
type Config struct {
	// Codec defaults to CodecAVC.
	Codec Codec
	// Generation defaults to Gen10.
	Generation Generation

	// Width and Height are the picture size in pixels. The encoded size
	// is aligned up to the block size of the codec.
	Width  int
	Height int

	// RateControl is RateControlNone when zero: every frame is coded at
	// FrameParams.QP, falling back to QP.
	RateControl RateControlMode

	// QP is the quantizer of CQP frames and the fallback of NONE frames.
	// Default DefaultQP.
	QP int
	// InitialQP is the QP of the first BRC frame. Zero estimates it from
	// the frame size, bitrate and buffer size.
	InitialQP int
	// MinQP and MaxQP bound the quantizer. Zero selects the hardware range.
	MinQP int
	MaxQP int

	// TargetBitrate and MaxBitrate are in bits per second. MaxBitrate
	// defaults to TargetBitrate.
	TargetBitrate uint64
	MaxBitrate    uint64
	// VBVBits is the decoder buffer size. Default one second of
	// TargetBitrate.
	VBVBits uint64
	// InitialFullness is the buffer fullness the first frame targets.
	// Default half of VBVBits.
	InitialFullness uint64

	// FPSNum/FPSDen is the frame rate. Default 30/1.
	FPSNum uint32
	FPSDen uint32

	// GOPSize is the intra period in frames. Default DefaultGOPSize.
	GOPSize int

	// MaxPasses is the BRC pass budget. Zero selects the hardware default.
	MaxPasses int
	// MaxFrameBytes caps the size of one frame. Zero disables the cap.
	MaxFrameBytes uint32

	// Slices is the number of AVC slices or VP9 tile columns. Default 1.
	Slices int
	// NumRefs is the number of references a P frame predicts from.
	// Default 1.
	NumRefs int
}

// withDefaults returns a copy with zero fields set to their defaults.
func (c Config) withDefaults() Config {
	if c.Codec == 0 {
		c.Codec = CodecAVC
	}
	if c.Generation == 0 {
		c.Generation = Gen10
	}
	if c.QP == 0 {
		c.QP = DefaultQP
	}
	caps, ok := hw.LookupCaps(c.Codec, c.Generation)
	if ok {
		if c.MinQP == 0 {
			c.MinQP = caps.MinQP
		}
		if c.MaxQP == 0 {
			c.MaxQP = caps.MaxQP
		}
	}
	if c.FPSNum == 0 {
		c.FPSNum = DefaultFPSNum
	}
	if c.FPSDen == 0 {
		c.FPSDen = DefaultFPSDen
	}
	if c.MaxBitrate == 0 {
		c.MaxBitrate = c.TargetBitrate
	}
	if c.VBVBits == 0 {
		c.VBVBits = c.TargetBitrate
	}
	if c.InitialFullness == 0 {
		c.InitialFullness = c.VBVBits / 2
	}
	if c.GOPSize == 0 {
		c.GOPSize = DefaultGOPSize
	}
	if c.Slices == 0 {
		c.Slices = 1
	}
	if c.NumRefs == 0 {
		c.NumRefs = 1
	}
	return c
}

// Validate reports configuration errors after defaults are applied.
// Codec and generation combinations the hardware lacks yield
// ErrUnsupported; everything else ErrInvalidConfig.
func (c Config) Validate() error {
	c = c.withDefaults()
	caps, ok := hw.LookupCaps(c.Codec, c.Generation)
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrUnsupported, c.Codec, c.Generation)
	}
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.Width > caps.MaxWidth || c.Height > caps.MaxHeight:
		return fmt.Errorf("%w: size %dx%d, at most %dx%d",
			ErrUnsupported, c.Width, c.Height, caps.MaxWidth, caps.MaxHeight)
	case c.RateControl > RateControlCQP:
		return fmt.Errorf("%w: rate control %s", ErrInvalidConfig, c.RateControl)
	case c.RateControl.BRC() && !caps.HuC:
		return fmt.Errorf("%w: %s needs the BRC firmware", ErrUnsupported, c.RateControl)
	case c.RateControl.BRC() && c.TargetBitrate == 0:
		return fmt.Errorf("%w: %s without a target bitrate", ErrInvalidConfig, c.RateControl)
	case c.MaxBitrate < c.TargetBitrate:
		return fmt.Errorf("%w: max bitrate %d below target %d", ErrInvalidConfig, c.MaxBitrate, c.TargetBitrate)
	case c.InitialFullness > c.VBVBits:
		return fmt.Errorf("%w: initial fullness %d exceeds VBV size %d", ErrInvalidConfig, c.InitialFullness, c.VBVBits)
	case c.MinQP < caps.MinQP || c.MaxQP > caps.MaxQP || c.MinQP > c.MaxQP:
		return fmt.Errorf("%w: QP range [%d, %d] outside [%d, %d]",
			ErrInvalidConfig, c.MinQP, c.MaxQP, caps.MinQP, caps.MaxQP)
	case c.QP < c.MinQP || c.QP > c.MaxQP:
		return fmt.Errorf("%w: QP %d outside [%d, %d]", ErrInvalidConfig, c.QP, c.MinQP, c.MaxQP)
	case c.InitialQP != 0 && (c.InitialQP < c.MinQP || c.InitialQP > c.MaxQP):
		return fmt.Errorf("%w: initial QP %d outside [%d, %d]", ErrInvalidConfig, c.InitialQP, c.MinQP, c.MaxQP)
	case c.MaxPasses < 0 || c.MaxPasses > caps.MaxPasses:
		return fmt.Errorf("%w: %d passes, at most %d", ErrUnsupported, c.MaxPasses, caps.MaxPasses)
	case c.Slices < 1 || c.Slices > min(caps.MaxSlices, c.sliceUnits(caps)):
		return fmt.Errorf("%w: %d slices", ErrUnsupported, c.Slices)
	case c.NumRefs < 1 || c.NumRefs > caps.MaxRefs:
		return fmt.Errorf("%w: %d references, at most %d", ErrUnsupported, c.NumRefs, caps.MaxRefs)
	case c.GOPSize < 1:
		return fmt.Errorf("%w: GOP size %d", ErrInvalidConfig, c.GOPSize)
	}
	return nil
}

// sliceUnits returns how many slices the picture can be split into: one
// per macroblock row for AVC, one per super-block column for VP9.
func (c Config) sliceUnits(caps hw.Caps) int {
	if c.Codec == CodecVP9 {
		return hw.Blocks(c.Width, caps.BlockSize)
	}
	return hw.Blocks(c.Height, caps.BlockSize)
}

// rateParams returns the rate-control targets of c.
func (c Config) rateParams() ratectl.Params {
	return ratectl.Params{
		TargetBitrate:   c.TargetBitrate,
		VBVBits:         c.VBVBits,
		InitialFullness: c.InitialFullness,
		FPSNum:          c.FPSNum,
		FPSDen:          c.FPSDen,
	}
}

// passBudget returns the number of passes a frame runs.
func (c Config) passBudget(caps hw.Caps) int {
	return ratectl.PassCount(c.RateControl, c.MaxPasses, caps.DefaultPasses, caps.MaxPasses)
}
