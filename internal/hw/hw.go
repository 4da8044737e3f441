// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package hw holds the enumerations shared by the encoder packages and the
// per-codec, per-generation capability table.
package hw

import "fmt"

// Codec identifies the bitstream format the fixed-function pipeline produces.
type Codec uint8

const (
	// CodecAVC is H.264 on the MFX/VDEnc pipe (16x16 macroblocks).
	CodecAVC Codec = iota + 1
	// CodecVP9 is VP9 on the HCP/VDEnc pipe (64x64 super-blocks).
	CodecVP9
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecAVC:
		return "AVC"
	case CodecVP9:
		return "VP9"
	default:
		return fmt.Sprintf("Codec(%d)", int(c))
	}
}

// Generation identifies the hardware generation of the video engine.
type Generation uint8

const (
	Gen9 Generation = iota + 9
	Gen10
	Gen11
)

// String returns the generation name.
func (g Generation) String() string {
	switch g {
	case Gen9, Gen10, Gen11:
		return fmt.Sprintf("Gen%d", int(g))
	default:
		return fmt.Sprintf("Generation(%d)", int(g))
	}
}

// RateControlMode selects how the quantizer is chosen.
type RateControlMode uint8

const (
	// RateControlNone encodes every frame at the host-provided QP.
	RateControlNone RateControlMode = iota
	// RateControlCBR is constant bitrate with HuC BRC.
	RateControlCBR
	// RateControlVBR is variable bitrate with HuC BRC.
	RateControlVBR
	// RateControlCQP is constant QP.
	RateControlCQP
)

// String returns the mode name.
func (m RateControlMode) String() string {
	switch m {
	case RateControlNone:
		return "NONE"
	case RateControlCBR:
		return "CBR"
	case RateControlVBR:
		return "VBR"
	case RateControlCQP:
		return "CQP"
	default:
		return fmt.Sprintf("RateControlMode(%d)", int(m))
	}
}

// BRC reports whether the mode runs the firmware bitrate controller.
func (m RateControlMode) BRC() bool {
	return m == RateControlCBR || m == RateControlVBR
}

// FrameType is the codec-neutral picture type.
type FrameType uint8

const (
	// FrameI is an AVC I/IDR picture or a VP9 key frame.
	FrameI FrameType = iota
	// FrameP is an AVC P picture or a VP9 inter frame.
	FrameP
	// FrameB is an AVC B picture.
	FrameB
)

// String returns "I", "P" or "B".
func (t FrameType) String() string {
	switch t {
	case FrameI:
		return "I"
	case FrameP:
		return "P"
	case FrameB:
		return "B"
	default:
		return fmt.Sprintf("FrameType(%d)", int(t))
	}
}

// FirmwareCode is the frame-type encoding used by the BRC firmware
// (I = 2, P = 0, B = 1).
func (t FrameType) FirmwareCode() uint8 {
	switch t {
	case FrameI:
		return 2
	case FrameB:
		return 1
	default:
		return 0
	}
}

// MaxROI is the number of region-of-interest zones the image state carries
// besides the background zone.
const MaxROI = 3

// ROI QP-delta range of the 4-bit signed zone adjustment fields.
const (
	MinROIDelta = -8
	MaxROIDelta = 7
)

// AlignUp rounds v up to a multiple of a (a power of two or any positive value).
func AlignUp(v, a int) int {
	if a <= 0 {
		return v
	}
	return (v + a - 1) / a * a
}

// Blocks returns the number of a-sized blocks that cover v pixels.
func Blocks(v, a int) int {
	return AlignUp(v, a) / a
}
