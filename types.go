// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwenc

import (
	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/pipeline"
)

// Codec identifies the bitstream format.
type Codec = hw.Codec

// Supported codecs.
const (
	CodecAVC = hw.CodecAVC
	CodecVP9 = hw.CodecVP9
)

// Generation identifies the hardware generation of the video engine.
type Generation = hw.Generation

// Supported hardware generations.
const (
	Gen9  = hw.Gen9
	Gen10 = hw.Gen10
	Gen11 = hw.Gen11
)

// RateControlMode selects how the quantizer is chosen.
type RateControlMode = hw.RateControlMode

// Rate-control modes. CBR and VBR run the firmware bitrate controller over
// multiple passes; NONE and CQP encode a single pass at a fixed QP.
const (
	RateControlNone = hw.RateControlNone
	RateControlCBR  = hw.RateControlCBR
	RateControlVBR  = hw.RateControlVBR
	RateControlCQP  = hw.RateControlCQP
)

// FrameType is the codec-neutral picture type.
type FrameType = hw.FrameType

// Frame types.
const (
	FrameI = hw.FrameI
	FrameP = hw.FrameP
	FrameB = hw.FrameB
)

// Caps describes what one codec on one hardware generation can do.
type Caps = hw.Caps

// LookupCaps returns the capabilities for codec on gen.
func LookupCaps(codec Codec, gen Generation) (Caps, bool) {
	return hw.LookupCaps(codec, gen)
}

// ROI is a region of interest: a rectangle in pixels with a QP adjustment
// clamped to [-8, 7].
type ROI = params.ROI

// MaxROI is the number of regions of interest a frame may carry.
const MaxROI = hw.MaxROI

// Tables is the constant data handed to the parameter builder and the
// firmware.
type Tables = params.Tables

// DefaultTables returns the tables the firmware is tuned with.
func DefaultTables() Tables { return params.DefaultTables() }

// State is one state of the per-pass command sequence.
type State = pipeline.State

// Trace lists the states one pass visited, in emission order.
type Trace = pipeline.Trace

// Sequence states reported in FrameResult.Traces.
const (
	StateConditionalEnd = pipeline.StateConditionalEnd
	StatePipeSelect     = pipeline.StatePipeSelect
	StateFirmware       = pipeline.StateFirmware
	StateImage          = pipeline.StateImage
	StateSlice          = pipeline.StateSlice
	StateFlush          = pipeline.StateFlush
)
