// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Kind classifies a GPU-visible buffer by what the encoder stores in it.
type Kind uint8

const (
	// KindScratch is untyped scratch memory.
	KindScratch Kind = iota
	// KindHistory is the BRC history buffer the firmware carries across frames.
	KindHistory
	// KindDMEM is a firmware data-memory parameter block.
	KindDMEM
	// KindStatus holds status words written by the GPU and read by the host.
	KindStatus
	// KindImageState holds an image-state payload consumed by the firmware.
	KindImageState
	// KindBatch is a second-level batch buffer.
	KindBatch
	// KindRowStore is a per-row scratch store sized from the frame width.
	KindRowStore
	// KindSurface is picture memory (NV12 or a downscaled plane).
	KindSurface
	// KindCoded is the output bitstream buffer with its status segment.
	KindCoded
	// KindStats is a PAK or VDEnc statistics buffer.
	KindStats
	// KindStreamIn is the per-macroblock ROI stream-in map.
	KindStreamIn
	// KindSegmentMap is the per-block VP9 segmentation map.
	KindSegmentMap
	// KindConst is read-only constant data uploaded once.
	KindConst
)

var kindNames = [...]string{
	KindScratch:    "Scratch",
	KindHistory:    "History",
	KindDMEM:       "DMEM",
	KindStatus:     "Status",
	KindImageState: "ImageState",
	KindBatch:      "Batch",
	KindRowStore:   "RowStore",
	KindSurface:    "Surface",
	KindCoded:      "Coded",
	KindStats:      "Stats",
	KindStreamIn:   "StreamIn",
	KindSegmentMap: "SegmentMap",
	KindConst:      "Const",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Usage returns the buffer usage flags a device mirror of this kind needs.
// Host-written kinds are copy destinations; GPU-written kinds must also be
// readable back to the host.
func (k Kind) Usage() gputypes.BufferUsage {
	switch k {
	case KindDMEM, KindConst, KindStreamIn, KindSegmentMap, KindImageState:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	case KindStatus, KindCoded, KindStats, KindHistory:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	case KindBatch:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	default:
		return gputypes.BufferUsageStorage
	}
}

// HostWritten reports whether the host fills this kind before submission.
func (k Kind) HostWritten() bool {
	switch k {
	case KindDMEM, KindConst, KindStreamIn, KindSegmentMap, KindImageState, KindSurface, KindStatus:
		return true
	}
	return false
}
