// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/resource"
)

// Row-store slots. AVC uses the first three, VP9 all of them.
const (
	RowStoreDeblock = iota
	RowStoreIntra
	RowStoreBSDMPC
	RowStoreMetadata
	RowStoreHVDLine
	NumRowStores
)

// Resources are the session buffers a pass references. Zero handles are
// emitted as null addresses.
type Resources struct {
	Source   resource.Handle // NV12 input picture
	Scaled   resource.Handle // 4x downscaled luma of Source
	Recon    resource.Handle
	Refs     []resource.Handle // list 0, most recent first
	RefsDS   []resource.Handle // 4x downscaled Refs
	RowStore [NumRowStores]resource.Handle

	MVTemporal resource.Handle
	Coded      resource.Handle
	CodedSize  int
	StreamIn   resource.Handle // AVC ROI stream-in or VP9 segment map
	Stats      resource.Handle // VDEnc statistics stream-out

	History    resource.Handle
	InitDMEM   resource.Handle
	UpdateDMEM []resource.Handle // one per pass
	HuCStatus  resource.Handle
	PAKStatus  resource.Handle // one slot per pass
	ImageInput resource.Handle // host-built image state read by the firmware
	ImageBatch []resource.Handle // second-level image state written by the firmware, one per pass
	ConstData  resource.Handle
}

// Frame is everything the sequencer needs to emit the passes of one frame.
type Frame struct {
	Codec hw.Codec
	Type  hw.FrameType

	// Width and Height are the block-aligned frame size in pixels.
	Width  int
	Height int
	// Pitch is the NV12 luma row pitch in bytes.
	Pitch int

	QP int

	// BRC runs the firmware before the image state, which is then taken
	// from the firmware-written second-level batch of the pass.
	BRC bool
	// FirmwareInit runs the BRC init/reset function before the first update.
	FirmwareInit bool

	// ImageState is the serialized inline image state used without BRC.
	ImageState []byte

	Slices []params.Slice

	// WeightedPred enables explicit weighted prediction for P slices.
	WeightedPred bool

	NumROI int
	// SegmentQIndex holds the VP9 qindex delta of each segment.
	SegmentQIndex [hw.MaxROI + 1]int

	// Headers are packed header bytes inserted before the first slice.
	Headers [][]byte
	// SliceHeaders are packed per-slice header bytes, indexed like Slices.
	SliceHeaders [][]byte

	Res Resources
}

// Blocks returns the frame size in blocks of blockSize pixels.
func (f *Frame) Blocks(blockSize int) (w, h int) {
	return hw.Blocks(f.Width, blockSize), hw.Blocks(f.Height, blockSize)
}
