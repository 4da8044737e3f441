// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package params

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/ratectl"
)

// Picture carries the per-frame fields the image state is built from.
type Picture struct {
	Codec     hw.Codec
	FrameType hw.FrameType

	// Width and Height are the aligned frame size in pixels.
	Width  int
	Height int

	// QP is on the AVC scale for both codecs; VP9 maps it through
	// Tables.VP9QIndex.
	QP    int
	MinQP int
	MaxQP int

	// BRC enables the frame-size report masks and bounds.
	BRC           bool
	MaxFrameBytes uint32
	MinFrameBytes uint32

	// Zones holds the ROI QP deltas, zone 0 being the background.
	// NumROI > 0 enables stream-in (AVC) or segmentation (VP9).
	Zones  [hw.MaxROI + 1]int
	NumROI int

	Transform8x8 bool
	CABAC        bool
	Log2TileCols int
}

// WidthInMBs returns the width in 16-pixel macroblocks.
func (p *Picture) WidthInMBs() int { return hw.Blocks(p.Width, 16) }

// HeightInMBs returns the height in 16-pixel macroblocks.
func (p *Picture) HeightInMBs() int { return hw.Blocks(p.Height, 16) }

// ImageStateSize returns the byte size of the image state of codec.
func ImageStateSize(codec hw.Codec) int {
	if codec == hw.CodecVP9 {
		return VP9ImageStateSize
	}
	return AVCImageStateSize
}

// WriteImageState serializes the image-state commands of p into dst and
// returns the number of bytes written.
func WriteImageState(dst []byte, p *Picture, t *Tables) (int, error) {
	n := ImageStateSize(p.Codec)
	if len(dst) < n {
		return 0, fmt.Errorf("params: image state needs %d bytes, have %d", n, len(dst))
	}
	clear(dst[:n])
	switch p.Codec {
	case hw.CodecAVC:
		writeAVCImgState(dst[:AVCImgStateLen*4], p)
		writeVDEncImgState(dst[AVCImgStateLen*4:n], p, t)
	case hw.CodecVP9:
		writeVP9PicState(dst[:n], p, t)
	default:
		return 0, fmt.Errorf("params: image state for %s", p.Codec)
	}
	return n, nil
}

func writeAVCImgState(b []byte, p *Picture) {
	s := &AVCImgState
	setHeader(s.Header, b, mi.MFXAVCImgState, AVCImgStateLen)

	w, h := p.WidthInMBs(), p.HeightInMBs()
	s.FrameSize.SetInt(b, w*h)
	s.WidthMinus1.SetInt(b, w-1)
	s.HeightMinus1.SetInt(b, h-1)
	s.CABAC.SetBool(b, p.CABAC)
	s.Transform8x8.SetBool(b, p.Transform8x8)
	s.MinReportMask.SetBool(b, p.BRC)
	s.MaxReportMask.SetBool(b, p.BRC)
	s.FrameBitrate.Set(b, p.MaxFrameBytes, p.MinFrameBytes)
	s.SliceQP.SetInt(b, p.QP)
	s.MinQP.SetInt(b, p.MinQP)
	s.MaxQP.SetInt(b, p.MaxQP)
}

func writeVDEncImgState(b []byte, p *Picture, t *Tables) {
	s := &VDEncImgState
	setHeader(s.Header, b, mi.VDEncImgState, VDEncImgStateLen)

	s.PictureType.Set(b, uint32(p.FrameType))
	s.Transform8x8.SetBool(b, p.Transform8x8)
	s.WidthMinus1.SetInt(b, p.WidthInMBs()-1)
	s.HeightMinus1.SetInt(b, p.HeightInMBs()-1)
	for i, z := range p.Zones {
		s.ROIZone[i].SetInt(b, ClampROIDelta(z))
	}
	s.ROIEnable.SetBool(b, p.NumROI > 0)
	s.StreamInEnable.SetBool(b, p.NumROI > 0)

	var row [CostEntrySize]byte
	t.WriteCostEntry(row[:], p.QP)
	applyCostEntry(b, row[:], p.QP)
}

func writeVP9PicState(b []byte, p *Picture, t *Tables) {
	s := &VP9PicState
	setHeader(s.Header, b, mi.HCPVP9PicState, VP9PicStateLen)

	s.WidthMinus1.SetInt(b, p.Width-1)
	s.HeightMinus1.SetInt(b, p.Height-1)
	s.InterFrame.SetBool(b, p.FrameType != hw.FrameI)
	s.SegmentationEnabled.SetBool(b, p.NumROI > 0)
	s.SegmentationUpdateMap.SetBool(b, p.NumROI > 0)
	s.Log2TileCols.SetInt(b, p.Log2TileCols)
	s.BaseQIndex.SetInt(b, t.VP9QIndexFor(p.QP))
	s.FilterLevel.SetInt(b, vp9FilterLevel(t.VP9QIndexFor(p.QP)))
	s.FrameBitrate.Set(b, p.MaxFrameBytes, p.MinFrameBytes)
	s.QIndexMin.SetInt(b, t.VP9QIndexFor(p.MinQP))
	s.QIndexMax.SetInt(b, t.VP9QIndexFor(p.MaxQP))
}

// vp9FilterLevel picks a loop-filter level from the base qindex.
func vp9FilterLevel(qindex int) int {
	return min(63, qindex*10/64)
}

// applyCostEntry copies one const-buffer cost row into a VDENC_IMG_STATE.
func applyCostEntry(b, row []byte, qp int) {
	s := &VDEncImgState
	for i := range NumModeCosts {
		s.ModeCost.At(i).Set(b, CostEntry.Mode.At(i).Get(row))
	}
	for i := range NumMVCosts {
		s.MVCost.At(i).Set(b, CostEntry.MV.At(i).Get(row))
	}
	s.CostQP.SetInt(b, qp)
}

// SetImageQP rewrites the quantizer of an image state built by
// WriteImageState. For AVC the VDEnc costs are reloaded from constData.
func SetImageQP(b []byte, codec hw.Codec, qp int, constData []byte) {
	qp = clampQP(qp)
	switch codec {
	case hw.CodecAVC:
		AVCImgState.SliceQP.SetInt(b, qp)
		row := constData[qp*CostEntrySize : (qp+1)*CostEntrySize]
		applyCostEntry(b[AVCImgStateLen*4:], row, qp)
	case hw.CodecVP9:
		qindex := int(constData[NumQP*CostEntrySize+qp])
		VP9PicState.BaseQIndex.SetInt(b, qindex)
		VP9PicState.FilterLevel.SetInt(b, vp9FilterLevel(qindex))
	}
}

// ImageQP returns the quantizer of an image state: the AVC slice QP or
// the VP9 base qindex.
func ImageQP(b []byte, codec hw.Codec) int {
	if codec == hw.CodecVP9 {
		return VP9PicState.BaseQIndex.GetInt(b)
	}
	return AVCImgState.SliceQP.GetInt(b)
}

// SetImageFrameBounds rewrites the frame-size bounds of an image state.
func SetImageFrameBounds(b []byte, codec hw.Codec, maxBytes, minBytes uint32) {
	frameBitrate(codec).Set(b, maxBytes, minBytes)
}

// ImageFrameBounds returns the frame-size bounds of an image state in bytes.
func ImageFrameBounds(b []byte, codec hw.Codec) (maxBytes, minBytes uint32) {
	return frameBitrate(codec).Limits(b)
}

func frameBitrate(codec hw.Codec) FrameBitrateFields {
	if codec == hw.CodecVP9 {
		return VP9PicState.FrameBitrate
	}
	return AVCImgState.FrameBitrate
}

// ImageZones returns the ROI zone deltas of an AVC image state.
func ImageZones(b []byte) [hw.MaxROI + 1]int {
	var z [hw.MaxROI + 1]int
	v := b[AVCImgStateLen*4:]
	for i := range z {
		z[i] = VDEncImgState.ROIZone[i].GetInt(v)
	}
	return z
}

// FrameSizeBounds returns the per-frame size window for a target in bits.
// The maximum is the overshoot percentage of the target, capped by
// maxFrameBytes when set; CBR mirrors it below the target for the minimum.
func FrameSizeBounds(mode hw.RateControlMode, targetBits uint64, overshootPct uint8, maxFrameBytes uint32) (maxBytes, minBytes uint32) {
	if !mode.BRC() {
		return 0, 0
	}
	target := targetBits / 8
	hi := target * uint64(overshootPct) / 100
	if maxFrameBytes > 0 {
		hi = min(hi, uint64(maxFrameBytes))
	}
	var lo uint64
	if mode == hw.RateControlCBR && overshootPct <= 200 {
		lo = target * (200 - uint64(overshootPct)) / 100
	}
	//nolint:gosec // G115: frame sizes fit 32 bits
	return uint32(min(hi, 0xFFFFFFFF)), uint32(min(lo, 0xFFFFFFFF))
}

// WriteCostEntry serializes the 4.4 cost row of qp into dst.
func (t *Tables) WriteCostEntry(dst []byte, qp int) {
	qp = clampQP(qp)
	for i, v := range t.ModeCost[qp] {
		CostEntry.Mode.At(i).Set(dst, uint32(ratectl.Map44(v, t.ModeCostMax)))
	}
	for i, v := range t.MVCost[qp] {
		CostEntry.MV.At(i).Set(dst, uint32(ratectl.Map44(v, t.MVCostMax)))
	}
}

// WriteConstData serializes the firmware constant buffer into dst: one
// cost row per QP followed by the VP9 qindex map.
func (t *Tables) WriteConstData(dst []byte) error {
	if len(dst) < ConstDataSize {
		return fmt.Errorf("params: const data needs %d bytes, have %d", ConstDataSize, len(dst))
	}
	for qp := range NumQP {
		t.WriteCostEntry(dst[qp*CostEntrySize:], qp)
	}
	copy(dst[NumQP*CostEntrySize:], t.VP9QIndex[:])
	return nil
}

// Slice is one slice (AVC) or tile column (VP9) of a frame.
type Slice struct {
	Type       hw.FrameType
	FirstBlock int
	NumBlocks  int
	QP         int
	NumRefsL0  int
	Index      int
	Last       bool
}

// WriteSliceState serializes s as a slice or tile state command of op.
func WriteSliceState(dst []byte, op mi.Opcode, s Slice) {
	l := &SliceState
	clear(dst[:l.Size()])
	setHeader(l.Header, dst, op, SliceStateLen)
	l.SliceType.Set(dst, uint32(s.Type))
	l.NumRefsL0.SetInt(dst, s.NumRefsL0)
	l.FirstBlock.SetInt(dst, s.FirstBlock)
	l.NextFirst.SetInt(dst, s.FirstBlock+s.NumBlocks)
	l.SliceQP.SetInt(dst, s.QP)
	l.LastSlice.SetBool(dst, s.Last)
	l.Index.SetInt(dst, s.Index)
}

// WriteVP9SegmentState serializes the state of segment id.
func WriteVP9SegmentState(dst []byte, id, qindexDelta int) {
	l := &VP9SegmentState
	clear(dst[:l.Size()])
	setHeader(l.Header, dst, mi.HCPVP9SegmentState, VP9SegmentStateLen)
	l.SegmentID.SetInt(dst, id)
	l.QIndexDelta.SetInt(dst, qindexDelta)
}

// WriteWalkerState serializes a walker command covering n blocks from first.
func WriteWalkerState(dst []byte, first, n int) {
	l := &WalkerState
	clear(dst[:l.Size()])
	setHeader(l.Header, dst, mi.VDEncWalkerState, WalkerStateLen)
	l.FirstBlock.SetInt(dst, first)
	l.NumBlocks.SetInt(dst, n)
}

// Words converts a serialized command to dwords.
func Words(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}
