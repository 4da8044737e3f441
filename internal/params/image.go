// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package params

import (
	"github.com/gogpu/hwenc/internal/layout"
	"github.com/gogpu/hwenc/internal/mi"
)

// Command lengths in dwords, header included.
const (
	AVCImgStateLen     = 16
	VDEncImgStateLen   = 16
	VP9PicStateLen     = 12
	VP9SegmentStateLen = 8
	SliceStateLen      = 8
	WalkerStateLen     = 3
)

// Image-state payload sizes in bytes. The AVC image state is the MFX and
// VDEnc commands back to back.
const (
	AVCImageStateSize = (AVCImgStateLen + VDEncImgStateLen) * 4
	VP9ImageStateSize = VP9PicStateLen * 4
)

// ImageBatchSize is the size of a second-level image-state batch: the
// largest image state plus MI_BATCH_BUFFER_END, rounded to 64 bytes.
const ImageBatchSize = 192

// Frame size report units of the frame bitrate fields.
const (
	frameBitrateUnitSmall = 32
	frameBitrateUnitLarge = 4096
	frameBitrateFieldMax  = 0x3FFF
)

// FrameBitrateFields are the frame-size bounds the PAK checks each pass.
// Exceeding Max sets the overflow status bit; staying under Min sets the
// underflow bit. A zero bound disables its check.
type FrameBitrateFields struct {
	Max         layout.Field
	MaxUnitMode layout.Field
	MaxUnit     layout.Field
	Min         layout.Field
	MinUnitMode layout.Field
	MinUnit     layout.Field
	MaxDelta    layout.Field
	MinDelta    layout.Field
}

func addFrameBitrate(b *layout.Builder, dw int) FrameBitrateFields {
	return FrameBitrateFields{
		Max:         b.Add(layout.Bits("FrameBitrateMax", layout.DW(dw), 0, 14)),
		MaxUnitMode: b.Add(layout.Flag("FrameBitrateMaxUnitMode", layout.DW(dw), 14)),
		MaxUnit:     b.Add(layout.Flag("FrameBitrateMaxUnit", layout.DW(dw), 15)),
		Min:         b.Add(layout.Bits("FrameBitrateMin", layout.DW(dw), 16, 14)),
		MinUnitMode: b.Add(layout.Flag("FrameBitrateMinUnitMode", layout.DW(dw), 30)),
		MinUnit:     b.Add(layout.Flag("FrameBitrateMinUnit", layout.DW(dw), 31)),
		MaxDelta:    b.Add(layout.Bits("FrameBitrateMaxDelta", layout.DW(dw+1), 0, 15)),
		MinDelta:    b.Add(layout.Bits("FrameBitrateMinDelta", layout.DW(dw+1), 16, 15)),
	}
}

func encodeFrameBytes(n uint32, roundUp bool) (field uint32, large bool) {
	unit := uint32(frameBitrateUnitSmall)
	if n/unit > frameBitrateFieldMax {
		unit = frameBitrateUnitLarge
		large = true
	}
	field = n / unit
	if roundUp && n%unit != 0 {
		field++
	}
	return min(field, frameBitrateFieldMax), large
}

// Set stores the bounds in bytes. The maximum rounds up and the minimum
// rounds down to the report unit.
func (f FrameBitrateFields) Set(b []byte, maxBytes, minBytes uint32) {
	v, large := encodeFrameBytes(maxBytes, true)
	f.Max.Set(b, v)
	f.MaxUnitMode.SetBool(b, true)
	f.MaxUnit.SetBool(b, large)

	v, large = encodeFrameBytes(minBytes, false)
	f.Min.Set(b, v)
	f.MinUnitMode.SetBool(b, true)
	f.MinUnit.SetBool(b, large)
}

// Limits returns the bounds in bytes.
func (f FrameBitrateFields) Limits(b []byte) (maxBytes, minBytes uint32) {
	unit := func(large bool) uint32 {
		if large {
			return frameBitrateUnitLarge
		}
		return frameBitrateUnitSmall
	}
	maxBytes = f.Max.Get(b) * unit(f.MaxUnit.Bool(b))
	minBytes = f.Min.Get(b) * unit(f.MinUnit.Bool(b))
	return maxBytes, minBytes
}

// AVCImgStateLayout is MFX_AVC_IMG_STATE.
type AVCImgStateLayout struct {
	*layout.Layout

	Header            layout.Field
	FrameSize         layout.Field
	WidthMinus1       layout.Field
	HeightMinus1      layout.Field
	ImageStructure    layout.Field
	WeightedBipredIdc layout.Field
	WeightedPred      layout.Field
	CABAC             layout.Field
	Transform8x8      layout.Field
	MinReportMask     layout.Field
	MaxReportMask     layout.Field
	FrameBitrate      FrameBitrateFields
	SliceQP           layout.Field
	MinQP             layout.Field
	MaxQP             layout.Field
}

// AVCImgState is the MFX_AVC_IMG_STATE wire format.
var AVCImgState = func() AVCImgStateLayout {
	var b layout.Builder
	d := AVCImgStateLayout{
		Header:            b.Add(layout.U32("Header", 0)),
		FrameSize:         b.Add(layout.Bits("FrameSize", layout.DW(1), 0, 16)),
		WidthMinus1:       b.Add(layout.Bits("FrameWidthInMBsMinus1", layout.DW(2), 0, 16)),
		HeightMinus1:      b.Add(layout.Bits("FrameHeightInMBsMinus1", layout.DW(2), 16, 16)),
		ImageStructure:    b.Add(layout.Bits("ImageStructure", layout.DW(3), 8, 2)),
		WeightedBipredIdc: b.Add(layout.Bits("WeightedBipredIdc", layout.DW(3), 10, 2)),
		WeightedPred:      b.Add(layout.Flag("WeightedPredFlag", layout.DW(3), 12)),
		CABAC:             b.Add(layout.Flag("EntropyCodingCABAC", layout.DW(4), 7)),
		Transform8x8:      b.Add(layout.Flag("Transform8x8", layout.DW(4), 10)),
		MinReportMask:     b.Add(layout.Flag("FrameBitrateMinReportMask", layout.DW(5), 0)),
		MaxReportMask:     b.Add(layout.Flag("FrameBitrateMaxReportMask", layout.DW(5), 1)),
		FrameBitrate:      addFrameBitrate(&b, 10),
		SliceQP:           b.Add(layout.Bits("SliceQP", layout.DW(12), 0, 8)),
		MinQP:             b.Add(layout.Bits("MinQP", layout.DW(12), 8, 8)),
		MaxQP:             b.Add(layout.Bits("MaxQP", layout.DW(12), 16, 8)),
	}
	d.Layout = b.Build("MFX_AVC_IMG_STATE", AVCImgStateLen*4)
	return d
}()

// VDEncImgStateLayout is VDENC_IMG_STATE.
type VDEncImgStateLayout struct {
	*layout.Layout

	Header         layout.Field
	PictureType    layout.Field
	Transform8x8   layout.Field
	WidthMinus1    layout.Field
	HeightMinus1   layout.Field
	ModeCost       layout.Array
	MVCost         layout.Array
	ROIZone        [4]layout.Field
	ROIEnable      layout.Field
	StreamInEnable layout.Field
	CostQP         layout.Field
}

// VDEncImgState is the VDENC_IMG_STATE wire format.
var VDEncImgState = func() VDEncImgStateLayout {
	var b layout.Builder
	d := VDEncImgStateLayout{
		Header:       b.Add(layout.U32("Header", 0)),
		PictureType:  b.Add(layout.Bits("PictureType", layout.DW(1), 0, 2)),
		Transform8x8: b.Add(layout.Flag("Transform8x8", layout.DW(1), 4)),
		WidthMinus1:  b.Add(layout.Bits("FrameWidthInMBsMinus1", layout.DW(3), 0, 16)),
		HeightMinus1: b.Add(layout.Bits("FrameHeightInMBsMinus1", layout.DW(3), 16, 16)),
		ModeCost:     b.AddArray(layout.ArrayOf(layout.U8("ModeCost", layout.DW(4)), NumModeCosts)),
		MVCost:       b.AddArray(layout.ArrayOf(layout.U8("MVCost", layout.DW(6)), NumMVCosts)),
	}
	for i := range d.ROIZone {
		//nolint:gosec // G115: i < 4
		d.ROIZone[i] = b.Add(layout.SBits(zoneName(i), layout.DW(8), uint(4*i), 4))
	}
	d.ROIEnable = b.Add(layout.Flag("ROIEnable", layout.DW(8), 16))
	d.StreamInEnable = b.Add(layout.Flag("StreamInEnable", layout.DW(8), 17))
	d.CostQP = b.Add(layout.Bits("CostQP", layout.DW(9), 0, 8))
	d.Layout = b.Build("VDENC_IMG_STATE", VDEncImgStateLen*4)
	return d
}()

func zoneName(i int) string {
	return [...]string{"ROIQPAdjZone0", "ROIQPAdjZone1", "ROIQPAdjZone2", "ROIQPAdjZone3"}[i]
}

// VP9PicStateLayout is HCP_VP9_PIC_STATE.
type VP9PicStateLayout struct {
	*layout.Layout

	Header                     layout.Field
	WidthMinus1                layout.Field
	HeightMinus1               layout.Field
	InterFrame                 layout.Field
	IntraOnly                  layout.Field
	HiPrecisionMV              layout.Field
	SegmentationEnabled        layout.Field
	SegmentationUpdateMap      layout.Field
	SegmentationTemporalUpdate layout.Field
	Lossless                   layout.Field
	Log2TileCols               layout.Field
	Log2TileRows               layout.Field
	BaseQIndex                 layout.Field
	FilterLevel                layout.Field
	Sharpness                  layout.Field
	FrameBitrate               FrameBitrateFields
	QIndexMin                  layout.Field
	QIndexMax                  layout.Field
}

// VP9PicState is the HCP_VP9_PIC_STATE wire format.
var VP9PicState = func() VP9PicStateLayout {
	var b layout.Builder
	d := VP9PicStateLayout{
		Header:                     b.Add(layout.U32("Header", 0)),
		WidthMinus1:                b.Add(layout.Bits("FrameWidthInPixelsMinus1", layout.DW(1), 0, 14)),
		HeightMinus1:               b.Add(layout.Bits("FrameHeightInPixelsMinus1", layout.DW(1), 16, 14)),
		InterFrame:                 b.Add(layout.Flag("FrameType", layout.DW(2), 0)),
		IntraOnly:                  b.Add(layout.Flag("IntraOnly", layout.DW(2), 2)),
		HiPrecisionMV:              b.Add(layout.Flag("AllowHiPrecisionMV", layout.DW(2), 3)),
		SegmentationEnabled:        b.Add(layout.Flag("SegmentationEnabled", layout.DW(2), 8)),
		SegmentationUpdateMap:      b.Add(layout.Flag("SegmentationUpdateMap", layout.DW(2), 9)),
		SegmentationTemporalUpdate: b.Add(layout.Flag("SegmentationTemporalUpdate", layout.DW(2), 10)),
		Lossless:                   b.Add(layout.Flag("LosslessMode", layout.DW(2), 12)),
		Log2TileCols:               b.Add(layout.Bits("Log2TileColumns", layout.DW(3), 0, 4)),
		Log2TileRows:               b.Add(layout.Bits("Log2TileRows", layout.DW(3), 8, 2)),
		BaseQIndex:                 b.Add(layout.Bits("BaseQIndex", layout.DW(4), 0, 8)),
		FilterLevel:                b.Add(layout.Bits("FilterLevel", layout.DW(4), 8, 6)),
		Sharpness:                  b.Add(layout.Bits("SharpnessLevel", layout.DW(4), 16, 3)),
		FrameBitrate:               addFrameBitrate(&b, 5),
		QIndexMin:                  b.Add(layout.Bits("QIndexMin", layout.DW(7), 0, 8)),
		QIndexMax:                  b.Add(layout.Bits("QIndexMax", layout.DW(7), 8, 8)),
	}
	d.Layout = b.Build("HCP_VP9_PIC_STATE", VP9PicStateLen*4)
	return d
}()

// VP9SegmentStateLayout is HCP_VP9_SEGMENT_STATE.
type VP9SegmentStateLayout struct {
	*layout.Layout

	Header           layout.Field
	SegmentID        layout.Field
	Skipped          layout.Field
	Reference        layout.Field
	ReferenceEnabled layout.Field
	QIndexDelta      layout.Field
	LFLevelDelta     layout.Field
}

// VP9SegmentState is the HCP_VP9_SEGMENT_STATE wire format.
var VP9SegmentState = func() VP9SegmentStateLayout {
	var b layout.Builder
	d := VP9SegmentStateLayout{
		Header:           b.Add(layout.U32("Header", 0)),
		SegmentID:        b.Add(layout.Bits("SegmentID", layout.DW(1), 0, 3)),
		Skipped:          b.Add(layout.Flag("SegmentSkipped", layout.DW(2), 0)),
		Reference:        b.Add(layout.Bits("SegmentReference", layout.DW(2), 1, 2)),
		ReferenceEnabled: b.Add(layout.Flag("SegmentReferenceEnabled", layout.DW(2), 3)),
		QIndexDelta:      b.Add(layout.SBits("QIndexDelta", layout.DW(3), 0, 9)),
		LFLevelDelta:     b.Add(layout.SBits("LFLevelDelta", layout.DW(3), 16, 7)),
	}
	d.Layout = b.Build("HCP_VP9_SEGMENT_STATE", VP9SegmentStateLen*4)
	return d
}()

// SliceStateLayout is MFX_AVC_SLICE_STATE; VP9 uses the same payload in
// HCP_TILE_CODING with tile columns in super-block units.
type SliceStateLayout struct {
	*layout.Layout

	Header     layout.Field
	SliceType  layout.Field
	NumRefsL0  layout.Field
	FirstBlock layout.Field
	NextFirst  layout.Field
	SliceQP    layout.Field
	LastSlice  layout.Field
	Index      layout.Field
}

// SliceState is the slice/tile state wire format.
var SliceState = func() SliceStateLayout {
	var b layout.Builder
	d := SliceStateLayout{
		Header:     b.Add(layout.U32("Header", 0)),
		SliceType:  b.Add(layout.Bits("SliceType", layout.DW(1), 0, 4)),
		NumRefsL0:  b.Add(layout.Bits("NumRefIdxL0", layout.DW(1), 16, 6)),
		FirstBlock: b.Add(layout.Bits("FirstBlock", layout.DW(2), 0, 16)),
		NextFirst:  b.Add(layout.Bits("NextSliceFirstBlock", layout.DW(2), 16, 16)),
		SliceQP:    b.Add(layout.Bits("SliceQP", layout.DW(3), 0, 8)),
		LastSlice:  b.Add(layout.Flag("LastSlice", layout.DW(3), 16)),
		Index:      b.Add(layout.Bits("SliceIndex", layout.DW(4), 0, 16)),
	}
	d.Layout = b.Build("SLICE_STATE", SliceStateLen*4)
	return d
}()

// InsertObjectLayout is the fixed part of MFX_INSERT_OBJECT and
// HCP_PAK_INSERT_OBJECT. Header bytes follow in the payload dwords.
type InsertObjectLayout struct {
	*layout.Layout

	Header       layout.Field
	BitsInLastDW layout.Field
	LastHeader   layout.Field
	EndOfSlice   layout.Field
}

// InsertObject is the insert-object wire format.
var InsertObject = func() InsertObjectLayout {
	var b layout.Builder
	d := InsertObjectLayout{
		Header:       b.Add(layout.U32("Header", 0)),
		BitsInLastDW: b.Add(layout.Bits("DataBitsInLastDW", layout.DW(1), 0, 6)),
		LastHeader:   b.Add(layout.Flag("LastHeader", layout.DW(1), 16)),
		EndOfSlice:   b.Add(layout.Flag("EndOfSlice", layout.DW(1), 17)),
	}
	d.Layout = b.Build("INSERT_OBJECT", 8)
	return d
}()

// WalkerStateLayout is VDENC_WALKER_STATE.
type WalkerStateLayout struct {
	*layout.Layout

	Header     layout.Field
	FirstBlock layout.Field
	NumBlocks  layout.Field
}

// WalkerState is the walker wire format.
var WalkerState = func() WalkerStateLayout {
	var b layout.Builder
	d := WalkerStateLayout{
		Header:     b.Add(layout.U32("Header", 0)),
		FirstBlock: b.Add(layout.U32("FirstBlock", layout.DW(1))),
		NumBlocks:  b.Add(layout.U32("NumBlocks", layout.DW(2))),
	}
	d.Layout = b.Build("VDENC_WALKER_STATE", WalkerStateLen*4)
	return d
}()

// setHeader stores the command header of op into the first dword of b.
func setHeader(f layout.Field, b []byte, op mi.Opcode, n int) {
	f.Set(b, op.Header(n))
}
