// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package params

import (
	"github.com/gogpu/hwenc/internal/layout"
)

// Sizes of the firmware-visible structures.
const (
	DMEMSize          = 0x80
	HistorySize       = 0x300
	PAKStatusSlotSize = 0x20
	HuCStatusSize     = 0x10
	CodedStatusSize   = 0x1000
	CostEntrySize     = 0x10
	StreamInEntrySize = 4
	FrameStatsSize    = 0x40
)

// ConstDataSize is the size of the firmware constant buffer: one cost
// entry per QP followed by the VP9 qindex map.
const ConstDataSize = NumQP*CostEntrySize + NumQP

// BRC firmware function codes of the init DMEM.
const (
	BRCFuncInit  = 0
	BRCFuncReset = 2
)

// Firmware rate-control mode codes.
const (
	FirmwareModeCBR = 1
	FirmwareModeVBR = 2
	FirmwareModeCQP = 3
)

// Firmware codec codes.
const (
	FirmwareCodecAVC = 1
	FirmwareCodecVP9 = 2
)

// HistoryMagic marks a history buffer written by the init function.
const HistoryMagic = 0x3143_5242 // "BRC1"

// InitDMEMLayout is the parameter block of the BRC init/reset function.
// Rates are bits per second, buffer sizes bits, frame sizes bytes.
type InitDMEMLayout struct {
	*layout.Layout

	BRCFunc             layout.Field
	OSEnabled           layout.Field
	Codec               layout.Field
	Mode                layout.Field
	BRCFlag             layout.Field
	InitBufferFullness  layout.Field
	BufferSize          layout.Field
	TargetBitrate       layout.Field
	MaxRate             layout.Field
	MinRate             layout.Field
	FrameRateM          layout.Field
	FrameRateD          layout.Field
	MaxFrameBytes       layout.Field
	GopP                layout.Field
	GopB                layout.Field
	FrameWidth          layout.Field
	FrameHeight         layout.Field
	MinQP               layout.Field
	MaxQP               layout.Field
	InitialQP           layout.Field
	MaxPasses           layout.Field
	OvershootCBRPct     layout.Field
	SlidingWindowSize   layout.Field
	SceneChangeIntraPct layout.Field
	DevThreshPB         layout.Array
	DevThreshVBR        layout.Array
	DevThreshI          layout.Array
	InstRateThreshP     layout.Array
	InstRateThreshB     layout.Array
	InstRateThreshI     layout.Array
	InputBitsPerFrame   layout.Field
}

// InitDMEM is the init/reset DMEM wire format.
var InitDMEM = func() InitDMEMLayout {
	var b layout.Builder
	d := InitDMEMLayout{
		BRCFunc:             b.Add(layout.U8("BRCFunc", 0x00)),
		OSEnabled:           b.Add(layout.U8("OSEnabled", 0x01)),
		Codec:               b.Add(layout.U8("Codec", 0x02)),
		Mode:                b.Add(layout.U8("Mode", 0x03)),
		BRCFlag:             b.Add(layout.U32("BRCFlag", 0x04)),
		InitBufferFullness:  b.Add(layout.U32("InitBufferFullness", 0x08)),
		BufferSize:          b.Add(layout.U32("BufferSize", 0x0C)),
		TargetBitrate:       b.Add(layout.U32("TargetBitrate", 0x10)),
		MaxRate:             b.Add(layout.U32("MaxRate", 0x14)),
		MinRate:             b.Add(layout.U32("MinRate", 0x18)),
		FrameRateM:          b.Add(layout.U32("FrameRateM", 0x1C)),
		FrameRateD:          b.Add(layout.U32("FrameRateD", 0x20)),
		MaxFrameBytes:       b.Add(layout.U32("MaxFrameBytes", 0x24)),
		GopP:                b.Add(layout.U16("GopP", 0x28)),
		GopB:                b.Add(layout.U16("GopB", 0x2A)),
		FrameWidth:          b.Add(layout.U16("FrameWidth", 0x2C)),
		FrameHeight:         b.Add(layout.U16("FrameHeight", 0x2E)),
		MinQP:               b.Add(layout.U8("MinQP", 0x30)),
		MaxQP:               b.Add(layout.U8("MaxQP", 0x31)),
		InitialQP:           b.Add(layout.U8("InitialQP", 0x32)),
		MaxPasses:           b.Add(layout.U8("MaxPasses", 0x33)),
		OvershootCBRPct:     b.Add(layout.U8("OvershootCBRPct", 0x34)),
		SlidingWindowSize:   b.Add(layout.U8("SlidingWindowSize", 0x35)),
		SceneChangeIntraPct: b.Add(layout.U16("SceneChangeIntraPct", 0x36)),
		DevThreshPB:         b.AddArray(layout.ArrayOf(layout.S8("DevThreshPB", 0x38), 8)),
		DevThreshVBR:        b.AddArray(layout.ArrayOf(layout.S8("DevThreshVBR", 0x40), 8)),
		DevThreshI:          b.AddArray(layout.ArrayOf(layout.S8("DevThreshI", 0x48), 8)),
		InstRateThreshP:     b.AddArray(layout.ArrayOf(layout.U8("InstRateThreshP", 0x50), 4)),
		InstRateThreshB:     b.AddArray(layout.ArrayOf(layout.U8("InstRateThreshB", 0x54), 4)),
		InstRateThreshI:     b.AddArray(layout.ArrayOf(layout.U8("InstRateThreshI", 0x58), 4)),
		InputBitsPerFrame:   b.Add(layout.U32("InputBitsPerFrame", 0x5C)),
	}
	d.Layout = b.Build("BRCInitDMEM", DMEMSize)
	return d
}()

// Update DMEM flag bits.
const (
	UpdateFlagFirstPass = 1 << 0
	UpdateFlagLastPass  = 1 << 1
)

// UpdateDMEMLayout is the parameter block of the per-pass BRC update.
type UpdateDMEMLayout struct {
	*layout.Layout

	TargetSize             layout.Field
	FrameNumber            layout.Field
	PeakTxBitsPerFrame     layout.Field
	MaxFrameBytes          layout.Field
	StartGlobalAdjustFrame layout.Array
	GlobalRateRatio        layout.Array
	FrameType              layout.Field
	StartGlobalAdjustMult  layout.Array
	StartGlobalAdjustDiv   layout.Array
	GlobalRateQPAdj        layout.Array
	CurrentPass            layout.Field
	MaxPasses              layout.Field
	SceneChange            layout.Field
	ROIEnable              layout.Field
	Segmentation           layout.Field
	BaseQP                 layout.Field
	WidthInBlocks          layout.Field
	HeightInBlocks         layout.Field
	MinQP                  layout.Field
	MaxQP                  layout.Field
	Flags                  layout.Field
	ROIZoneDelta           layout.Array
	TargetSizeWrapped      layout.Field
	Codec                  layout.Field
}

// UpdateDMEM is the per-pass update DMEM wire format.
var UpdateDMEM = func() UpdateDMEMLayout {
	var b layout.Builder
	d := UpdateDMEMLayout{
		TargetSize:             b.Add(layout.U32("TargetSize", 0x00)),
		FrameNumber:            b.Add(layout.U32("FrameNumber", 0x04)),
		PeakTxBitsPerFrame:     b.Add(layout.U32("PeakTxBitsPerFrame", 0x08)),
		MaxFrameBytes:          b.Add(layout.U32("MaxFrameBytes", 0x0C)),
		StartGlobalAdjustFrame: b.AddArray(layout.ArrayOf(layout.U16("StartGlobalAdjustFrame", 0x10), 4)),
		GlobalRateRatio:        b.AddArray(layout.ArrayOf(layout.U8("GlobalRateRatio", 0x18), 7)),
		FrameType:              b.Add(layout.U8("FrameType", 0x1F)),
		StartGlobalAdjustMult:  b.AddArray(layout.ArrayOf(layout.U8("StartGlobalAdjustMult", 0x20), 5)),
		StartGlobalAdjustDiv:   b.AddArray(layout.ArrayOf(layout.U8("StartGlobalAdjustDiv", 0x25), 5)),
		GlobalRateQPAdj:        b.AddArray(layout.ArrayOf(layout.S8("GlobalRateQPAdj", 0x2A), 8)),
		CurrentPass:            b.Add(layout.U8("CurrentPass", 0x32)),
		MaxPasses:              b.Add(layout.U8("MaxPasses", 0x33)),
		SceneChange:            b.Add(layout.U8("SceneChange", 0x34)),
		ROIEnable:              b.Add(layout.U8("ROIEnable", 0x35)),
		Segmentation:           b.Add(layout.U8("Segmentation", 0x36)),
		BaseQP:                 b.Add(layout.U8("BaseQP", 0x37)),
		WidthInBlocks:          b.Add(layout.U16("WidthInBlocks", 0x38)),
		HeightInBlocks:         b.Add(layout.U16("HeightInBlocks", 0x3A)),
		MinQP:                  b.Add(layout.U8("MinQP", 0x3C)),
		MaxQP:                  b.Add(layout.U8("MaxQP", 0x3D)),
		Flags:                  b.Add(layout.U8("Flags", 0x3E)),
		ROIZoneDelta:           b.AddArray(layout.ArrayOf(layout.S8("ROIZoneDelta", 0x40), 4)),
		TargetSizeWrapped:      b.Add(layout.U8("TargetSizeWrapped", 0x44)),
		Codec:                  b.Add(layout.U8("Codec", 0x45)),
	}
	d.Layout = b.Build("BRCUpdateDMEM", DMEMSize)
	return d
}()

// HistoryLayout is the BRC state the firmware carries across frames. The
// host only zeroes it; the firmware owns the contents.
type HistoryLayout struct {
	*layout.Layout

	Magic             layout.Field
	Mode              layout.Field
	Codec             layout.Field
	MinQP             layout.Field
	MaxQP             layout.Field
	TargetBitrate     layout.Field
	BufferSize        layout.Field
	InputBitsPerFrame layout.Field
	Fullness          layout.Field
	FrameCount        layout.Field
	MaxFrameBytes     layout.Field
	OvershootPct      layout.Field
	InitialQP         layout.Field
	LastQP            layout.Array // per firmware frame type code
	LastBits          layout.Array // per firmware frame type code
	PassQP            layout.Field
}

// History is the BRC history wire format.
var History = func() HistoryLayout {
	var b layout.Builder
	d := HistoryLayout{
		Magic:             b.Add(layout.U32("Magic", 0x00)),
		Mode:              b.Add(layout.U8("Mode", 0x04)),
		Codec:             b.Add(layout.U8("Codec", 0x05)),
		MinQP:             b.Add(layout.U8("MinQP", 0x06)),
		MaxQP:             b.Add(layout.U8("MaxQP", 0x07)),
		TargetBitrate:     b.Add(layout.U32("TargetBitrate", 0x08)),
		BufferSize:        b.Add(layout.U32("BufferSize", 0x0C)),
		InputBitsPerFrame: b.Add(layout.U32("InputBitsPerFrame", 0x10)),
		Fullness:          b.Add(layout.S32("Fullness", 0x14)),
		FrameCount:        b.Add(layout.U32("FrameCount", 0x18)),
		MaxFrameBytes:     b.Add(layout.U32("MaxFrameBytes", 0x1C)),
		OvershootPct:      b.Add(layout.U8("OvershootPct", 0x20)),
		InitialQP:         b.Add(layout.U8("InitialQP", 0x21)),
		LastQP:            b.AddArray(layout.ArrayOf(layout.U8("LastQP", 0x24), 3)),
		LastBits:          b.AddArray(layout.ArrayOf(layout.U32("LastBits", 0x28), 3)),
		PassQP:            b.Add(layout.U8("PassQP", 0x34)),
	}
	d.Layout = b.Build("BRCHistory", HistorySize)
	return d
}()

// PAKStatusLayout is one per-pass slot of the PAK status buffer. The GPU
// fills it with register stores at the end of each pass; Mask is written
// by the host and read by the conditional batch end of the next pass.
type PAKStatusLayout struct {
	*layout.Layout

	BytesFrame      layout.Field
	BytesNoHeader   layout.Field
	ImageStatus     layout.Field
	ImageStatusMask layout.Field
	Executed        layout.Field
	QPStatus        layout.Field
}

// PAKStatus is the PAK status slot wire format.
var PAKStatus = func() PAKStatusLayout {
	var b layout.Builder
	d := PAKStatusLayout{
		BytesFrame:      b.Add(layout.U32("BytesFrame", 0x00)),
		BytesNoHeader:   b.Add(layout.U32("BytesNoHeader", 0x04)),
		ImageStatus:     b.Add(layout.U32("ImageStatus", 0x08)),
		ImageStatusMask: b.Add(layout.U32("ImageStatusMask", 0x0C)),
		Executed:        b.Add(layout.U32("Executed", 0x10)),
		QPStatus:        b.Add(layout.U32("QPStatus", 0x14)),
	}
	d.Layout = b.Build("PAKStatus", PAKStatusSlotSize)
	return d
}()

// HuCStatusLayout receives HUC_STATUS2 before the firmware gate.
type HuCStatusLayout struct {
	*layout.Layout

	Status2     layout.Field
	Status2Mask layout.Field
	Status      layout.Field
}

// HuCStatus is the HuC status wire format.
var HuCStatus = func() HuCStatusLayout {
	var b layout.Builder
	d := HuCStatusLayout{
		Status2:     b.Add(layout.U32("Status2", 0x00)),
		Status2Mask: b.Add(layout.U32("Status2Mask", 0x04)),
		Status:      b.Add(layout.U32("Status", 0x08)),
	}
	d.Layout = b.Build("HuCStatus", HuCStatusSize)
	return d
}()

// CodedStatusLayout is the private status segment at the start of the
// coded buffer. The bitstream follows at CodedStatusSize.
type CodedStatusLayout struct {
	*layout.Layout

	BytesFrame  layout.Field
	ImageStatus layout.Field
	Passes      layout.Field
	QP          layout.Field
}

// CodedStatus is the coded-buffer status segment wire format.
var CodedStatus = func() CodedStatusLayout {
	var b layout.Builder
	d := CodedStatusLayout{
		BytesFrame:  b.Add(layout.U32("BytesFrame", 0x00)),
		ImageStatus: b.Add(layout.U32("ImageStatus", 0x04)),
		Passes:      b.Add(layout.U32("Passes", 0x08)),
		QP:          b.Add(layout.U32("QP", 0x0C)),
	}
	d.Layout = b.Build("CodedStatus", CodedStatusSize)
	return d
}()

// FrameStatsLayout is the statistics record the PAK writes at the end of
// every pass. The update function reads it on the first pass of the next
// frame; the host never clears it.
type FrameStatsLayout struct {
	*layout.Layout

	BytesFrame layout.Field
	QP         layout.Field
	FrameType  layout.Field
	Pass       layout.Field
	Blocks     layout.Field
}

// FrameStats is the PAK statistics wire format.
var FrameStats = func() FrameStatsLayout {
	var b layout.Builder
	d := FrameStatsLayout{
		BytesFrame: b.Add(layout.U32("BytesFrame", 0x00)),
		QP:         b.Add(layout.U8("QP", 0x04)),
		FrameType:  b.Add(layout.U8("FrameType", 0x05)),
		Pass:       b.Add(layout.U8("Pass", 0x06)),
		Blocks:     b.Add(layout.U32("Blocks", 0x08)),
	}
	d.Layout = b.Build("FrameStats", FrameStatsSize)
	return d
}()

// CostEntryLayout is one QP row of the VDEnc cost table in the constant
// buffer, in 4.4 format.
type CostEntryLayout struct {
	*layout.Layout

	Mode layout.Array
	MV   layout.Array
}

// CostEntry is the cost-table row wire format.
var CostEntry = func() CostEntryLayout {
	var b layout.Builder
	d := CostEntryLayout{
		Mode: b.AddArray(layout.ArrayOf(layout.U8("Mode", 0x00), NumModeCosts)),
		MV:   b.AddArray(layout.ArrayOf(layout.U8("MV", 0x08), NumMVCosts)),
	}
	d.Layout = b.Build("CostEntry", CostEntrySize)
	return d
}()

// StreamInLayout is the per-macroblock ROI stream-in record.
type StreamInLayout struct {
	*layout.Layout

	Zone    layout.Field
	QPDelta layout.Field
}

// StreamIn is the stream-in record wire format.
var StreamIn = func() StreamInLayout {
	var b layout.Builder
	d := StreamInLayout{
		Zone:    b.Add(layout.U8("Zone", 0)),
		QPDelta: b.Add(layout.S8("QPDelta", 1)),
	}
	d.Layout = b.Build("StreamIn", StreamInEntrySize)
	return d
}()
