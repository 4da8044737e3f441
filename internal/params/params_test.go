// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package params

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/layout"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/ratectl"
	"github.com/gogpu/hwenc/resource"
)

func TestWireOffsets(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"InitDMEM size", InitDMEM.Size(), 0x80},
		{"InitDMEM.BufferSize", InitDMEM.BufferSize.Offset, 0x0C},
		{"InitDMEM.InitialQP", InitDMEM.InitialQP.Offset, 0x32},
		{"InitDMEM.DevThreshI[7]", InitDMEM.DevThreshI.At(7).Offset, 0x4F},
		{"InitDMEM.InputBitsPerFrame", InitDMEM.InputBitsPerFrame.Offset, 0x5C},
		{"UpdateDMEM size", UpdateDMEM.Size(), 0x80},
		{"UpdateDMEM.FrameType", UpdateDMEM.FrameType.Offset, 0x1F},
		{"UpdateDMEM.CurrentPass", UpdateDMEM.CurrentPass.Offset, 0x32},
		{"UpdateDMEM.Codec", UpdateDMEM.Codec.Offset, 0x45},
		{"PAKStatus.ImageStatus", PAKStatus.ImageStatus.Offset, 0x08},
		{"PAKStatus.ImageStatusMask", PAKStatus.ImageStatusMask.Offset, 0x0C},
		{"HuCStatus.Status2Mask", HuCStatus.Status2Mask.Offset, 0x04},
		{"AVCImgState.SliceQP", AVCImgState.SliceQP.Offset, 48},
		{"VDEncImgState.ROIZone[1] shift", int(VDEncImgState.ROIZone[1].Shift), 4},
		{"VP9PicState.BaseQIndex", VP9PicState.BaseQIndex.Offset, 16},
		{"ConstDataSize", ConstDataSize, 52*16 + 52},
		{"FrameStats.Blocks", FrameStats.Blocks.Offset, 0x08},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %#x, want %#x", tt.name, tt.got, tt.want)
		}
	}
}

func scenarioBInit() *InitInput {
	return &InitInput{
		Codec: hw.CodecAVC,
		Mode:  hw.RateControlCBR,
		Rate: ratectl.Params{
			TargetBitrate:   4_000_000,
			VBVBits:         8_000_000,
			InitialFullness: 4_000_000,
			FPSNum:          30,
			FPSDen:          1,
		},
		Width:          1920,
		Height:         1088,
		MinQP:          1,
		MaxQP:          51,
		MaxPasses:      2,
		FrameSizeBytes: 1920 * 1080 * 3 / 2,
	}
}

func TestBuildInitDMEM(t *testing.T) {
	tables := DefaultTables()
	b := InitDMEM.Alloc()
	if err := BuildInitDMEM(b, scenarioBInit(), &tables); err != nil {
		t.Fatalf("BuildInitDMEM: %v", err)
	}

	d := &InitDMEM
	checks := []struct {
		name string
		got  int
		want int
	}{
		{"BRCFunc", d.BRCFunc.GetInt(b), BRCFuncInit},
		{"Mode", d.Mode.GetInt(b), FirmwareModeCBR},
		{"Codec", d.Codec.GetInt(b), FirmwareCodecAVC},
		{"InitBufferFullness", d.InitBufferFullness.GetInt(b), 4_000_000},
		{"BufferSize", d.BufferSize.GetInt(b), 8_000_000},
		{"TargetBitrate", d.TargetBitrate.GetInt(b), 4_000_000},
		{"MaxRate", d.MaxRate.GetInt(b), 4_000_000},
		{"FrameRateM", d.FrameRateM.GetInt(b), 30},
		{"InitialQP", d.InitialQP.GetInt(b), 32},
		{"MaxPasses", d.MaxPasses.GetInt(b), 2},
		{"OvershootCBRPct", d.OvershootCBRPct.GetInt(b), 115},
		{"SlidingWindowSize", d.SlidingWindowSize.GetInt(b), 30},
		{"InputBitsPerFrame", d.InputBitsPerFrame.GetInt(b), 133_333},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	// Ratio 0.5 thresholds.
	wantPB := []int{-47, -41, -34, -27, 27, 34, 42, 47}
	gotPB := d.DevThreshPB.Ints(b)
	for i := range wantPB {
		if gotPB[i] != wantPB[i] {
			t.Errorf("DevThreshPB = %v, want %v", gotPB, wantPB)
			break
		}
	}
}

func TestBuildInitDMEMThresholdsAcrossFrameRates(t *testing.T) {
	tables := DefaultTables()
	base := InitDMEM.Alloc()
	if err := BuildInitDMEM(base, scenarioBInit(), &tables); err != nil {
		t.Fatalf("BuildInitDMEM: %v", err)
	}
	d := &InitDMEM
	for _, fps := range [][2]uint32{{60, 1}, {30000, 1001}, {25, 1}} {
		in := scenarioBInit()
		in.Rate.FPSNum, in.Rate.FPSDen = fps[0], fps[1]
		b := InitDMEM.Alloc()
		if err := BuildInitDMEM(b, in, &tables); err != nil {
			t.Fatalf("BuildInitDMEM(%d/%d): %v", fps[0], fps[1], err)
		}
		for _, f := range []layout.Array{d.DevThreshPB, d.DevThreshI, d.DevThreshVBR} {
			got, ref := f.Ints(b), f.Ints(base)
			for i := range ref {
				if got[i] != ref[i] {
					t.Errorf("%d/%d fps: thresholds = %v, want %v", fps[0], fps[1], got, ref)
					break
				}
			}
		}
	}
}

func TestBuildInitDMEMReset(t *testing.T) {
	tables := DefaultTables()
	in := scenarioBInit()
	in.Reset = true
	in.InitialQP = 60 // clamped to MaxQP
	b := InitDMEM.Alloc()
	if err := BuildInitDMEM(b, in, &tables); err != nil {
		t.Fatal(err)
	}
	if got := InitDMEM.BRCFunc.GetInt(b); got != BRCFuncReset {
		t.Errorf("BRCFunc = %d, want %d", got, BRCFuncReset)
	}
	if got := InitDMEM.InitialQP.GetInt(b); got != 51 {
		t.Errorf("InitialQP = %d, want 51", got)
	}
}

func TestBuildDMEMShortBuffer(t *testing.T) {
	tables := DefaultTables()
	if err := BuildInitDMEM(make([]byte, 16), scenarioBInit(), &tables); err == nil {
		t.Error("BuildInitDMEM accepted a short buffer")
	}
	if err := BuildUpdateDMEM(make([]byte, 16), &UpdateInput{}, &tables); err == nil {
		t.Error("BuildUpdateDMEM accepted a short buffer")
	}
}

func TestBuildUpdateDMEM(t *testing.T) {
	tables := DefaultTables()
	tests := []struct {
		name      string
		pass      ratectl.Pass
		wantFlags int
	}{
		{"first of two", ratectl.Pass{Index: 0, Total: 2}, UpdateFlagFirstPass},
		{"last of two", ratectl.Pass{Index: 1, Total: 2}, UpdateFlagLastPass},
		{"single", ratectl.Pass{Index: 0, Total: 1}, UpdateFlagFirstPass | UpdateFlagLastPass},
		{"middle", ratectl.Pass{Index: 1, Total: 3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &UpdateInput{
				Codec:      hw.CodecVP9,
				FrameType:  hw.FrameI,
				Pass:       tt.pass,
				TargetBits: 4_000_000,
				BaseQP:     30,
				MinQP:      1,
				MaxQP:      51,
				Zones:      [4]int{0, -4, 3, 0},
				NumROI:     2,
			}
			b := UpdateDMEM.Alloc()
			if err := BuildUpdateDMEM(b, in, &tables); err != nil {
				t.Fatal(err)
			}
			d := &UpdateDMEM
			if got := d.Flags.GetInt(b); got != tt.wantFlags {
				t.Errorf("Flags = %#x, want %#x", got, tt.wantFlags)
			}
			if got := d.CurrentPass.GetInt(b); got != tt.pass.Index {
				t.Errorf("CurrentPass = %d", got)
			}
			if got := d.TargetSize.GetInt(b); got != 4_000_000 {
				t.Errorf("TargetSize = %d", got)
			}
			if got := d.FrameType.GetInt(b); got != 2 {
				t.Errorf("FrameType = %d, want 2 (I)", got)
			}
			if !d.Segmentation.Bool(b) || !d.ROIEnable.Bool(b) {
				t.Error("ROI/segmentation not enabled")
			}
			if got := d.ROIZoneDelta.Ints(b); got[1] != -4 || got[2] != 3 {
				t.Errorf("ROIZoneDelta = %v", got)
			}
			if got := d.GlobalRateQPAdj.At(0).GetInt(b); got != -3 {
				t.Errorf("GlobalRateQPAdj[0] = %d, want -3", got)
			}
		})
	}
}

func TestFrameBitrateEncoding(t *testing.T) {
	tests := []struct {
		name     string
		max, min uint32
	}{
		{"zero", 0, 0},
		{"small", 19_165, 14_166},
		{"exact unit", 3200, 3200},
		{"large unit", 600_000, 550_000},
		{"saturated", 0xFFFFFFFF, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := AVCImgState.Alloc()
			AVCImgState.FrameBitrate.Set(b, tt.max, tt.min)
			gotMax, gotMin := AVCImgState.FrameBitrate.Limits(b)
			if tt.max < 0x3FFF*4096 && (gotMax < tt.max || gotMax-tt.max >= 4096) {
				t.Errorf("max %d decoded as %d", tt.max, gotMax)
			}
			if gotMin > tt.min || tt.min-gotMin >= 4096 {
				t.Errorf("min %d decoded as %d", tt.min, gotMin)
			}
		})
	}

	// Below 0x3FFF*32 bytes the 32-byte unit is used.
	b := AVCImgState.Alloc()
	AVCImgState.FrameBitrate.Set(b, 19_165, 14_166)
	if AVCImgState.FrameBitrate.MaxUnit.Bool(b) {
		t.Error("small max used the 4 KiB unit")
	}
	if got := AVCImgState.FrameBitrate.Max.Get(b); got != 599 {
		t.Errorf("max field = %d, want 599", got)
	}
	if got := AVCImgState.FrameBitrate.Min.Get(b); got != 442 {
		t.Errorf("min field = %d, want 442", got)
	}
}

func TestFrameSizeBounds(t *testing.T) {
	tests := []struct {
		name     string
		mode     hw.RateControlMode
		target   uint64
		cap      uint32
		max, min uint32
	}{
		{"cqp disabled", hw.RateControlCQP, 133_333, 0, 0, 0},
		{"cbr", hw.RateControlCBR, 133_333, 0, 19_165, 14_166},
		{"vbr has no minimum", hw.RateControlVBR, 133_333, 0, 19_165, 0},
		{"capped", hw.RateControlCBR, 133_333, 10_000, 10_000, 14_166},
	}
	for _, tt := range tests {
		gotMax, gotMin := FrameSizeBounds(tt.mode, tt.target, 115, tt.cap)
		if gotMax != tt.max || gotMin != tt.min {
			t.Errorf("%s: FrameSizeBounds() = %d, %d; want %d, %d", tt.name, gotMax, gotMin, tt.max, tt.min)
		}
	}
}

func TestImageStateAVC(t *testing.T) {
	tables := DefaultTables()
	p := &Picture{
		Codec: hw.CodecAVC, FrameType: hw.FrameI,
		Width: 1920, Height: 1088,
		QP: 26, MinQP: 1, MaxQP: 51,
	}
	b := make([]byte, AVCImageStateSize)
	n, err := WriteImageState(b, p, &tables)
	if err != nil || n != AVCImageStateSize {
		t.Fatalf("WriteImageState = %d, %v", n, err)
	}

	words := Words(b)
	if op, l := mi.Decode(words[0]); op != mi.MFXAVCImgState || l != AVCImgStateLen {
		t.Errorf("first command = %v/%d", op, l)
	}
	if op, l := mi.Decode(words[AVCImgStateLen]); op != mi.VDEncImgState || l != VDEncImgStateLen {
		t.Errorf("second command = %v/%d", op, l)
	}
	if got := AVCImgState.WidthMinus1.GetInt(b); got != 119 {
		t.Errorf("WidthInMBsMinus1 = %d, want 119", got)
	}
	if got := AVCImgState.HeightMinus1.GetInt(b); got != 67 {
		t.Errorf("HeightInMBsMinus1 = %d, want 67", got)
	}
	if got := AVCImgState.FrameSize.GetInt(b); got != 120*68 {
		t.Errorf("FrameSize = %d", got)
	}
	if got := ImageQP(b, hw.CodecAVC); got != 26 {
		t.Errorf("ImageQP = %d, want 26", got)
	}
	if AVCImgState.MaxReportMask.Bool(b) {
		t.Error("report mask set without BRC")
	}

	vd := b[AVCImgStateLen*4:]
	for i := range NumModeCosts {
		want := int(ratectl.Map44(tables.ModeCost[26][i], tables.ModeCostMax))
		if got := VDEncImgState.ModeCost.At(i).GetInt(vd); got != want {
			t.Errorf("ModeCost[%d] = %#x, want %#x", i, got, want)
		}
	}
}

func TestImageStateROIZones(t *testing.T) {
	tables := DefaultTables()
	tests := []struct {
		name   string
		deltas []int
		want   [4]int
	}{
		{"two regions", []int{-4, 3}, [4]int{0, -4, 3, 0}},
		{"clamped", []int{-20, 12, 7}, [4]int{0, -8, 7, 7}},
		{"none", nil, [4]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rois := make([]ROI, len(tt.deltas))
			for i, d := range tt.deltas {
				rois[i] = ROI{Rect: image.Rect(0, 0, 64, 64), QPDelta: d}
			}
			zones, err := Zones(rois)
			if err != nil {
				t.Fatal(err)
			}
			p := &Picture{
				Codec: hw.CodecAVC, Width: 1920, Height: 1088, QP: 26,
				MinQP: 1, MaxQP: 51, Zones: zones, NumROI: len(rois),
			}
			b := make([]byte, AVCImageStateSize)
			if _, err := WriteImageState(b, p, &tables); err != nil {
				t.Fatal(err)
			}
			if got := ImageZones(b); got != tt.want {
				t.Errorf("zones = %v, want %v", got, tt.want)
			}
			vd := b[AVCImgStateLen*4:]
			if got := VDEncImgState.ROIEnable.Bool(vd); got != (len(rois) > 0) {
				t.Errorf("ROIEnable = %v", got)
			}
		})
	}

	if _, err := Zones(make([]ROI, 4)); !errors.Is(err, ErrTooManyROI) {
		t.Errorf("Zones(4 regions) error = %v, want ErrTooManyROI", err)
	}
}

func TestImageStateVP9(t *testing.T) {
	tables := DefaultTables()
	p := &Picture{
		Codec: hw.CodecVP9, FrameType: hw.FrameP,
		Width: 1280, Height: 768,
		QP: 26, MinQP: 1, MaxQP: 51,
		BRC: true, MaxFrameBytes: 20_000,
	}
	b := make([]byte, VP9ImageStateSize)
	if _, err := WriteImageState(b, p, &tables); err != nil {
		t.Fatal(err)
	}
	s := &VP9PicState
	if op, _ := mi.Decode(Words(b)[0]); op != mi.HCPVP9PicState {
		t.Errorf("command = %v", op)
	}
	if got := s.BaseQIndex.GetInt(b); got != 130 {
		t.Errorf("BaseQIndex = %d, want 130", got)
	}
	if got := s.QIndexMax.GetInt(b); got != 255 {
		t.Errorf("QIndexMax = %d, want 255", got)
	}
	if !s.InterFrame.Bool(b) {
		t.Error("inter frame flag clear")
	}
	if maxB, _ := ImageFrameBounds(b, hw.CodecVP9); maxB < 20_000 || maxB >= 20_032 {
		t.Errorf("max bound = %d", maxB)
	}

	constData := make([]byte, ConstDataSize)
	if err := tables.WriteConstData(constData); err != nil {
		t.Fatal(err)
	}
	SetImageQP(b, hw.CodecVP9, 40, constData)
	if got := ImageQP(b, hw.CodecVP9); got != 200 {
		t.Errorf("qindex after SetImageQP = %d, want 200", got)
	}
}

func TestSetImageQPReloadsCosts(t *testing.T) {
	tables := DefaultTables()
	constData := make([]byte, ConstDataSize)
	if err := tables.WriteConstData(constData); err != nil {
		t.Fatal(err)
	}
	p := &Picture{Codec: hw.CodecAVC, Width: 320, Height: 240, QP: 20, MinQP: 1, MaxQP: 51}
	b := make([]byte, AVCImageStateSize)
	if _, err := WriteImageState(b, p, &tables); err != nil {
		t.Fatal(err)
	}

	SetImageQP(b, hw.CodecAVC, 35, constData)

	vd := b[AVCImgStateLen*4:]
	if got := AVCImgState.SliceQP.GetInt(b); got != 35 {
		t.Errorf("SliceQP = %d, want 35", got)
	}
	if got := VDEncImgState.CostQP.GetInt(vd); got != 35 {
		t.Errorf("CostQP = %d, want 35", got)
	}
	for i := range NumMVCosts {
		want := int(ratectl.Map44(tables.MVCost[35][i], tables.MVCostMax))
		if got := VDEncImgState.MVCost.At(i).GetInt(vd); got != want {
			t.Errorf("MVCost[%d] = %#x, want %#x", i, got, want)
		}
	}
}

func TestConstData(t *testing.T) {
	tables := DefaultTables()
	b := make([]byte, ConstDataSize)
	if err := tables.WriteConstData(b); err != nil {
		t.Fatal(err)
	}
	var row [CostEntrySize]byte
	tables.WriteCostEntry(row[:], 26)
	for i := range row {
		if b[26*CostEntrySize+i] != row[i] {
			t.Fatalf("row 26 byte %d = %#x, want %#x", i, b[26*CostEntrySize+i], row[i])
		}
	}
	if got := b[NumQP*CostEntrySize+26]; got != 130 {
		t.Errorf("qindex[26] = %d, want 130", got)
	}
	if err := tables.WriteConstData(make([]byte, 10)); err == nil {
		t.Error("WriteConstData accepted a short buffer")
	}
}

func TestWriteStreamIn(t *testing.T) {
	// 4x2 macroblocks; region 0 covers MB (0,0), region 1 covers MBs
	// (0..2, 0..1). Region 0 wins the overlap.
	rois := []ROI{
		{Rect: image.Rect(0, 0, 16, 16), QPDelta: -4},
		{Rect: image.Rect(0, 0, 48, 32), QPDelta: 3},
	}
	b := make([]byte, StreamInSize(4, 2))
	if err := WriteStreamIn(b, rois, 4, 2); err != nil {
		t.Fatal(err)
	}
	wantZone := []int{1, 2, 2, 0, 2, 2, 2, 0}
	wantDelta := []int{-4, 3, 3, 0, 3, 3, 3, 0}
	for i := range wantZone {
		rec := b[i*StreamInEntrySize:]
		if z, d := StreamIn.Zone.GetInt(rec), StreamIn.QPDelta.GetInt(rec); z != wantZone[i] || d != wantDelta[i] {
			t.Errorf("MB %d = zone %d delta %d, want %d/%d", i, z, d, wantZone[i], wantDelta[i])
		}
	}

	if err := WriteStreamIn(make([]byte, 4), rois, 4, 2); err == nil {
		t.Error("WriteStreamIn accepted a short buffer")
	}
}

func TestWriteSegmentMap(t *testing.T) {
	rois := []ROI{{Rect: image.Rect(8, 0, 17, 8), QPDelta: 2}}
	b := make([]byte, SegmentMapSize(32, 16))
	if len(b) != 8 {
		t.Fatalf("SegmentMapSize = %d, want 8", len(b))
	}
	if err := WriteSegmentMap(b, rois, 32, 16); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 1, 1, 0, 0, 0, 0, 0}
	for i := range want {
		if b[i] != want[i] {
			t.Errorf("segment map = %v, want %v", b, want)
			break
		}
	}

	tables := DefaultTables()
	if got := tables.SegmentQIndexDelta(-4); got != -20 {
		t.Errorf("SegmentQIndexDelta(-4) = %d, want -20", got)
	}
	if got := tables.SegmentQIndexDelta(100); got != 35 {
		t.Errorf("SegmentQIndexDelta(100) = %d, want 35", got)
	}
}

func TestSliceAndSegmentState(t *testing.T) {
	b := make([]byte, SliceStateLen*4)
	WriteSliceState(b, mi.MFXAVCSliceState, Slice{Type: hw.FrameP, FirstBlock: 120, NumBlocks: 240, QP: 28, Index: 1, Last: true})
	if op, l := mi.Decode(Words(b)[0]); op != mi.MFXAVCSliceState || l != SliceStateLen {
		t.Errorf("header = %v/%d", op, l)
	}
	if got := SliceState.NextFirst.GetInt(b); got != 360 {
		t.Errorf("NextFirst = %d, want 360", got)
	}
	if !SliceState.LastSlice.Bool(b) {
		t.Error("LastSlice clear")
	}

	seg := make([]byte, VP9SegmentStateLen*4)
	WriteVP9SegmentState(seg, 2, -20)
	if got := VP9SegmentState.QIndexDelta.GetInt(seg); got != -20 {
		t.Errorf("QIndexDelta = %d, want -20", got)
	}
	if got := VP9SegmentState.SegmentID.GetInt(seg); got != 2 {
		t.Errorf("SegmentID = %d", got)
	}
}

func TestWriteBlock(t *testing.T) {
	reg := resource.NewRegistry(nil)
	h, err := reg.Allocate(DMEMSize, resource.KindDMEM, "dmem")
	if err != nil {
		t.Fatal(err)
	}
	tables := DefaultTables()
	err = WriteBlock(reg, h, func(b []byte) error {
		return BuildUpdateDMEM(b, &UpdateInput{Pass: ratectl.Pass{Total: 1}, TargetBits: 77}, &tables)
	})
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	got, err := reg.Read(h, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 77 {
		t.Errorf("TargetSize byte = %d, want 77", got[0])
	}

	reg.Free(h)
	if err := WriteBlock(reg, h, func([]byte) error { return nil }); !errors.Is(err, resource.ErrMapFailed) {
		t.Errorf("WriteBlock on freed handle = %v, want ErrMapFailed", err)
	}
}

func TestQPForQIndex(t *testing.T) {
	tables := DefaultTables()
	tests := []struct {
		qindex int
		want   int
	}{
		{0, 0},
		{1, 0},
		{130, 26},
		{131, 27},
		{255, 51},
		{300, 51},
	}
	for _, tt := range tests {
		if got := tables.QPForQIndex(tt.qindex); got != tt.want {
			t.Errorf("QPForQIndex(%d) = %d, want %d", tt.qindex, got, tt.want)
		}
	}
}

func TestFirmwareCodesRoundTrip(t *testing.T) {
	for _, m := range []hw.RateControlMode{hw.RateControlCBR, hw.RateControlVBR, hw.RateControlCQP} {
		if got := ModeFromFirmware(FirmwareMode(m)); got != m {
			t.Errorf("ModeFromFirmware(FirmwareMode(%s)) = %s", m, got)
		}
	}
	if got := ModeFromFirmware(FirmwareMode(hw.RateControlNone)); got != hw.RateControlCQP {
		t.Errorf("RateControlNone decodes as %s, want CQP", got)
	}
	for _, c := range []hw.Codec{hw.CodecAVC, hw.CodecVP9} {
		if got := CodecFromFirmware(FirmwareCodec(c)); got != c {
			t.Errorf("CodecFromFirmware(FirmwareCodec(%s)) = %s", c, got)
		}
	}
}
