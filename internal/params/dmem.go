// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package params

import (
	"fmt"

	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/layout"
	"github.com/gogpu/hwenc/internal/ratectl"
	"github.com/gogpu/hwenc/resource"
)

// InitInput is what the BRC init/reset DMEM is built from.
type InitInput struct {
	Codec hw.Codec
	Mode  hw.RateControlMode
	Reset bool

	Rate ratectl.Params

	MaxRate       uint64
	MinRate       uint64
	MaxFrameBytes uint32
	GopP          int
	GopB          int

	Width  int
	Height int

	MinQP     int
	MaxQP     int
	InitialQP int
	MaxPasses int

	FrameSizeBytes uint64 // uncompressed frame size for the initial QP
}

// UpdateInput is what the per-pass BRC update DMEM is built from.
type UpdateInput struct {
	Codec       hw.Codec
	FrameType   hw.FrameType
	FrameNumber uint32
	Pass        ratectl.Pass

	TargetBits    uint64
	TargetWrapped bool
	PeakBits      uint64
	MaxFrameBytes uint32

	BaseQP int
	MinQP  int
	MaxQP  int

	WidthInBlocks  int
	HeightInBlocks int

	SceneChange bool
	Zones       [hw.MaxROI + 1]int
	NumROI      int
}

// FirmwareMode returns the firmware code of a rate-control mode.
func FirmwareMode(m hw.RateControlMode) uint8 {
	switch m {
	case hw.RateControlCBR:
		return FirmwareModeCBR
	case hw.RateControlVBR:
		return FirmwareModeVBR
	default:
		return FirmwareModeCQP
	}
}

// FirmwareCodec returns the firmware code of a codec.
func FirmwareCodec(c hw.Codec) uint8 {
	if c == hw.CodecVP9 {
		return FirmwareCodecVP9
	}
	return FirmwareCodecAVC
}

// ModeFromFirmware decodes a firmware rate-control mode code.
func ModeFromFirmware(code uint8) hw.RateControlMode {
	switch code {
	case FirmwareModeCBR:
		return hw.RateControlCBR
	case FirmwareModeVBR:
		return hw.RateControlVBR
	default:
		return hw.RateControlCQP
	}
}

// CodecFromFirmware decodes a firmware codec code.
func CodecFromFirmware(code uint8) hw.Codec {
	if code == FirmwareCodecVP9 {
		return hw.CodecVP9
	}
	return hw.CodecAVC
}

// BuildInitDMEM serializes the init/reset parameter block into b. The
// initial QP is estimated when in.InitialQP is zero.
func BuildInitDMEM(b []byte, in *InitInput, t *Tables) error {
	d := &InitDMEM
	if err := d.Check(b); err != nil {
		return err
	}
	clear(b[:d.Size()])

	fn := BRCFuncInit
	if in.Reset {
		fn = BRCFuncReset
	}
	d.BRCFunc.SetInt(b, fn)
	d.Codec.Set(b, uint32(FirmwareCodec(in.Codec)))
	d.Mode.Set(b, uint32(FirmwareMode(in.Mode)))

	r := in.Rate
	setU32(d.InitBufferFullness, b, r.InitialFullness)
	setU32(d.BufferSize, b, r.VBVBits)
	setU32(d.TargetBitrate, b, r.TargetBitrate)
	setU32(d.MaxRate, b, max(in.MaxRate, r.TargetBitrate))
	setU32(d.MinRate, b, in.MinRate)
	d.FrameRateM.Set(b, r.FPSNum)
	d.FrameRateD.Set(b, r.FPSDen)
	d.MaxFrameBytes.Set(b, in.MaxFrameBytes)
	d.GopP.SetInt(b, in.GopP)
	d.GopB.SetInt(b, in.GopB)
	d.FrameWidth.SetInt(b, in.Width)
	d.FrameHeight.SetInt(b, in.Height)
	d.MinQP.SetInt(b, in.MinQP)
	d.MaxQP.SetInt(b, in.MaxQP)

	qp := in.InitialQP
	if qp == 0 {
		qp = ratectl.InitialQP(in.FrameSizeBytes, r.TargetBitrate,
			uint64(r.FPSNum), uint64(r.FPSDen), r.VBVBits)
	}
	d.InitialQP.SetInt(b, max(in.MinQP, min(in.MaxQP, qp)))
	d.MaxPasses.SetInt(b, in.MaxPasses)
	d.OvershootCBRPct.Set(b, uint32(t.OvershootCBRPercent))
	d.SlidingWindowSize.SetInt(b, slidingWindow(r))
	d.SceneChangeIntraPct.Set(b, uint32(t.SceneChangeIntraPercent))

	th := ratectl.DeviationThresholds(t.Deviation, float64(r.TargetBitrate), float64(r.VBVBits))
	setInt8s(d.DevThreshPB, b, th.PB[:])
	setInt8s(d.DevThreshVBR, b, th.VBR[:])
	setInt8s(d.DevThreshI, b, th.I[:])
	setUint8s(d.InstRateThreshP, b, t.InstRateThreshP[:])
	setUint8s(d.InstRateThreshB, b, t.InstRateThreshB[:])
	setUint8s(d.InstRateThreshI, b, t.InstRateThreshI[:])
	setU32(d.InputBitsPerFrame, b, uint64(r.InputBitsPerFrame()))
	return nil
}

// slidingWindow is one second of frames, capped to the field width.
func slidingWindow(r ratectl.Params) int {
	if r.FPSDen == 0 {
		return 30
	}
	return int(min(255, max(1, r.FPSNum/r.FPSDen)))
}

// BuildUpdateDMEM serializes the per-pass update block into b.
func BuildUpdateDMEM(b []byte, in *UpdateInput, t *Tables) error {
	d := &UpdateDMEM
	if err := d.Check(b); err != nil {
		return err
	}
	clear(b[:d.Size()])

	setU32(d.TargetSize, b, in.TargetBits)
	d.FrameNumber.Set(b, in.FrameNumber)
	setU32(d.PeakTxBitsPerFrame, b, in.PeakBits)
	d.MaxFrameBytes.Set(b, in.MaxFrameBytes)
	for i, v := range t.StartGlobalAdjustFrame {
		d.StartGlobalAdjustFrame.At(i).Set(b, uint32(v))
	}
	setUint8s(d.GlobalRateRatio, b, t.GlobalRateRatio[:])
	d.FrameType.Set(b, uint32(in.FrameType.FirmwareCode()))
	setUint8s(d.StartGlobalAdjustMult, b, t.StartGlobalAdjustMult[:])
	setUint8s(d.StartGlobalAdjustDiv, b, t.StartGlobalAdjustDiv[:])
	setInt8s(d.GlobalRateQPAdj, b, t.GlobalRateQPAdj[:])
	d.CurrentPass.SetInt(b, in.Pass.Index)
	d.MaxPasses.SetInt(b, in.Pass.Total)
	d.SceneChange.SetBool(b, in.SceneChange)
	d.ROIEnable.SetBool(b, in.NumROI > 0)
	d.Segmentation.SetBool(b, in.NumROI > 0 && in.Codec == hw.CodecVP9)
	d.BaseQP.SetInt(b, in.BaseQP)
	d.WidthInBlocks.SetInt(b, in.WidthInBlocks)
	d.HeightInBlocks.SetInt(b, in.HeightInBlocks)
	d.MinQP.SetInt(b, in.MinQP)
	d.MaxQP.SetInt(b, in.MaxQP)

	var flags uint32
	if in.Pass.First() {
		flags |= UpdateFlagFirstPass
	}
	if in.Pass.Last() {
		flags |= UpdateFlagLastPass
	}
	d.Flags.Set(b, flags)
	for i, z := range in.Zones {
		d.ROIZoneDelta.At(i).SetInt(b, ClampROIDelta(z))
	}
	d.TargetSizeWrapped.SetBool(b, in.TargetWrapped)
	d.Codec.Set(b, uint32(FirmwareCodec(in.Codec)))
	return nil
}

// WriteBlock maps h, lets fill serialize into it and unmaps. It is how
// every host-written firmware block reaches the GPU.
func WriteBlock(reg *resource.Registry, h resource.Handle, fill func([]byte) error) error {
	buf, err := reg.Map(h)
	if err != nil {
		return fmt.Errorf("params: map %s: %w", reg.Label(h), err)
	}
	ferr := fill(buf)
	if err := reg.Unmap(h); err != nil && ferr == nil {
		ferr = fmt.Errorf("params: unmap %s: %w", reg.Label(h), err)
	}
	return ferr
}

func setU32(f layout.Field, b []byte, v uint64) {
	//nolint:gosec // G115: saturated to 32 bits
	f.Set(b, uint32(min(v, 0xFFFFFFFF)))
}

func setInt8s(a layout.Array, b []byte, vs []int8) {
	for i, v := range vs {
		a.At(i).SetInt(b, int(v))
	}
}

func setUint8s(a layout.Array, b []byte, vs []uint8) {
	for i, v := range vs {
		a.At(i).Set(b, uint32(v))
	}
}
