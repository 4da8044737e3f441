// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwsim

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/pipeline"
)

// Buffer fullness bands, in percent of the buffer size, outside which the
// first-pass QP is nudged by one step.
const (
	fullnessLowPct  = 10
	fullnessHighPct = 90
)

// runFirmware executes the function selected by the IMEM descriptor.
func (g *GPU) runFirmware() error {
	if g.cfg.FirmwareMissing {
		return nil
	}
	h := &g.eng.huc
	dmem, err := g.mem(h.dmem, params.DMEMSize)
	if err != nil {
		return fmt.Errorf("DMEM: %w", err)
	}
	g.stats.FirmwareRuns++
	switch h.descriptor {
	case pipeline.HuCDescriptorBRCInit:
		return g.brcInit(dmem)
	case pipeline.HuCDescriptorBRCUpdate:
		return g.brcUpdate(dmem)
	}
	return fmt.Errorf("%w: HuC descriptor %d", ErrBadCommand, h.descriptor)
}

// region returns at least n bytes of virtual-address region k.
func (g *GPU) region(k, n int) ([]byte, error) {
	a := g.eng.huc.regions[k]
	if a == 0 {
		return nil, fmt.Errorf("%w: HuC region %d not bound", ErrBadAddress, k)
	}
	return g.mem(a, n)
}

// brcInit seeds the history from the init DMEM. A reset keeps the per-type
// QP and size history of an initialized buffer.
func (g *GPU) brcInit(d []byte) error {
	hist, err := g.region(pipeline.RegionHistory, params.HistorySize)
	if err != nil {
		return err
	}
	in, hl := &params.InitDMEM, &params.History
	reset := in.BRCFunc.GetInt(d) == params.BRCFuncReset && hl.Magic.Get(hist) == params.HistoryMagic
	qp := in.InitialQP.GetInt(d)
	if !reset {
		clear(hist[:params.HistorySize])
		for i := range hl.LastQP.Count {
			hl.LastQP.At(i).SetInt(hist, qp)
		}
	}

	hl.Magic.Set(hist, params.HistoryMagic)
	hl.Mode.Set(hist, in.Mode.Get(d))
	hl.Codec.Set(hist, in.Codec.Get(d))
	hl.MinQP.Set(hist, in.MinQP.Get(d))
	hl.MaxQP.Set(hist, in.MaxQP.Get(d))
	hl.TargetBitrate.Set(hist, in.TargetBitrate.Get(d))
	hl.BufferSize.Set(hist, in.BufferSize.Get(d))
	hl.InputBitsPerFrame.Set(hist, in.InputBitsPerFrame.Get(d))
	hl.Fullness.SetInt(hist, in.InitBufferFullness.GetInt(d))
	hl.MaxFrameBytes.Set(hist, in.MaxFrameBytes.Get(d))
	hl.OvershootPct.Set(hist, in.OvershootCBRPct.Get(d))
	hl.InitialQP.SetInt(hist, qp)
	hl.PassQP.SetInt(hist, qp)
	g.regs[mi.HuCStatus] = HuCStatusOK

	slogger().Debug("hwsim: BRC init",
		slog.Bool("reset", reset),
		slog.Int("qp", qp),
		slog.Uint64("bitrate", uint64(in.TargetBitrate.Get(d))),
	)
	return nil
}

// brcUpdate picks the QP of a pass and writes the second-level image
// state batch of the pass.
func (g *GPU) brcUpdate(d []byte) error {
	hist, err := g.region(pipeline.RegionHistory, params.HistorySize)
	if err != nil {
		return err
	}
	u, hl := &params.UpdateDMEM, &params.History
	codec := params.CodecFromFirmware(uint8(u.Codec.Get(d)))
	ft := min(u.FrameType.GetInt(d), hl.LastQP.Count-1)
	pass := u.CurrentPass.GetInt(d)
	first := u.Flags.Get(d)&params.UpdateFlagFirstPass != 0
	initialized := hl.Magic.Get(hist) == params.HistoryMagic

	var qp int
	switch {
	case !initialized:
		g.regs[mi.HuCStatus] = HuCStatusNoHistory
		qp = u.BaseQP.GetInt(d)
	case first:
		g.regs[mi.HuCStatus] = HuCStatusOK
		if err := g.absorbStats(hist); err != nil {
			return err
		}
		qp = firstPassQP(d, hist, ft)
	default:
		g.regs[mi.HuCStatus] = HuCStatusOK
		if qp, err = g.nextPassQP(hist, pass); err != nil {
			return err
		}
	}
	lo, hi := u.MinQP.GetInt(d), u.MaxQP.GetInt(d)
	if hi == 0 {
		hi = params.NumQP - 1
	}
	qp = max(lo, min(hi, qp))

	var budget uint64
	if initialized {
		budget = frameBudget(hist, ft)
	}
	if err := g.writeImageBatch(codec, qp, budget, hist, d); err != nil {
		return err
	}

	if initialized {
		hl.PassQP.SetInt(hist, qp)
		hl.LastQP.At(ft).SetInt(hist, qp)
		if first {
			hl.FrameCount.Set(hist, hl.FrameCount.Get(hist)+1)
		}
	}
	slogger().Debug("hwsim: BRC update",
		slog.Int("pass", pass),
		slog.Int("frameType", ft),
		slog.Int("qp", qp),
		slog.Uint64("budget", budget),
	)
	return nil
}

// absorbStats folds the statistics of the previous frame into the history.
func (g *GPU) absorbStats(hist []byte) error {
	if g.eng.huc.regions[pipeline.RegionStats] == 0 {
		return nil
	}
	st, err := g.region(pipeline.RegionStats, params.FrameStatsSize)
	if err != nil {
		return err
	}
	fs, hl := &params.FrameStats, &params.History
	n := fs.BytesFrame.Get(st)
	if n == 0 {
		return nil
	}
	ft := min(fs.FrameType.GetInt(st), hl.LastQP.Count-1)
	hl.LastBits.At(ft).Set(hist, n*8)
	hl.LastQP.At(ft).SetInt(hist, fs.QP.GetInt(st))

	full := hl.Fullness.GetInt(hist) + hl.InputBitsPerFrame.GetInt(hist) - int(n)*8
	full = max(0, min(hl.BufferSize.GetInt(hist), full))
	hl.Fullness.SetInt(hist, full)

	// Consumed; the next frame's first pass sees it only if the PAK ran.
	fs.BytesFrame.Set(st, 0)
	return nil
}

// firstPassQP adjusts the last QP of the frame type by how far its last
// size was from budget, then nudges it by the buffer fullness in CBR.
func firstPassQP(d, hist []byte, ft int) int {
	u, hl := &params.UpdateDMEM, &params.History
	qp := hl.LastQP.At(ft).GetInt(hist)
	bits := uint64(hl.LastBits.At(ft).Get(hist))
	budget := frameBudget(hist, ft)
	if bits > 0 && budget > 0 {
		ratio := bits * 100 / budget
		step := 0
		for i := range u.GlobalRateRatio.Count {
			if ratio >= uint64(u.GlobalRateRatio.At(i).Get(d)) {
				step++
			}
		}
		qp += u.GlobalRateQPAdj.At(step).GetInt(d)
	}

	if params.ModeFromFirmware(uint8(hl.Mode.Get(hist))) == hw.RateControlCBR {
		size := hl.BufferSize.GetInt(hist)
		full := hl.Fullness.GetInt(hist)
		switch {
		case size > 0 && full*100 < size*fullnessLowPct:
			qp++
		case size > 0 && full*100 > size*fullnessHighPct:
			qp--
		}
	}
	return qp
}

// nextPassQP applies the PAK's suggested delta of the previous pass to
// the QP that pass was coded with.
func (g *GPU) nextPassQP(hist []byte, pass int) (int, error) {
	hl := &params.History
	qp := hl.PassQP.GetInt(hist)
	if pass < 1 {
		return qp, nil
	}
	slots, err := g.region(pipeline.RegionPAKStatus, pass*params.PAKStatusSlotSize)
	if err != nil {
		return 0, err
	}
	st := params.PAKStatus.ImageStatus.Get(slots[(pass-1)*params.PAKStatusSlotSize:])
	delta := mi.StatusQPDelta(st)
	switch {
	case st&mi.StatusFrameMaxExceeded != 0:
		delta = max(delta, 1)
	case st&mi.StatusFrameMinNotReached != 0:
		delta = min(delta, -1)
	default:
		delta = 0
	}
	return qp + delta, nil
}

// frameBudget returns the bit budget of a frame type: intra frames get
// twice the average, B frames three quarters.
func frameBudget(hist []byte, ft int) uint64 {
	in := uint64(params.History.InputBitsPerFrame.Get(hist))
	switch ft {
	case int(hw.FrameI.FirmwareCode()):
		return in * 2
	case int(hw.FrameB.FirmwareCode()):
		return in * 3 / 4
	default:
		return in
	}
}

// writeImageBatch copies the host image state into the batch of the pass,
// sets its QP and frame-size bounds and terminates it.
func (g *GPU) writeImageBatch(codec hw.Codec, qp int, budget uint64, hist, d []byte) error {
	n := params.ImageStateSize(codec)
	in, err := g.region(pipeline.RegionImageInput, n)
	if err != nil {
		return err
	}
	cd, err := g.region(pipeline.RegionConstData, params.ConstDataSize)
	if err != nil {
		return err
	}
	out, err := g.region(pipeline.RegionImageBatch, n+4)
	if err != nil {
		return err
	}
	copy(out[:n], in[:n])
	params.SetImageQP(out, codec, qp, cd)

	hl := &params.History
	maxFrame := params.UpdateDMEM.MaxFrameBytes.Get(d)
	if maxFrame == 0 {
		maxFrame = hl.MaxFrameBytes.Get(hist)
	}
	mode := params.ModeFromFirmware(uint8(hl.Mode.Get(hist)))
	//nolint:gosec // G115: percentage fits 8 bits
	maxBytes, minBytes := params.FrameSizeBounds(mode, budget, uint8(hl.OvershootPct.Get(hist)), maxFrame)
	params.SetImageFrameBounds(out, codec, maxBytes, minBytes)
	binary.LittleEndian.PutUint32(out[n:], mi.BatchBufferEnd.Header(mi.BatchBufferEndLen))
	return nil
}
