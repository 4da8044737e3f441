// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwenc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/bits"

	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/pipeline"
	"github.com/gogpu/hwenc/internal/ratectl"
	"github.com/gogpu/hwenc/surface"
)

// FrameParams are the per-frame inputs of EncodeFrame.
type FrameParams struct {
	Type FrameType

	// Picture is uploaded into the source surface. When nil the source
	// surface is encoded as it is.
	Picture image.Image

	// QP overrides Config.QP for a frame without BRC.
	QP int

	// ROI lists at most MaxROI regions of interest. Where regions overlap
	// the first one wins.
	ROI []ROI

	// Headers are packed header bytes (sequence and picture headers)
	// inserted ahead of the first slice.
	Headers [][]byte
	// SliceHeaders are packed per-slice header bytes.
	SliceHeaders [][]byte

	SceneChange  bool
	WeightedPred bool
}

// FrameResult is the outcome of one encoded frame.
type FrameResult struct {
	FrameNum uint32
	Type     FrameType

	// Bytes is the coded size reported by the PAK.
	Bytes int
	// Passes is the number of PAK passes that ran; PassBudget is the
	// number that could have.
	Passes     int
	PassBudget int
	// QP is the quantizer of the accepted pass, on the AVC scale.
	QP int

	BRC bool
	// Converged is false when the frame was accepted after the last pass
	// with its size outside the window the firmware programmed.
	Converged bool
	Overflow  bool
	Underflow bool

	// TargetSize is the BRC target in bits handed to the firmware.
	TargetSize    uint64
	TargetWrapped bool

	// Bitstream is a copy of the coded bytes.
	Bitstream []byte

	// Traces are the sequencer states of every pass that was submitted.
	Traces []Trace
}

// NextFrameType returns I at the start of every GOP and P otherwise.
func (s *Session) NextFrameType() FrameType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs.Len() == 0 || s.cfg.GOPSize <= 1 || int(s.frameNum)%s.cfg.GOPSize == 0 {
		return FrameI
	}
	return FrameP
}

// EncodeFrame encodes one frame.
//
// Without BRC a single pass runs at a fixed QP. With BRC the firmware
// picks the QP of every pass and the frame is re-encoded until the PAK
// reports a size inside the window or the pass budget is spent.
//
// Capability and parameter errors abort the frame only. Resource,
// submission and firmware errors fail the session: every later call
// returns ErrSessionFailed.
func (s *Session) EncodeFrame(ctx context.Context, p FrameParams) (*FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.failed != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionFailed, s.failed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureSlot(); err != nil {
		return nil, s.frameError(err)
	}

	f, pic, err := s.frame(&p)
	if err != nil {
		return nil, s.frameError(err)
	}
	if err := pipeline.Check(s.caps, f); err != nil {
		return nil, s.frameError(err)
	}
	if err := s.refs.Validate(s.reg, f.Res.Recon); err != nil {
		return nil, s.frameError(err)
	}
	if err := s.prepare(f, pic, &p); err != nil {
		return nil, s.frameError(err)
	}

	res, err := s.run(ctx, f, pic, &p)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The firmware history may hold a partial frame.
			s.rc.RequestReset()
			return nil, err
		}
		return nil, s.frameError(err)
	}
	s.finish(f, res)
	return res, nil
}

// frameQP returns the fixed QP of a frame without BRC.
func (s *Session) frameQP(p *FrameParams) int {
	qp := s.cfg.QP
	if p.QP > 0 {
		qp = p.QP
	}
	return max(s.cfg.MinQP, min(s.cfg.MaxQP, qp))
}

// frame builds the sequencer frame and the picture parameters of p.
func (s *Session) frame(p *FrameParams) (*pipeline.Frame, *params.Picture, error) {
	z := &s.sized
	brc := s.cfg.RateControl.BRC()
	zones, err := params.Zones(p.ROI)
	if err != nil {
		return nil, nil, err
	}

	f := &pipeline.Frame{
		Codec:        s.cfg.Codec,
		Type:         p.Type,
		Width:        z.width,
		Height:       z.height,
		Pitch:        z.source.Pitch,
		QP:           s.frameQP(p),
		BRC:          brc,
		WeightedPred: p.WeightedPred,
		NumROI:       len(p.ROI),
		Headers:      p.Headers,
		SliceHeaders: p.SliceHeaders,
	}
	if s.cfg.Codec == CodecVP9 {
		for i, d := range zones {
			f.SegmentQIndex[i] = s.tables.SegmentQIndexDelta(d)
		}
	}

	r := &f.Res
	r.Source = z.source.Handle
	r.Scaled = s.cur.Scaled.Handle
	r.Recon = s.cur.Picture.Handle
	if p.Type != FrameI {
		r.Refs, r.RefsDS = s.refs.Handles(s.cfg.NumRefs)
	}
	r.RowStore = z.rowStore
	r.MVTemporal = z.mvTemporal
	r.Coded = z.coded
	r.CodedSize = z.codedSize
	if len(p.ROI) > 0 {
		r.StreamIn = z.streamIn
	}
	fx := &s.fixed
	r.Stats = fx.stats
	r.PAKStatus = fx.pakStatus
	if brc {
		r.History = fx.history
		r.InitDMEM = fx.initDMEM
		r.UpdateDMEM = fx.updateDMEM
		r.HuCStatus = fx.hucStatus
		r.ImageInput = fx.imageInput
		r.ImageBatch = fx.imageBatch
		r.ConstData = fx.constData
	}

	f.Slices = s.slices(f, len(r.Refs))

	pic := &params.Picture{
		Codec:         f.Codec,
		FrameType:     f.Type,
		Width:         f.Width,
		Height:        f.Height,
		QP:            f.QP,
		MinQP:         s.cfg.MinQP,
		MaxQP:         s.cfg.MaxQP,
		BRC:           brc,
		MaxFrameBytes: s.cfg.MaxFrameBytes,
		Zones:         zones,
		NumROI:        len(p.ROI),
		Transform8x8:  true,
		CABAC:         true,
	}
	if f.Codec == CodecVP9 {
		pic.Log2TileCols = bits.Len(uint(len(f.Slices))) - 1
	}
	return f, pic, nil
}

// slices splits the frame into Config.Slices slices of whole macroblock
// rows (AVC) or tile columns of whole super-block columns (VP9). The
// remainder goes to the first slices.
func (s *Session) slices(f *pipeline.Frame, refs int) []params.Slice {
	w, h := f.Blocks(s.caps.BlockSize)
	units, unitBlocks := h, w
	if f.Codec == CodecVP9 {
		units, unitBlocks = w, 1
	}
	n := max(1, min(s.cfg.Slices, units))
	out := make([]params.Slice, n)
	first := 0
	for i := range out {
		u := units / n
		if i < units%n {
			u++
		}
		out[i] = params.Slice{
			Type:       f.Type,
			FirstBlock: first,
			NumBlocks:  u * unitBlocks,
			QP:         f.QP,
			NumRefsL0:  refs,
			Index:      i,
			Last:       i == n-1,
		}
		first += u * unitBlocks
	}
	return out
}

// prepare writes the host-side blocks of the frame and uploads its
// picture.
func (s *Session) prepare(f *pipeline.Frame, pic *params.Picture, p *FrameParams) error {
	err := params.WriteBlock(s.reg, f.Res.PAKStatus, func(b []byte) error {
		clear(b)
		for pass := range s.caps.MaxPasses {
			params.PAKStatus.ImageStatusMask.Set(b[passSlot(pass):], mi.StatusNeedsPass)
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = params.WriteBlock(s.reg, f.Res.Coded, func(b []byte) error {
		clear(b[:params.CodedStatusSize])
		return nil
	})
	if err != nil {
		return err
	}

	if len(p.ROI) > 0 {
		err := params.WriteBlock(s.reg, f.Res.StreamIn, func(b []byte) error {
			if f.Codec == CodecVP9 {
				return params.WriteSegmentMap(b, p.ROI, f.Width, f.Height)
			}
			return params.WriteStreamIn(b, p.ROI, pic.WidthInMBs(), pic.HeightInMBs())
		})
		if err != nil {
			return err
		}
	}

	if f.BRC {
		err = params.WriteBlock(s.reg, f.Res.ImageInput, func(b []byte) error {
			_, err := params.WriteImageState(b, pic, &s.tables)
			return err
		})
	} else {
		f.ImageState = make([]byte, params.ImageStateSize(f.Codec))
		_, err = params.WriteImageState(f.ImageState, pic, &s.tables)
	}
	if err != nil {
		return err
	}

	if p.Picture != nil {
		if err := s.upload(p.Picture); err != nil {
			return err
		}
	}
	return s.downscale()
}

// initBRC writes the init or reset DMEM when the rate-control state asks
// for it and returns the QP the first pass starts from.
func (s *Session) initBRC(f *pipeline.Frame) (int, error) {
	c := &s.cfg
	qp := c.InitialQP
	if qp == 0 {
		qp = ratectl.InitialQP(uint64(f.Width*f.Height*3/2), c.TargetBitrate,
			uint64(c.FPSNum), uint64(c.FPSDen), c.VBVBits)
	}
	qp = max(c.MinQP, min(c.MaxQP, qp))
	if !s.rc.NeedsInit() {
		if _, last := s.rc.Last(); last > 0 {
			qp = last
		}
		return qp, nil
	}

	reset := s.rc.Resetting()
	in := &params.InitInput{
		Codec:          c.Codec,
		Mode:           c.RateControl,
		Reset:          reset,
		Rate:           c.rateParams(),
		MaxRate:        c.MaxBitrate,
		MaxFrameBytes:  c.MaxFrameBytes,
		GopP:           max(0, c.GOPSize-1),
		Width:          f.Width,
		Height:         f.Height,
		MinQP:          c.MinQP,
		MaxQP:          c.MaxQP,
		InitialQP:      qp,
		MaxPasses:      c.passBudget(s.caps),
		FrameSizeBytes: uint64(f.Width * f.Height * 3 / 2),
	}
	err := params.WriteBlock(s.reg, f.Res.InitDMEM, func(b []byte) error {
		return params.BuildInitDMEM(b, in, &s.tables)
	})
	if err != nil {
		return 0, err
	}
	f.FirmwareInit = true
	s.rc.Reset()
	if reset {
		s.stats.Resets++
	}
	s.log.Debug("hwenc: BRC init",
		slog.Bool("reset", reset),
		slog.Int("qp", qp),
		slog.Uint64("bitrate", c.TargetBitrate),
		slog.Uint64("vbv", c.VBVBits),
	)
	return qp, nil
}

// run submits the passes of f and reads back the outcome.
func (s *Session) run(ctx context.Context, f *pipeline.Frame, pic *params.Picture, p *FrameParams) (*FrameResult, error) {
	budget := 1
	res := &FrameResult{
		FrameNum: s.frameNum,
		Type:     f.Type,
		BRC:      f.BRC,
		QP:       f.QP,
	}

	var (
		baseQP int
		upd    params.UpdateInput
	)
	if f.BRC {
		budget = s.cfg.passBudget(s.caps)
		qp, err := s.initBRC(f)
		if err != nil {
			return nil, err
		}
		baseQP = qp
		res.TargetSize, res.TargetWrapped = s.rc.Update()
		wMB, hMB := f.Blocks(16)
		c := &s.cfg
		upd = params.UpdateInput{
			Codec:          c.Codec,
			FrameType:      f.Type,
			FrameNumber:    s.frameNum,
			TargetBits:     res.TargetSize,
			TargetWrapped:  res.TargetWrapped,
			PeakBits:       peakBits(c),
			MaxFrameBytes:  c.MaxFrameBytes,
			BaseQP:         baseQP,
			MinQP:          c.MinQP,
			MaxQP:          c.MaxQP,
			WidthInBlocks:  wMB,
			HeightInBlocks: hMB,
			SceneChange:    p.SceneChange,
			NumROI:         pic.NumROI,
			Zones:          pic.Zones,
		}
	}
	res.PassBudget = budget
	firmwareInit := f.FirmwareInit

	for _, pass := range ratectl.Passes(budget) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f.FirmwareInit = firmwareInit && pass.First()
		if f.BRC {
			upd.Pass = pass
			err := params.WriteBlock(s.reg, f.Res.UpdateDMEM[pass.Index], func(b []byte) error {
				return params.BuildUpdateDMEM(b, &upd, &s.tables)
			})
			if err != nil {
				return nil, err
			}
		}

		trace, err := s.submit(ctx, f, pass)
		if err != nil {
			return nil, err
		}
		res.Traces = append(res.Traces, trace)

		slot, err := s.reg.Read(f.Res.PAKStatus, passSlot(pass.Index), params.PAKStatusSlotSize)
		if err != nil {
			return nil, err
		}
		ps := &params.PAKStatus
		//nolint:gosec // G115: pass index is small
		if ps.Executed.Get(slot) != uint32(pass.Index+1) {
			if f.BRC && pass.First() {
				return nil, fmt.Errorf("%w: HuC gate skipped the pass", ErrFirmware)
			}
			return nil, fmt.Errorf("%w: pass %d did not execute", ErrSessionFailed, pass.Index)
		}
		res.Passes++
		status := ps.ImageStatus.Get(slot)
		res.Bytes = int(ps.BytesFrame.Get(slot))
		res.QP = int(ps.QPStatus.Get(slot))

		s.log.Debug("hwenc: pass done",
			slog.Uint64("frame", uint64(s.frameNum)),
			slog.Int("pass", pass.Index),
			slog.Int("qp", res.QP),
			slog.Int("bytes", res.Bytes),
			slog.Uint64("target", res.TargetSize),
			slog.String("status", fmt.Sprintf("%#x", status)),
		)
		if status&mi.StatusNeedsPass == 0 {
			res.Converged = true
			break
		}
		if pass.Last() {
			res.Overflow = status&mi.StatusFrameMaxExceeded != 0
			res.Underflow = status&mi.StatusFrameMinNotReached != 0
		}
	}
	return res, s.readCoded(res)
}

// peakBits is the per-frame share of the peak bitrate.
func peakBits(c *Config) uint64 {
	if c.FPSNum == 0 {
		return 0
	}
	return c.MaxBitrate * uint64(c.FPSDen) / uint64(c.FPSNum)
}

// submit records one pass into the command buffer and hands it to the
// submitter.
func (s *Session) submit(ctx context.Context, f *pipeline.Frame, pass ratectl.Pass) (Trace, error) {
	s.cmd.Reset()
	trace, err := s.seq.Run(s.cmd, f, pass)
	if err != nil {
		return nil, err
	}
	if err := s.seq.Finish(s.cmd); err != nil {
		return nil, err
	}
	if err := s.cmd.Resolve(s.reg.Address); err != nil {
		return nil, err
	}
	if err := s.sub.Submit(ctx, s.cmd); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: submit: %w", ErrSessionFailed, err)
	}
	return trace, nil
}

// readCoded reads the status segment and the bitstream of the coded
// buffer.
func (s *Session) readCoded(res *FrameResult) error {
	z := &s.sized
	seg, err := s.reg.Read(z.coded, 0, params.CodedStatusSize)
	if err != nil {
		return err
	}
	cs := &params.CodedStatus
	res.Bytes = int(cs.BytesFrame.Get(seg))
	if res.Passes > 0 {
		res.QP = int(cs.QP.Get(seg))
	}
	n := min(res.Bytes, z.codedSize-params.CodedStatusSize)
	if n <= 0 {
		return nil
	}
	res.Bitstream, err = s.reg.Read(z.coded, params.CodedStatusSize, n)
	return err
}

// finish advances the rate-control state and the reference set.
func (s *Session) finish(f *pipeline.Frame, res *FrameResult) {
	//nolint:gosec // G115: frame sizes are positive
	s.rc.EndFrame(uint64(res.Bytes)*8, res.QP)
	s.stats.Frames++
	s.stats.Passes += uint64(res.Passes)
	//nolint:gosec // G115: frame sizes are positive
	s.stats.Bytes += uint64(res.Bytes)
	if f.BRC && !res.Converged {
		s.stats.NotConverged++
		s.log.Warn("hwenc: BRC did not converge",
			slog.Uint64("frame", uint64(res.FrameNum)),
			slog.Int("passes", res.Passes),
			slog.Int("bytes", res.Bytes),
			slog.Uint64("target", res.TargetSize),
			slog.Bool("overflow", res.Overflow),
			slog.Bool("underflow", res.Underflow),
		)
	}

	s.cur.FrameNum = s.frameNum
	if evicted, ok := s.refs.Promote(s.cur); ok {
		s.spare = append(s.spare, evicted)
	}
	s.cur = surface.Reference{}
	s.frameNum++
}

func (s *Session) upload(img image.Image) error {
	return surface.Upload(s.reg, s.sized.source, img)
}

// downscale refreshes the 4x surface of the current slot from the source.
func (s *Session) downscale() error {
	return surface.Downscale4x(s.reg, s.sized.source, s.cur.Scaled)
}
