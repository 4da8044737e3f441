// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/ratectl"
)

// Steps emits the codec-specific commands of each state. A step may emit
// nothing when the state does not apply to the frame, for example
// reference indices of an intra slice.
type Steps interface {
	// StatusRegisters returns the registers stored after each pass.
	StatusRegisters() StatusRegisters

	PipeModeSelect(b *cmdbuf.Buffer, f *Frame) error
	Surfaces(b *cmdbuf.Buffer, f *Frame) error
	BufferAddresses(b *cmdbuf.Buffer, f *Frame) error
	IndirectObject(b *cmdbuf.Buffer, f *Frame) error
	ImageState(b *cmdbuf.Buffer, f *Frame, pass ratectl.Pass) error
	QuantMatrix(b *cmdbuf.Buffer, f *Frame) error
	RefIdx(b *cmdbuf.Buffer, f *Frame, s *params.Slice) error
	WeightOffset(b *cmdbuf.Buffer, f *Frame, s *params.Slice) error
	SliceState(b *cmdbuf.Buffer, f *Frame, s *params.Slice) error
	HeaderInsert(b *cmdbuf.Buffer, f *Frame, slice int) error
	Walker(b *cmdbuf.Buffer, f *Frame, s *params.Slice) error
}

// StatusRegisters are the PAK registers a pass stores for readback.
type StatusRegisters struct {
	ByteCount         mi.Register
	ByteCountNoHeader mi.Register
	ImageStatus       mi.Register
	QPStatus          mi.Register
}

type stateStep struct {
	s  State
	fn func() error
}

// Sequencer emits the command sequence of one encode pass for a fixed
// codec and hardware generation. It is resolved once per session with
// Lookup and holds no per-frame state.
type Sequencer struct {
	caps  hw.Caps
	steps Steps
}

// Caps returns the capabilities the sequencer was resolved for.
func (q *Sequencer) Caps() hw.Caps { return q.caps }

// Run appends the commands of pass to b and returns the visited states.
//
// The sequence is prefixed with conditional batch ends when BRC is
// enabled (firmware gate) or the pass is not the first (convergence gate
// on the previous pass's image status). It ends with the status stores
// and MI_FLUSH_DW; Finish terminates the batch.
//
// Capability errors are reported before anything is emitted. An emitter
// error leaves b partially written.
func (q *Sequencer) Run(b *cmdbuf.Buffer, f *Frame, pass ratectl.Pass) (Trace, error) {
	if err := Check(q.caps, f); err != nil {
		return nil, err
	}
	if err := checkPass(f, pass); err != nil {
		return nil, err
	}

	var trace Trace
	step := func(s State, fn func() error) error {
		trace = append(trace, s)
		if err := fn(); err != nil {
			return fmt.Errorf("pipeline: %s: %w", s, err)
		}
		return nil
	}
	st := q.steps

	if pass.Index > 0 || f.BRC {
		if err := step(StateConditionalEnd, func() error { return q.conditionalEnd(b, f, pass) }); err != nil {
			return trace, err
		}
	}

	pre := []stateStep{
		{StatePipeSelect, func() error { return st.PipeModeSelect(b, f) }},
		{StateSurface, func() error { return st.Surfaces(b, f) }},
		{StateBufferAddress, func() error { return st.BufferAddresses(b, f) }},
		{StateIndirectObject, func() error { return st.IndirectObject(b, f) }},
	}
	for _, p := range pre {
		if err := step(p.s, p.fn); err != nil {
			return trace, err
		}
	}

	if f.BRC {
		if err := step(StateFirmware, func() error { return q.firmware(b, f, pass) }); err != nil {
			return trace, err
		}
	}
	if err := step(StateImage, func() error { return st.ImageState(b, f, pass) }); err != nil {
		return trace, err
	}
	if err := step(StateQuantMatrix, func() error { return st.QuantMatrix(b, f) }); err != nil {
		return trace, err
	}

	for i := range f.Slices {
		s := &f.Slices[i]
		slice := []stateStep{
			{StateRefIdx, func() error { return st.RefIdx(b, f, s) }},
			{StateWeightOffset, func() error { return st.WeightOffset(b, f, s) }},
			{StateSlice, func() error { return st.SliceState(b, f, s) }},
			{StateHeaderInsert, func() error { return st.HeaderInsert(b, f, i) }},
		}
		if q.caps.SliceWalker {
			slice = append(slice, stateStep{StateWalker, func() error { return st.Walker(b, f, s) }})
		}
		for _, p := range slice {
			if err := step(p.s, p.fn); err != nil {
				return trace, err
			}
		}
	}

	if err := step(StateFlush, func() error { return q.flush(b, f, pass) }); err != nil {
		return trace, err
	}

	slogger().Debug("pipeline: pass emitted",
		slog.String("codec", f.Codec.String()),
		slog.String("frame", f.Type.String()),
		slog.Int("pass", pass.Index),
		slog.Int("passes", pass.Total),
		slog.Bool("brc", f.BRC),
		slog.Int("slices", len(f.Slices)),
		slog.Int("words", b.Len()),
	)
	return trace, nil
}

// Finish terminates the batch with MI_BATCH_BUFFER_END.
func (q *Sequencer) Finish(b *cmdbuf.Buffer) error {
	return mi.EmitBatchBufferEnd(b)
}

func checkPass(f *Frame, pass ratectl.Pass) error {
	if pass.Index < 0 || pass.Index >= pass.Total {
		return fmt.Errorf("%w: pass %d of %d", ErrInvalidFrame, pass.Index, pass.Total)
	}
	if !f.BRC {
		if len(f.ImageState) == 0 {
			return fmt.Errorf("%w: no inline image state", ErrInvalidFrame)
		}
		return nil
	}
	if pass.Index >= len(f.Res.UpdateDMEM) || pass.Index >= len(f.Res.ImageBatch) {
		return fmt.Errorf("%w: no firmware buffers for pass %d", ErrInvalidFrame, pass.Index)
	}
	if f.FirmwareInit && f.Res.InitDMEM.IsZero() {
		return fmt.Errorf("%w: no init DMEM", ErrInvalidFrame)
	}
	return nil
}

// conditionalEnd emits the gates that let the command streamer skip the
// rest of the batch. The mask dwords next to each gated value are written
// by the host.
func (q *Sequencer) conditionalEnd(b *cmdbuf.Buffer, f *Frame, pass ratectl.Pass) error {
	if f.BRC {
		off := uint32(params.HuCStatus.Status2.Offset)
		if err := mi.EmitStoreRegisterMem(b, mi.HuCStatus2, f.Res.HuCStatus, off); err != nil {
			return err
		}
		if err := mi.EmitConditionalEnd(b, f.Res.HuCStatus, off, 0, true); err != nil {
			return err
		}
	}
	if pass.Index > 0 {
		//nolint:gosec // G115: pass index is small
		off := uint32((pass.Index-1)*params.PAKStatusSlotSize + params.PAKStatus.ImageStatus.Offset)
		if err := mi.EmitConditionalEnd(b, f.Res.PAKStatus, off, 0, true); err != nil {
			return err
		}
	}
	return nil
}

// flush stores the PAK status of the pass into its PAK status slot and
// into the coded buffer's status segment, then flushes.
func (q *Sequencer) flush(b *cmdbuf.Buffer, f *Frame, pass ratectl.Pass) error {
	regs := q.steps.StatusRegisters()
	//nolint:gosec // G115: pass index is small
	slot := uint32(pass.Index * params.PAKStatusSlotSize)
	ps, cs := &params.PAKStatus, &params.CodedStatus
	//nolint:gosec // G115: pass index is small
	executed := uint32(pass.Index + 1)

	if err := mi.EmitFlushDW(b); err != nil {
		return err
	}
	stores := []struct {
		reg mi.Register
		off int
	}{
		{regs.ByteCount, ps.BytesFrame.Offset},
		{regs.ByteCountNoHeader, ps.BytesNoHeader.Offset},
		{regs.ImageStatus, ps.ImageStatus.Offset},
		{regs.QPStatus, ps.QPStatus.Offset},
	}
	for _, s := range stores {
		//nolint:gosec // G115: layout offsets are small
		if err := mi.EmitStoreRegisterMem(b, s.reg, f.Res.PAKStatus, slot+uint32(s.off)); err != nil {
			return err
		}
	}
	//nolint:gosec // G115: layout offsets are small
	if err := mi.EmitStoreDataImm(b, f.Res.PAKStatus, slot+uint32(ps.Executed.Offset), executed); err != nil {
		return err
	}

	coded := []struct {
		reg mi.Register
		off int
	}{
		{regs.ByteCount, cs.BytesFrame.Offset},
		{regs.ImageStatus, cs.ImageStatus.Offset},
		{regs.QPStatus, cs.QP.Offset},
	}
	for _, s := range coded {
		//nolint:gosec // G115: layout offsets are small
		if err := mi.EmitStoreRegisterMem(b, s.reg, f.Res.Coded, uint32(s.off)); err != nil {
			return err
		}
	}
	//nolint:gosec // G115: layout offsets are small
	if err := mi.EmitStoreDataImm(b, f.Res.Coded, uint32(cs.Passes.Offset), executed); err != nil {
		return err
	}
	return mi.EmitFlushDW(b)
}
