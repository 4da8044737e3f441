// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwsim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/resource"
)

// Simulator errors.
var (
	// ErrBadCommand is returned for words that do not decode to a known
	// command or overrun their batch.
	ErrBadCommand = errors.New("hwsim: bad command")

	// ErrBadAddress is returned when a command references memory outside
	// every live resource.
	ErrBadAddress = errors.New("hwsim: bad address")
)

// maxBatchDepth is the first-level batch plus one second level.
const maxBatchDepth = 2

// HUC_STATUS codes written by the firmware model.
const (
	HuCStatusOK        = 0
	HuCStatusNoHistory = 1
)

// Config configures the simulated engine.
type Config struct {
	// FirmwareMissing models an engine whose HuC firmware did not load:
	// HUC_STATUS2 reads without the loaded bit and HUC_START does nothing.
	FirmwareMissing bool

	// Complexity scales every modeled frame size. Defaults to 1.
	Complexity float64

	// Tables are the constant tables of the rate model. Defaults to
	// params.DefaultTables.
	Tables *params.Tables
}

func (c Config) withDefaults() Config {
	if c.Complexity <= 0 {
		c.Complexity = 1
	}
	if c.Tables == nil {
		t := params.DefaultTables()
		c.Tables = &t
	}
	return c
}

// Stats counts simulator activity.
type Stats struct {
	Submissions     uint64
	Commands        uint64
	ConditionalEnds uint64
	FirmwareRuns    uint64
	PAKPasses       uint64
}

// GPU executes command buffers against the buffers of one registry.
//
// GPU is safe for concurrent use; submissions are serialized.
type GPU struct {
	reg *resource.Registry

	mu    sync.Mutex
	cfg   Config
	regs  map[mi.Register]uint32
	trace []mi.Opcode
	stats Stats
	eng   engine
}

// New creates a simulated engine over reg.
func New(reg *resource.Registry, cfg Config) *GPU {
	g := &GPU{
		reg:  reg,
		cfg:  cfg.withDefaults(),
		regs: make(map[mi.Register]uint32),
	}
	if !g.cfg.FirmwareMissing {
		g.regs[mi.HuCStatus2] = mi.HuCFirmwareLoaded
	}
	return g
}

// SetComplexity changes the complexity factor for later submissions.
func (g *GPU) SetComplexity(c float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c <= 0 {
		c = 1
	}
	g.cfg.Complexity = c
}

// Submit resolves b against the registry when needed and executes it to
// its end. It blocks until the simulated engine is idle.
func (g *GPU) Submit(ctx context.Context, b *cmdbuf.Buffer) error {
	if !b.Resolved() {
		if err := b.Resolve(g.reg.Address); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.stats.Submissions++
	g.trace = g.trace[:0]
	g.eng = engine{}
	if err := g.exec(ctx, b.Words(), 0); err != nil {
		return fmt.Errorf("hwsim: %s: %w", b.Label(), err)
	}
	return nil
}

// Register returns the current value of an MMIO register.
func (g *GPU) Register(r mi.Register) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.regs[r]
}

// Trace returns the commands the last submission executed, in order.
// Commands skipped by a conditional batch end are absent.
func (g *GPU) Trace() []mi.Opcode {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]mi.Opcode, len(g.trace))
	copy(out, g.trace)
	return out
}

// Stats returns a snapshot of the activity counters.
func (g *GPU) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// exec runs one batch. It returns at MI_BATCH_BUFFER_END, at a taken
// conditional end or when the words run out.
func (g *GPU) exec(ctx context.Context, words []uint32, depth int) error {
	for i := 0; i < len(words); {
		if err := ctx.Err(); err != nil {
			return err
		}
		op, n := mi.Decode(words[i])
		if i+n > len(words) {
			return fmt.Errorf("%w: %s at dword %d overruns the batch", ErrBadCommand, op, i)
		}
		g.trace = append(g.trace, op)
		g.stats.Commands++

		end, err := g.dispatch(ctx, op, words[i:i+n], depth)
		if err != nil {
			return fmt.Errorf("%s at dword %d: %w", op, i, err)
		}
		if end {
			return nil
		}
		i += n
	}
	return nil
}

func (g *GPU) dispatch(ctx context.Context, op mi.Opcode, cmd []uint32, depth int) (end bool, err error) {
	e := &g.eng
	switch op {
	case mi.Noop:
	case mi.BatchBufferEnd:
		return true, nil
	case mi.LoadRegisterImm:
		g.regs[mi.Register(cmd[1])] = cmd[2]
	case mi.StoreRegisterMem:
		return false, g.write32(mi.Address(cmd, 2), g.regs[mi.Register(cmd[1])])
	case mi.StoreDataImm:
		return false, g.write32(mi.Address(cmd, 1), cmd[3])
	case mi.FlushDW:
		return false, g.encode()
	case mi.BatchBufferStart:
		return g.batchStart(ctx, cmd, depth)
	case mi.ConditionalBatchBufferEnd:
		return g.conditionalEnd(cmd)

	case mi.MFXPipeModeSelect:
		e.start(hw.CodecAVC)
	case mi.HCPPipeModeSelect:
		e.start(hw.CodecVP9)
	case mi.VDEncPipeBufAddr:
		e.streamIn = mi.Address(cmd, 1+4*2)
		e.stats = mi.Address(cmd, 1+8*2)
	case mi.MFXIndObjBaseAddr, mi.HCPIndObjBaseAddr:
		e.coded = mi.Address(cmd, 3)
		e.codedEnd = mi.Address(cmd, 5)
	case mi.MFXAVCImgState:
		e.setImage(0, cmd)
	case mi.VDEncImgState:
		e.setImage(params.AVCImgStateLen*4, cmd)
	case mi.HCPVP9PicState:
		e.setImage(0, cmd)
	case mi.HCPVP9SegmentState:
		e.setSegment(cmd)
	case mi.MFXAVCSliceState, mi.HCPTileCodingState:
		e.addSlice(cmd)
	case mi.MFXInsertObject, mi.HCPInsertObject:
		e.addInsert(cmd)

	case mi.HuCIMEMState:
		e.huc.descriptor = cmd[4]
	case mi.HuCDMEMState:
		e.huc.dmem = mi.Address(cmd, 1)
	case mi.HuCVirtualAddrState:
		for k := range e.huc.regions {
			e.huc.regions[k] = mi.Address(cmd, 1+3*k)
		}
	case mi.HuCStart:
		return false, g.runFirmware()

	default:
		if !op.Known() {
			return false, fmt.Errorf("%w: header %#08x", ErrBadCommand, cmd[0])
		}
	}
	return false, nil
}

func (g *GPU) batchStart(ctx context.Context, cmd []uint32, depth int) (bool, error) {
	if depth+1 >= maxBatchDepth {
		return false, fmt.Errorf("%w: batch nesting deeper than %d", ErrBadCommand, maxBatchDepth)
	}
	mem, err := g.mem(mi.Address(cmd, 1), 4)
	if err != nil {
		return false, err
	}
	if err := g.exec(ctx, params.Words(mem[:len(mem)&^3]), depth+1); err != nil {
		return false, err
	}
	// A first-level jump does not return.
	return cmd[0]&mi.BatchBufferStartSecondLevel == 0, nil
}

func (g *GPU) conditionalEnd(cmd []uint32) (bool, error) {
	addr := mi.Address(cmd, 2)
	v, err := g.read32(addr)
	if err != nil {
		return false, err
	}
	if cmd[0]&mi.ConditionalEndMaskMode != 0 {
		mask, err := g.read32(addr + 4)
		if err != nil {
			return false, err
		}
		v &= mask
	}
	if v <= cmd[1] {
		g.stats.ConditionalEnds++
		slogger().Debug("hwsim: conditional batch end taken", "addr", addr, "value", v)
		return true, nil
	}
	return false, nil
}

// mem returns the device view of the resource containing addr, starting
// at addr. At least n bytes must be available.
func (g *GPU) mem(addr uint64, n int) ([]byte, error) {
	h, off, ok := g.reg.Resolve(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrBadAddress, addr)
	}
	b, err := g.reg.Device(h)
	if err != nil {
		return nil, err
	}
	if off+n > len(b) {
		return nil, fmt.Errorf("%w: %d bytes at %#x overrun %s", ErrBadAddress, n, addr, g.reg.Label(h))
	}
	return b[off:], nil
}

func (g *GPU) read32(addr uint64) (uint32, error) {
	b, err := g.mem(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (g *GPU) write32(addr uint64, v uint32) error {
	b, err := g.mem(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}
