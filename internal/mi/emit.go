// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mi

import (
	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/resource"
)

// Command lengths in dwords.
const (
	BatchBufferEndLen   = 1
	FlushDWLen          = 4
	StoreRegisterMemLen = 4
	LoadRegisterImmLen  = 3
	StoreDataImmLen     = 4
	BatchBufferStartLen = 3
	ConditionalEndLen   = 4
)

// Header flag bits.
const (
	// BatchBufferStartSecondLevel marks a call into a second-level batch
	// that returns to the caller at its MI_BATCH_BUFFER_END.
	BatchBufferStartSecondLevel uint32 = 1 << 22

	// ConditionalEndMaskMode makes MI_CONDITIONAL_BATCH_BUFFER_END AND the
	// value at the address with the mask dword that follows it.
	ConditionalEndMaskMode uint32 = 1 << 19
)

// Begin reserves n dwords and writes the header of op.
func Begin(b *cmdbuf.Buffer, op Opcode, n int) error {
	if err := b.Begin(n); err != nil {
		return err
	}
	b.Emit(op.Header(n))
	return nil
}

// Command emits a command made of its header and inline payload.
func Command(b *cmdbuf.Buffer, op Opcode, payload ...uint32) error {
	if err := Begin(b, op, 1+len(payload)); err != nil {
		return err
	}
	b.Emit(payload...)
	b.Advance()
	return nil
}

// EmitBatchBufferEnd ends the current batch.
func EmitBatchBufferEnd(b *cmdbuf.Buffer) error {
	return Command(b, BatchBufferEnd)
}

// EmitFlushDW waits for outstanding pipeline writes.
func EmitFlushDW(b *cmdbuf.Buffer) error {
	return Command(b, FlushDW, 0, 0, 0)
}

// EmitStoreRegisterMem copies reg to offset bytes into h.
func EmitStoreRegisterMem(b *cmdbuf.Buffer, reg Register, h resource.Handle, offset uint32) error {
	if err := Begin(b, StoreRegisterMem, StoreRegisterMemLen); err != nil {
		return err
	}
	b.Emit(uint32(reg))
	b.EmitAddress(h, true, offset)
	b.Advance()
	return nil
}

// EmitLoadRegisterImm writes v to reg.
func EmitLoadRegisterImm(b *cmdbuf.Buffer, reg Register, v uint32) error {
	return Command(b, LoadRegisterImm, uint32(reg), v)
}

// EmitStoreDataImm writes v to offset bytes into h.
func EmitStoreDataImm(b *cmdbuf.Buffer, h resource.Handle, offset, v uint32) error {
	if err := Begin(b, StoreDataImm, StoreDataImmLen); err != nil {
		return err
	}
	b.EmitAddress(h, true, offset)
	b.Emit(v)
	b.Advance()
	return nil
}

// EmitBatchBufferStart jumps to the batch at offset bytes into h.
func EmitBatchBufferStart(b *cmdbuf.Buffer, h resource.Handle, offset uint32, secondLevel bool) error {
	if err := b.Begin(BatchBufferStartLen); err != nil {
		return err
	}
	hdr := BatchBufferStart.Header(BatchBufferStartLen)
	if secondLevel {
		hdr |= BatchBufferStartSecondLevel
	}
	b.Emit(hdr)
	b.EmitAddress(h, false, offset)
	b.Advance()
	return nil
}

// EmitConditionalEnd ends the batch when the dword at offset bytes into h
// is less than or equal to compare. In mask mode the dword is first ANDed
// with the mask dword stored right after it.
func EmitConditionalEnd(b *cmdbuf.Buffer, h resource.Handle, offset, compare uint32, maskMode bool) error {
	if err := b.Begin(ConditionalEndLen); err != nil {
		return err
	}
	hdr := ConditionalBatchBufferEnd.Header(ConditionalEndLen)
	if maskMode {
		hdr |= ConditionalEndMaskMode
	}
	b.Emit(hdr, compare)
	b.EmitAddress(h, false, offset)
	b.Advance()
	return nil
}

// Address reads the 48-bit address stored at words[i:i+2].
func Address(words []uint32, i int) uint64 {
	return uint64(words[i]) | uint64(words[i+1]&0xFFFF)<<32
}
