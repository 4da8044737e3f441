// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/resource"
)

// Surface formats of the surface state commands.
const (
	surfaceFormatPlanar420 = 4
	surfaceFormatY8        = 12
)

// Surface ids of MFX_SURFACE_STATE and HCP_SURFACE_STATE.
const (
	surfaceRecon  = 0
	surfaceSource = 4
)

// command emits a fixed-length command whose payload is written by body.
// body must emit exactly n-1 dwords.
func command(b *cmdbuf.Buffer, op mi.Opcode, n int, body func()) error {
	if err := mi.Begin(b, op, n); err != nil {
		return err
	}
	body()
	b.Advance()
	return nil
}

// emitSerialized copies serialized commands into b one bracket per command.
func emitSerialized(b *cmdbuf.Buffer, data []byte) error {
	if len(data)%4 != 0 {
		return fmt.Errorf("%w: serialized state of %d bytes", ErrInvalidFrame, len(data))
	}
	words := params.Words(data)
	for i := 0; i < len(words); {
		op, n := mi.Decode(words[i])
		if i+n > len(words) {
			return fmt.Errorf("%w: %s at dword %d overruns serialized state", ErrInvalidFrame, op, i)
		}
		if err := b.Begin(n); err != nil {
			return err
		}
		b.Emit(words[i : i+n]...)
		b.Advance()
		i += n
	}
	return nil
}

// surfacePayload is the five-dword body shared by the MFX and VDEnc
// surface state commands.
func surfacePayload(id, format, width, height, pitch int) [5]uint32 {
	//nolint:gosec // G115: frame dimensions are bounded by the capability table
	return [5]uint32{
		uint32(id),
		uint32(width-1) | uint32(height-1)<<16,
		uint32(pitch-1) | uint32(format)<<27,
		uint32(height), // chroma plane row offset
		0,
	}
}

func emitSurface(b *cmdbuf.Buffer, op mi.Opcode, id, format, width, height, pitch int) error {
	p := surfacePayload(id, format, width, height, pitch)
	return mi.Command(b, op, p[:]...)
}

// emitVDEncSurfaces emits the source, reference and 4x downscaled
// reference surface states.
func emitVDEncSurfaces(b *cmdbuf.Buffer, f *Frame) error {
	if err := emitSurface(b, mi.VDEncSrcSurface, surfaceSource, surfaceFormatPlanar420, f.Width, f.Height, f.Pitch); err != nil {
		return err
	}
	if err := emitSurface(b, mi.VDEncRefSurface, surfaceRecon, surfaceFormatPlanar420, f.Width, f.Height, f.Pitch); err != nil {
		return err
	}
	return emitSurface(b, mi.VDEncDSRefSurface, surfaceRecon, surfaceFormatY8, f.Width/4, f.Height/4, f.Pitch/4)
}

// VDEncPipeBufAddrLen is the dword length of VDENC_PIPE_BUF_ADDR_STATE.
const VDEncPipeBufAddrLen = 1 + 9*2

// emitVDEncBufferAddresses emits VDENC_PIPE_BUF_ADDR_STATE.
func emitVDEncBufferAddresses(b *cmdbuf.Buffer, f *Frame) error {
	r := &f.Res
	return command(b, mi.VDEncPipeBufAddr, VDEncPipeBufAddrLen, func() {
		for i := range 3 {
			b.EmitAddress(refAt(r.RefsDS, i), false, 0)
		}
		b.EmitAddress(r.Scaled, false, 0)
		b.EmitAddress(r.StreamIn, false, 0)
		for i := range 3 {
			b.EmitAddress(refAt(r.Refs, i), false, 0)
		}
		b.EmitAddress(r.Stats, true, 0)
	})
}

// emitImageBatch calls the firmware-written image state of pass as a
// second-level batch.
func emitImageBatch(b *cmdbuf.Buffer, f *Frame, pass int) error {
	return mi.EmitBatchBufferStart(b, f.Res.ImageBatch[pass], 0, true)
}

// emitInsert emits one insert-object command carrying data.
func emitInsert(b *cmdbuf.Buffer, op mi.Opcode, data []byte, lastHeader, endOfSlice bool) error {
	l := &params.InsertObject
	dws := (len(data) + 3) / 4
	fixed := l.Alloc()
	bits := (len(data) % 4) * 8
	if bits == 0 && len(data) > 0 {
		bits = 32
	}
	l.BitsInLastDW.SetInt(fixed, bits)
	l.LastHeader.SetBool(fixed, lastHeader)
	l.EndOfSlice.SetBool(fixed, endOfSlice)

	if err := mi.Begin(b, op, 2+dws); err != nil {
		return err
	}
	b.Emit(binary.LittleEndian.Uint32(fixed[4:]))
	for i := 0; i < len(data); i += 4 {
		var w [4]byte
		copy(w[:], data[i:])
		b.Emit(binary.LittleEndian.Uint32(w[:]))
	}
	b.Advance()
	return nil
}

// emitHeaders inserts the frame headers before slice 0 and the packed
// slice header of every slice. The last insert of a slice carries
// LastHeader, and EndOfSlice when no walker follows.
func emitHeaders(b *cmdbuf.Buffer, op mi.Opcode, f *Frame, slice int, walker bool) error {
	var chunks [][]byte
	if slice == 0 {
		chunks = append(chunks, f.Headers...)
	}
	if slice < len(f.SliceHeaders) && len(f.SliceHeaders[slice]) > 0 {
		chunks = append(chunks, f.SliceHeaders[slice])
	}
	if len(chunks) == 0 {
		return emitInsert(b, op, nil, true, !walker)
	}
	for i, c := range chunks {
		last := i == len(chunks)-1
		if err := emitInsert(b, op, c, last, last && !walker); err != nil {
			return err
		}
	}
	return nil
}

// emitSliceState serializes s with op and copies it into b.
func emitSliceState(b *cmdbuf.Buffer, op mi.Opcode, s *params.Slice) error {
	buf := params.SliceState.Alloc()
	params.WriteSliceState(buf, op, *s)
	return emitSerialized(b, buf)
}

// emitWalker starts the encoder on the blocks of s.
func emitWalker(b *cmdbuf.Buffer, s *params.Slice) error {
	buf := params.WalkerState.Alloc()
	params.WriteWalkerState(buf, s.FirstBlock, s.NumBlocks)
	return emitSerialized(b, buf)
}

// qmFlat is a flat 4x4 or 8x8 scaling list packed four entries a dword.
const qmFlat = 0x10101010

// QMStateLen is the dword length of MFX_QM_STATE and HCP_QM_STATE.
const QMStateLen = 18

func emitFlatQM(b *cmdbuf.Buffer, op mi.Opcode, typ uint32) error {
	return command(b, op, QMStateLen, func() {
		b.Emit(typ)
		for range QMStateLen - 2 {
			b.Emit(qmFlat)
		}
	})
}

// refAt returns refs[i] or the zero handle.
func refAt(refs []resource.Handle, i int) resource.Handle {
	if i < len(refs) {
		return refs[i]
	}
	return resource.Handle{}
}

// IndObjBaseAddrLen is the dword length of the indirect object base
// address commands.
const IndObjBaseAddrLen = 7

// emitIndirectObject points the PAK at the coded buffer. The bitstream
// starts after the status segment and is bounded by CodedSize.
func emitIndirectObject(b *cmdbuf.Buffer, op mi.Opcode, f *Frame) error {
	r := &f.Res
	//nolint:gosec // G115: coded buffer sizes are bounded by the allocator
	upper := uint32(r.CodedSize)
	return command(b, op, IndObjBaseAddrLen, func() {
		b.EmitAddress(resource.Handle{}, false, 0) // MV object
		b.EmitAddress(r.Coded, true, params.CodedStatusSize)
		b.EmitAddress(r.Coded, true, upper)
	})
}
