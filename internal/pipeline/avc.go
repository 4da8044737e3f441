// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/ratectl"
	"github.com/gogpu/hwenc/resource"
)

// AVC command lengths in dwords.
const (
	MFXPipeModeSelectLen   = 5
	VDEncPipeModeSelectLen = 2
	MFXSurfaceStateLen     = 6
	MFXPipeBufAddrLen      = 1 + (6+16+1)*2
	MFXBSPBufBaseAddrLen   = 7
	MFXAVCRefIdxStateLen   = 10
	MFXAVCWeightOffsetLen  = 98
)

// MFX_PIPE_MODE_SELECT dword 1 bits.
const (
	mfxStandardAVC  = 2
	mfxModeEncode   = 1 << 4
	mfxBRCEnable    = 1 << 8
	mfxVDEncEnabled = 1 << 9
)

// VDENC_PIPE_MODE_SELECT dword 1 bits.
const vdencStreamIn = 1 << 5

// MFX_QM_STATE matrix types.
const (
	qmIntra4x4 = iota
	qmInter4x4
	qmIntra8x8
	qmInter8x8
)

// avcSteps sequences H.264 on the MFX and VDEnc pipes.
type avcSteps struct {
	caps hw.Caps
}

func newAVCSteps(caps hw.Caps) Steps { return &avcSteps{caps: caps} }

func (s *avcSteps) StatusRegisters() StatusRegisters {
	return StatusRegisters{
		ByteCount:         mi.MFCBitstreamByteCountFrame,
		ByteCountNoHeader: mi.MFCBitstreamByteCountFrameNoHeader,
		ImageStatus:       mi.MFCImageStatusCtrl,
		QPStatus:          mi.MFCQPStatusCount,
	}
}

func (s *avcSteps) PipeModeSelect(b *cmdbuf.Buffer, f *Frame) error {
	dw1 := uint32(mfxStandardAVC | mfxModeEncode | mfxVDEncEnabled)
	if f.BRC {
		dw1 |= mfxBRCEnable
	}
	if err := mi.Command(b, mi.MFXPipeModeSelect, dw1, 0, 0, 0); err != nil {
		return err
	}
	vd := uint32(mfxStandardAVC)
	if f.NumROI > 0 {
		vd |= vdencStreamIn
	}
	return mi.Command(b, mi.VDEncPipeModeSelect, vd)
}

func (s *avcSteps) Surfaces(b *cmdbuf.Buffer, f *Frame) error {
	for _, id := range []int{surfaceRecon, surfaceSource} {
		if err := emitSurface(b, mi.MFXSurfaceState, id, surfaceFormatPlanar420, f.Width, f.Height, f.Pitch); err != nil {
			return err
		}
	}
	return emitVDEncSurfaces(b, f)
}

func (s *avcSteps) BufferAddresses(b *cmdbuf.Buffer, f *Frame) error {
	r := &f.Res
	err := command(b, mi.MFXPipeBufAddr, MFXPipeBufAddrLen, func() {
		b.EmitAddress(r.Recon, true, 0) // pre-deblocking
		b.EmitAddress(r.Recon, true, 0) // post-deblocking
		b.EmitAddress(r.Source, false, 0)
		b.EmitAddress(r.Stats, true, 0)
		b.EmitAddress(r.RowStore[RowStoreIntra], true, 0)
		b.EmitAddress(r.RowStore[RowStoreDeblock], true, 0)
		for i := range 16 {
			b.EmitAddress(refAt(r.Refs, i), false, 0)
		}
		b.EmitAddress(r.MVTemporal, true, 0)
	})
	if err != nil {
		return err
	}
	err = command(b, mi.MFXBSPBufBaseAddr, MFXBSPBufBaseAddrLen, func() {
		b.EmitAddress(r.RowStore[RowStoreBSDMPC], true, 0)
		b.EmitAddress(resource.Handle{}, false, 0)
		b.EmitAddress(resource.Handle{}, false, 0)
	})
	if err != nil {
		return err
	}
	return emitVDEncBufferAddresses(b, f)
}

func (s *avcSteps) IndirectObject(b *cmdbuf.Buffer, f *Frame) error {
	return emitIndirectObject(b, mi.MFXIndObjBaseAddr, f)
}

func (s *avcSteps) ImageState(b *cmdbuf.Buffer, f *Frame, pass ratectl.Pass) error {
	if f.BRC {
		return emitImageBatch(b, f, pass.Index)
	}
	return emitSerialized(b, f.ImageState)
}

func (s *avcSteps) QuantMatrix(b *cmdbuf.Buffer, f *Frame) error {
	for _, typ := range []uint32{qmIntra4x4, qmInter4x4, qmIntra8x8, qmInter8x8} {
		if err := emitFlatQM(b, mi.MFXQMState, typ); err != nil {
			return err
		}
	}
	return nil
}

// noRef marks an unused entry of the reference index list.
const noRef = 0x80

func (s *avcSteps) RefIdx(b *cmdbuf.Buffer, f *Frame, sl *params.Slice) error {
	if sl.Type == hw.FrameI {
		return nil
	}
	return command(b, mi.MFXAVCRefIdxState, MFXAVCRefIdxStateLen, func() {
		b.Emit(0) // list 0
		for dw := range 8 {
			var v uint32
			for k := range 4 {
				e := uint32(noRef)
				if i := dw*4 + k; i < sl.NumRefsL0 && i < len(f.Res.Refs) {
					//nolint:gosec // G115: i < 32
					e = uint32(i)
				}
				v |= e << (8 * k)
			}
			b.Emit(v)
		}
	})
}

// unitWeight is luma weight 1 with offset 0, the default when the log2
// denominator is zero.
const unitWeight = 1

func (s *avcSteps) WeightOffset(b *cmdbuf.Buffer, f *Frame, sl *params.Slice) error {
	if !f.WeightedPred || sl.Type != hw.FrameP {
		return nil
	}
	return command(b, mi.MFXAVCWeightOffset, MFXAVCWeightOffsetLen, func() {
		b.Emit(0) // list 0
		for range 32 * 3 {
			b.Emit(unitWeight)
		}
	})
}

func (s *avcSteps) SliceState(b *cmdbuf.Buffer, f *Frame, sl *params.Slice) error {
	return emitSliceState(b, mi.MFXAVCSliceState, sl)
}

func (s *avcSteps) HeaderInsert(b *cmdbuf.Buffer, f *Frame, slice int) error {
	return emitHeaders(b, mi.MFXInsertObject, f, slice, s.caps.SliceWalker)
}

func (s *avcSteps) Walker(b *cmdbuf.Buffer, f *Frame, sl *params.Slice) error {
	return emitWalker(b, sl)
}
