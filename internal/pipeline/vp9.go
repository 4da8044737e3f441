// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/ratectl"
)

// VP9 command lengths in dwords.
const (
	HCPPipeModeSelectLen = 4
	HCPSurfaceStateLen   = 3
	HCPPipeBufAddrLen    = 1 + 16*2
	HCPRefIdxStateLen    = 4
)

// HCP_PIPE_MODE_SELECT dword 1 bits.
const (
	hcpCodecVP9     = 3
	hcpModeEncode   = 1 << 4
	hcpVDEncEnabled = 1 << 9
	hcpBRCEnable    = 1 << 8
)

// vdencCodecVP9 selects VP9 in VDENC_PIPE_MODE_SELECT.
const vdencCodecVP9 = 3

// vp9Steps sequences VP9 on the HCP and VDEnc pipes. Slices are tile
// columns counted in super-block columns.
type vp9Steps struct {
	caps hw.Caps
}

func newVP9Steps(caps hw.Caps) Steps { return &vp9Steps{caps: caps} }

func (s *vp9Steps) StatusRegisters() StatusRegisters {
	return StatusRegisters{
		ByteCount:         mi.HCPBitstreamByteCountFrame,
		ByteCountNoHeader: mi.HCPBitstreamByteCountFrameNoHeader,
		ImageStatus:       mi.HCPImageStatusCtrl,
		QPStatus:          mi.HCPQPStatusCount,
	}
}

func (s *vp9Steps) PipeModeSelect(b *cmdbuf.Buffer, f *Frame) error {
	dw1 := uint32(hcpCodecVP9 | hcpModeEncode | hcpVDEncEnabled)
	if f.BRC {
		dw1 |= hcpBRCEnable
	}
	if err := mi.Command(b, mi.HCPPipeModeSelect, dw1, 0, 0); err != nil {
		return err
	}
	vd := uint32(vdencCodecVP9)
	if f.NumROI > 0 {
		vd |= vdencStreamIn
	}
	return mi.Command(b, mi.VDEncPipeModeSelect, vd)
}

func (s *vp9Steps) Surfaces(b *cmdbuf.Buffer, f *Frame) error {
	for _, id := range []int{surfaceRecon, surfaceSource} {
		//nolint:gosec // G115: frame dimensions are bounded by the capability table
		err := mi.Command(b, mi.HCPSurfaceState,
			uint32(id)<<28|uint32(f.Pitch-1),
			uint32(surfaceFormatPlanar420)<<27|uint32(f.Height))
		if err != nil {
			return err
		}
	}
	return emitVDEncSurfaces(b, f)
}

func (s *vp9Steps) BufferAddresses(b *cmdbuf.Buffer, f *Frame) error {
	r := &f.Res
	err := command(b, mi.HCPPipeBufAddr, HCPPipeBufAddrLen, func() {
		b.EmitAddress(r.Recon, true, 0)
		b.EmitAddress(r.RowStore[RowStoreDeblock], true, 0)
		b.EmitAddress(r.RowStore[RowStoreHVDLine], true, 0)
		b.EmitAddress(r.RowStore[RowStoreMetadata], true, 0)
		b.EmitAddress(r.Source, false, 0)
		b.EmitAddress(r.MVTemporal, true, 0)
		for i := range 8 {
			b.EmitAddress(refAt(r.Refs, i), false, 0)
		}
		b.EmitAddress(r.StreamIn, false, 0) // segment map
		b.EmitAddress(r.Stats, true, 0)
	})
	if err != nil {
		return err
	}
	return emitVDEncBufferAddresses(b, f)
}

func (s *vp9Steps) IndirectObject(b *cmdbuf.Buffer, f *Frame) error {
	return emitIndirectObject(b, mi.HCPIndObjBaseAddr, f)
}

// ImageState emits the picture state, then one segment state per ROI zone
// or the background segment alone.
func (s *vp9Steps) ImageState(b *cmdbuf.Buffer, f *Frame, pass ratectl.Pass) error {
	var err error
	if f.BRC {
		err = emitImageBatch(b, f, pass.Index)
	} else {
		err = emitSerialized(b, f.ImageState)
	}
	if err != nil {
		return err
	}
	buf := params.VP9SegmentState.Alloc()
	for id := 0; id <= f.NumROI; id++ {
		params.WriteVP9SegmentState(buf, id, f.SegmentQIndex[id])
		if err := emitSerialized(b, buf); err != nil {
			return err
		}
	}
	return nil
}

func (s *vp9Steps) QuantMatrix(b *cmdbuf.Buffer, f *Frame) error {
	return emitFlatQM(b, mi.HCPQMState, 0)
}

func (s *vp9Steps) RefIdx(b *cmdbuf.Buffer, f *Frame, sl *params.Slice) error {
	if sl.Type == hw.FrameI {
		return nil
	}
	var slots uint32
	for k := range 4 {
		e := uint32(noRef)
		if k < sl.NumRefsL0 && k < len(f.Res.Refs) {
			//nolint:gosec // G115: k < 4
			e = uint32(k)
		}
		slots |= e << (8 * k)
	}
	//nolint:gosec // G115: at most MaxRefs references
	return mi.Command(b, mi.HCPRefIdxState, uint32(sl.NumRefsL0), slots, 0)
}

func (s *vp9Steps) WeightOffset(*cmdbuf.Buffer, *Frame, *params.Slice) error {
	return nil
}

func (s *vp9Steps) SliceState(b *cmdbuf.Buffer, f *Frame, sl *params.Slice) error {
	return emitSliceState(b, mi.HCPTileCodingState, sl)
}

func (s *vp9Steps) HeaderInsert(b *cmdbuf.Buffer, f *Frame, slice int) error {
	return emitHeaders(b, mi.HCPInsertObject, f, slice, s.caps.SliceWalker)
}

func (s *vp9Steps) Walker(b *cmdbuf.Buffer, f *Frame, sl *params.Slice) error {
	return emitWalker(b, sl)
}
