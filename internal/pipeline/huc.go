// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/ratectl"
	"github.com/gogpu/hwenc/resource"
)

// HuC command lengths in dwords.
const (
	HuCPipeModeSelectLen   = 3
	HuCIMEMStateLen        = 5
	HuCDMEMStateLen        = 6
	HuCVirtualAddrStateLen = 1 + NumHuCRegions*3
	HuCIndObjBaseAddrLen   = 5
	HuCStreamObjectLen     = 5
	HuCStartLen            = 2
)

// Firmware descriptors selected by HUC_IMEM_STATE.
const (
	HuCDescriptorBRCInit   = 4
	HuCDescriptorBRCUpdate = 5
)

// HuCDMEMBase is the firmware data-memory address DMEM is loaded to.
const HuCDMEMBase = 0x1

// Virtual address regions of the BRC firmware.
const (
	RegionHistory = iota
	RegionStats
	RegionPAKStatus
	RegionImageInput
	RegionConstData
	RegionImageBatch
	RegionHuCStatus
	NumHuCRegions = 16
)

// firmware invokes the BRC firmware for pass: the init/reset function
// first when the frame requests it, then the update function that writes
// the second-level image state of the pass.
func (q *Sequencer) firmware(b *cmdbuf.Buffer, f *Frame, pass ratectl.Pass) error {
	if f.FirmwareInit && pass.First() {
		if err := invokeHuC(b, f, pass, f.Res.InitDMEM, params.InitDMEM.Size(), HuCDescriptorBRCInit); err != nil {
			return err
		}
	}
	return invokeHuC(b, f, pass, f.Res.UpdateDMEM[pass.Index], params.UpdateDMEM.Size(), HuCDescriptorBRCUpdate)
}

func invokeHuC(b *cmdbuf.Buffer, f *Frame, pass ratectl.Pass, dmem resource.Handle, dmemSize int, desc uint32) error {
	if err := mi.Command(b, mi.HuCPipeModeSelect, 0, 0); err != nil {
		return err
	}
	if err := mi.Command(b, mi.HuCIMEMState, 0, 0, 0, desc); err != nil {
		return err
	}

	err := command(b, mi.HuCDMEMState, HuCDMEMStateLen, func() {
		b.EmitAddress(dmem, false, 0)
		//nolint:gosec // G115: DMEM size is a small constant
		b.Emit(0, uint32(dmemSize), HuCDMEMBase)
	})
	if err != nil {
		return err
	}

	var regions [NumHuCRegions]struct {
		h        resource.Handle
		writable bool
	}
	r := &f.Res
	regions[RegionHistory].h, regions[RegionHistory].writable = r.History, true
	regions[RegionStats].h = r.Stats
	regions[RegionPAKStatus].h = r.PAKStatus
	regions[RegionImageInput].h = r.ImageInput
	regions[RegionConstData].h = r.ConstData
	regions[RegionImageBatch].h, regions[RegionImageBatch].writable = r.ImageBatch[pass.Index], true
	regions[RegionHuCStatus].h, regions[RegionHuCStatus].writable = r.HuCStatus, true

	err = command(b, mi.HuCVirtualAddrState, HuCVirtualAddrStateLen, func() {
		for _, reg := range regions {
			b.EmitAddress(reg.h, reg.writable, 0)
			b.Emit(0)
		}
	})
	if err != nil {
		return err
	}

	err = command(b, mi.HuCIndObjBaseAddr, HuCIndObjBaseAddrLen, func() {
		b.EmitAddress(resource.Handle{}, false, 0)
		b.EmitAddress(resource.Handle{}, true, 0)
	})
	if err != nil {
		return err
	}
	if err := mi.Command(b, mi.HuCStreamObject, 0, 0, 0, 0); err != nil {
		return err
	}
	if err := mi.Command(b, mi.HuCStart, 1); err != nil { // last stream object
		return err
	}
	return mi.EmitFlushDW(b)
}
