// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mi defines the command-streamer command set used by the encoder:
// MI_* control commands, the MFX, VDEnc, HCP and HuC pipeline state
// commands, and the MMIO registers the encoder reads back.
//
// Every command starts with a header dword. Media pipeline headers carry
// the command type 3 in bits 31:29, the pipeline in 28:27, the opcode in
// 26:23, the sub-opcode in 22:16 and the dword length minus two in 11:0.
// MI headers carry type 0, the MI opcode in 28:23 and the length minus two
// in 5:0.
package mi

import "fmt"

// Opcode identifies a command by the opcode bits of its header.
type Opcode uint32

// Header field masks.
const (
	typeShift = 29
	typeMI    = 0
	typeMedia = 3

	miOpcodeMask    = 0xFF80_0000
	miLengthMask    = 0x3F
	mediaOpcodeMask = 0xFFFF_0000
	mediaLengthMask = 0xFFF

	// media is the header prefix of media pipeline commands.
	media = typeMedia<<typeShift | 2<<27
)

// MI commands.
const (
	Noop                      Opcode = 0x00 << 23
	BatchBufferEnd            Opcode = 0x0A << 23
	StoreDataImm              Opcode = 0x20 << 23
	LoadRegisterImm           Opcode = 0x22 << 23
	StoreRegisterMem          Opcode = 0x24 << 23
	FlushDW                   Opcode = 0x26 << 23
	BatchBufferStart          Opcode = 0x31 << 23
	ConditionalBatchBufferEnd Opcode = 0x36 << 23
)

// MFX common commands (opcode 0).
const (
	MFXPipeModeSelect Opcode = media | 0<<23 | 0<<16
	MFXSurfaceState   Opcode = media | 0<<23 | 1<<16
	MFXPipeBufAddr    Opcode = media | 0<<23 | 2<<16
	MFXIndObjBaseAddr Opcode = media | 0<<23 | 3<<16
	MFXBSPBufBaseAddr Opcode = media | 0<<23 | 4<<16
	MFXQMState        Opcode = media | 0<<23 | 7<<16
	MFXInsertObject   Opcode = media | 0<<23 | 8<<16
	MFXWaitStatus     Opcode = media | 0<<23 | 9<<16
)

// MFX AVC commands (opcode 2).
const (
	MFXAVCImgState     Opcode = media | 2<<23 | 0<<16
	MFXAVCSliceState   Opcode = media | 2<<23 | 3<<16
	MFXAVCRefIdxState  Opcode = media | 2<<23 | 4<<16
	MFXAVCWeightOffset Opcode = media | 2<<23 | 5<<16
)

// VDEnc commands (opcode 1).
const (
	VDEncPipeModeSelect Opcode = media | 1<<23 | 0<<16
	VDEncSrcSurface     Opcode = media | 1<<23 | 1<<16
	VDEncRefSurface     Opcode = media | 1<<23 | 2<<16
	VDEncDSRefSurface   Opcode = media | 1<<23 | 3<<16
	VDEncPipeBufAddr    Opcode = media | 1<<23 | 4<<16
	VDEncImgState       Opcode = media | 1<<23 | 5<<16
	VDEncConstQPTable   Opcode = media | 1<<23 | 6<<16
	VDEncWalkerState    Opcode = media | 1<<23 | 7<<16
)

// HCP commands (opcode 7).
const (
	HCPPipeModeSelect  Opcode = media | 7<<23 | 0<<16
	HCPSurfaceState    Opcode = media | 7<<23 | 1<<16
	HCPPipeBufAddr     Opcode = media | 7<<23 | 2<<16
	HCPIndObjBaseAddr  Opcode = media | 7<<23 | 3<<16
	HCPQMState         Opcode = media | 7<<23 | 4<<16
	HCPVP9SegmentState Opcode = media | 7<<23 | 0x32<<16
	HCPVP9PicState     Opcode = media | 7<<23 | 0x30<<16
	HCPRefIdxState     Opcode = media | 7<<23 | 0x12<<16
	HCPWeightOffset    Opcode = media | 7<<23 | 0x13<<16
	HCPSliceState      Opcode = media | 7<<23 | 0x14<<16
	HCPInsertObject    Opcode = media | 7<<23 | 0x22<<16
	HCPTileCodingState Opcode = media | 7<<23 | 0x15<<16
)

// HuC commands (opcode 0xB).
const (
	HuCPipeModeSelect   Opcode = media | 0xB<<23 | 0<<16
	HuCIMEMState        Opcode = media | 0xB<<23 | 1<<16
	HuCDMEMState        Opcode = media | 0xB<<23 | 2<<16
	HuCVirtualAddrState Opcode = media | 0xB<<23 | 4<<16
	HuCIndObjBaseAddr   Opcode = media | 0xB<<23 | 5<<16
	HuCStreamObject     Opcode = media | 0xB<<23 | 0x20<<16
	HuCStart            Opcode = media | 0xB<<23 | 0x21<<16
)

// IsMI reports whether the header belongs to an MI command.
func IsMI(header uint32) bool { return header>>typeShift == typeMI }

// Decode returns the opcode and total dword length of the command that
// starts with header.
func Decode(header uint32) (Opcode, int) {
	if IsMI(header) {
		op := Opcode(header & miOpcodeMask)
		if op == BatchBufferEnd || op == Noop {
			return op, 1
		}
		return op, int(header&miLengthMask) + 2
	}
	return Opcode(header & mediaOpcodeMask), int(header&mediaLengthMask) + 2
}

// Header returns the header dword of a command of n dwords.
func (op Opcode) Header(n int) uint32 {
	if op == BatchBufferEnd || op == Noop {
		return uint32(op)
	}
	//nolint:gosec // G115: command lengths are small
	l := uint32(n - 2)
	if IsMI(uint32(op)) {
		return uint32(op) | l&miLengthMask
	}
	return uint32(op) | l&mediaLengthMask
}

var opcodeNames = map[Opcode]string{
	Noop:                      "MI_NOOP",
	BatchBufferEnd:            "MI_BATCH_BUFFER_END",
	StoreDataImm:              "MI_STORE_DATA_IMM",
	LoadRegisterImm:           "MI_LOAD_REGISTER_IMM",
	StoreRegisterMem:          "MI_STORE_REGISTER_MEM",
	FlushDW:                   "MI_FLUSH_DW",
	BatchBufferStart:          "MI_BATCH_BUFFER_START",
	ConditionalBatchBufferEnd: "MI_CONDITIONAL_BATCH_BUFFER_END",

	MFXPipeModeSelect: "MFX_PIPE_MODE_SELECT",
	MFXSurfaceState:   "MFX_SURFACE_STATE",
	MFXPipeBufAddr:    "MFX_PIPE_BUF_ADDR_STATE",
	MFXIndObjBaseAddr: "MFX_IND_OBJ_BASE_ADDR_STATE",
	MFXBSPBufBaseAddr: "MFX_BSP_BUF_BASE_ADDR_STATE",
	MFXQMState:        "MFX_QM_STATE",
	MFXInsertObject:   "MFX_INSERT_OBJECT",
	MFXWaitStatus:     "MFX_WAIT",

	MFXAVCImgState:     "MFX_AVC_IMG_STATE",
	MFXAVCSliceState:   "MFX_AVC_SLICE_STATE",
	MFXAVCRefIdxState:  "MFX_AVC_REF_IDX_STATE",
	MFXAVCWeightOffset: "MFX_AVC_WEIGHTOFFSET_STATE",

	VDEncPipeModeSelect: "VDENC_PIPE_MODE_SELECT",
	VDEncSrcSurface:     "VDENC_SRC_SURFACE_STATE",
	VDEncRefSurface:     "VDENC_REF_SURFACE_STATE",
	VDEncDSRefSurface:   "VDENC_DS_REF_SURFACE_STATE",
	VDEncPipeBufAddr:    "VDENC_PIPE_BUF_ADDR_STATE",
	VDEncImgState:       "VDENC_IMG_STATE",
	VDEncConstQPTable:   "VDENC_CONST_QPT_STATE",
	VDEncWalkerState:    "VDENC_WALKER_STATE",

	HCPPipeModeSelect:  "HCP_PIPE_MODE_SELECT",
	HCPSurfaceState:    "HCP_SURFACE_STATE",
	HCPPipeBufAddr:     "HCP_PIPE_BUF_ADDR_STATE",
	HCPIndObjBaseAddr:  "HCP_IND_OBJ_BASE_ADDR_STATE",
	HCPQMState:         "HCP_QM_STATE",
	HCPVP9SegmentState: "HCP_VP9_SEGMENT_STATE",
	HCPVP9PicState:     "HCP_VP9_PIC_STATE",
	HCPRefIdxState:     "HCP_REF_IDX_STATE",
	HCPWeightOffset:    "HCP_WEIGHTOFFSET_STATE",
	HCPSliceState:      "HCP_SLICE_STATE",
	HCPInsertObject:    "HCP_PAK_INSERT_OBJECT",
	HCPTileCodingState: "HCP_TILE_CODING",

	HuCPipeModeSelect:   "HUC_PIPE_MODE_SELECT",
	HuCIMEMState:        "HUC_IMEM_STATE",
	HuCDMEMState:        "HUC_DMEM_STATE",
	HuCVirtualAddrState: "HUC_VIRTUAL_ADDR_STATE",
	HuCIndObjBaseAddr:   "HUC_IND_OBJ_BASE_ADDR_STATE",
	HuCStreamObject:     "HUC_STREAM_OBJECT",
	HuCStart:            "HUC_START",
}

// String returns the command name.
func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Opcode(%#08x)", uint32(op))
}

// Known reports whether op is a command of the set above.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

// IsPipeModeSelect reports whether op selects a pipeline mode.
func (op Opcode) IsPipeModeSelect() bool {
	return op == MFXPipeModeSelect || op == HCPPipeModeSelect
}

// IsTerminator reports whether op ends a well-formed sequence.
func (op Opcode) IsTerminator() bool {
	return op == BatchBufferEnd || op == FlushDW
}
