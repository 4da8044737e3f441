// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mi

import "fmt"

// Register is an MMIO register offset of the video engine.
type Register uint32

// Registers the encoder stores to memory after each pass.
const (
	MFCBitstreamByteCountFrame         Register = 0x128A0
	MFCBitstreamByteCountFrameNoHeader Register = 0x128A4
	MFCImageStatusMask                 Register = 0x128B4
	MFCImageStatusCtrl                 Register = 0x128B8
	MFCQPStatusCount                   Register = 0x128BC
	HCPBitstreamByteCountFrame         Register = 0x1E9A0
	HCPBitstreamByteCountFrameNoHeader Register = 0x1E9A4
	HCPImageStatusMask                 Register = 0x1E9B0
	HCPImageStatusCtrl                 Register = 0x1E9B8
	HCPQPStatusCount                   Register = 0x1E9BC
	HuCStatus                          Register = 0x0D000
	HuCStatus2                         Register = 0x0D3B0
)

var registerNames = map[Register]string{
	MFCBitstreamByteCountFrame:         "MFC_BITSTREAM_BYTECOUNT_FRAME",
	MFCBitstreamByteCountFrameNoHeader: "MFC_BITSTREAM_BYTECOUNT_FRAME_NO_HEADER",
	MFCImageStatusMask:                 "MFC_IMAGE_STATUS_MASK",
	MFCImageStatusCtrl:                 "MFC_IMAGE_STATUS_CTRL",
	MFCQPStatusCount:                   "MFC_QP_STATUS_COUNT",
	HCPBitstreamByteCountFrame:         "HCP_BITSTREAM_BYTECOUNT_FRAME",
	HCPBitstreamByteCountFrameNoHeader: "HCP_BITSTREAM_BYTECOUNT_FRAME_NO_HEADER",
	HCPImageStatusMask:                 "HCP_IMAGE_STATUS_MASK",
	HCPImageStatusCtrl:                 "HCP_IMAGE_STATUS_CTRL",
	HCPQPStatusCount:                   "HCP_QP_STATUS_COUNT",
	HuCStatus:                          "HUC_STATUS",
	HuCStatus2:                         "HUC_STATUS2",
}

// String returns the register name.
func (r Register) String() string {
	if s, ok := registerNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Register(%#x)", uint32(r))
}

// MFC_IMAGE_STATUS_CTRL and HCP_IMAGE_STATUS_CTRL bits.
const (
	// StatusFrameMaxExceeded is set when the frame exceeded the image
	// state's maximum frame size.
	StatusFrameMaxExceeded uint32 = 1 << 0
	// StatusFrameMinNotReached is set when the frame stayed below the
	// image state's minimum frame size.
	StatusFrameMinNotReached uint32 = 1 << 1
	// StatusNeedsPass masks the bits that request another pass.
	StatusNeedsPass = StatusFrameMaxExceeded | StatusFrameMinNotReached

	statusQPDeltaShift = 8
	statusPassShift    = 24
)

// ImageStatus packs MFC_IMAGE_STATUS_CTRL.
func ImageStatus(over, under bool, qpDelta int, pass int) uint32 {
	var v uint32
	if over {
		v |= StatusFrameMaxExceeded
	}
	if under {
		v |= StatusFrameMinNotReached
	}
	//nolint:gosec // G115: truncated to 8 and 4 bits
	v |= uint32(uint8(int8(qpDelta))) << statusQPDeltaShift
	v |= uint32(pass&0xF) << statusPassShift
	return v
}

// StatusQPDelta returns the suggested QP delta of an image status word.
func StatusQPDelta(v uint32) int {
	return int(int8(v >> statusQPDeltaShift))
}

// StatusPass returns the pass number of an image status word.
func StatusPass(v uint32) int {
	return int(v>>statusPassShift) & 0xF
}

// HUC_STATUS2 bits.
const (
	// HuCFirmwareLoaded is set once authenticated firmware is running.
	HuCFirmwareLoaded uint32 = 1 << 6
)
