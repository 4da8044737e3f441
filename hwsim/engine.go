// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwsim

import (
	"encoding/binary"

	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/pipeline"
)

// slice is one programmed slice or tile column.
type slice struct {
	typ    hw.FrameType
	blocks int
}

// hucState is the programmed state of the HuC.
type hucState struct {
	descriptor uint32
	dmem       uint64
	regions    [pipeline.NumHuCRegions]uint64
}

// engine is the video pipe state programmed by one submission.
type engine struct {
	codec hw.Codec

	// img holds the image state commands as programmed; for AVC the
	// VDEnc image state follows the MFX one.
	img    [params.AVCImageStateSize]byte
	hasImg bool

	segments    [hw.MaxROI + 1]int
	numSegments int

	slices  []slice
	headers []byte

	coded    uint64
	codedEnd uint64
	streamIn uint64
	stats    uint64

	// pass counts the PAK passes of the submission.
	pass int

	huc hucState
}

// start resets the pipe state for a new PIPE_MODE_SELECT.
func (e *engine) start(codec hw.Codec) {
	pass, huc := e.pass, e.huc
	*e = engine{codec: codec, pass: pass, huc: huc}
}

func (e *engine) setImage(off int, cmd []uint32) {
	for i, w := range cmd {
		if o := off + 4*i; o+4 <= len(e.img) {
			binary.LittleEndian.PutUint32(e.img[o:], w)
		}
	}
	e.hasImg = true
}

func (e *engine) setSegment(cmd []uint32) {
	b := dwordBytes(cmd)
	id := params.VP9SegmentState.SegmentID.GetInt(b)
	if id < len(e.segments) {
		e.segments[id] = params.VP9SegmentState.QIndexDelta.GetInt(b)
		e.numSegments = max(e.numSegments, id+1)
	}
}

func (e *engine) addSlice(cmd []uint32) {
	b := dwordBytes(cmd)
	l := &params.SliceState
	e.slices = append(e.slices, slice{
		typ:    hw.FrameType(l.SliceType.Get(b)),
		blocks: l.NextFirst.GetInt(b) - l.FirstBlock.GetInt(b),
	})
}

// addInsert collects the header bytes an insert object adds to the stream.
func (e *engine) addInsert(cmd []uint32) {
	if len(cmd) <= 2 {
		return
	}
	bits := params.InsertObject.BitsInLastDW.GetInt(dwordBytes(cmd[:2]))
	n := (len(cmd)-3)*4 + (bits+7)/8
	e.headers = append(e.headers, dwordBytes(cmd[2:])[:n]...)
}

// frameType returns the type of the first slice.
func (e *engine) frameType() hw.FrameType {
	if len(e.slices) == 0 {
		return hw.FrameI
	}
	return e.slices[0].typ
}

// blocks returns the macroblock count of the programmed frame.
func (e *engine) blocks() int {
	switch e.codec {
	case hw.CodecVP9:
		s := &params.VP9PicState
		w := s.WidthMinus1.GetInt(e.img[:]) + 1
		h := s.HeightMinus1.GetInt(e.img[:]) + 1
		return hw.Blocks(w, 16) * hw.Blocks(h, 16)
	default:
		return params.AVCImgState.FrameSize.GetInt(e.img[:])
	}
}

// statusRegisters returns the registers the PAK of the codec reports in.
func statusRegisters(codec hw.Codec) pipeline.StatusRegisters {
	if codec == hw.CodecVP9 {
		return pipeline.StatusRegisters{
			ByteCount:         mi.HCPBitstreamByteCountFrame,
			ByteCountNoHeader: mi.HCPBitstreamByteCountFrameNoHeader,
			ImageStatus:       mi.HCPImageStatusCtrl,
			QPStatus:          mi.HCPQPStatusCount,
		}
	}
	return pipeline.StatusRegisters{
		ByteCount:         mi.MFCBitstreamByteCountFrame,
		ByteCountNoHeader: mi.MFCBitstreamByteCountFrameNoHeader,
		ImageStatus:       mi.MFCImageStatusCtrl,
		QPStatus:          mi.MFCQPStatusCount,
	}
}

func dwordBytes(words []uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return b
}
