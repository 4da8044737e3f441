// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwsim

import (
	"log/slog"
	"math"

	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
)

// baseBlockBits is the modeled size of an intra macroblock at QP 4. The
// size halves every 6 QP steps.
const baseBlockBits = 1536

// maxStatusDelta bounds the QP delta the PAK suggests in its image status.
const maxStatusDelta = 8

// typeFactor scales the block size by frame type.
var typeFactor = [...]float64{
	hw.FrameI: 1,
	hw.FrameP: 0.35,
	hw.FrameB: 0.25,
}

// BlockBits returns the modeled size in bits of one 16x16 block coded at
// qp in a frame of type typ.
func BlockBits(qp int, typ hw.FrameType) float64 {
	f := 1.0
	if int(typ) < len(typeFactor) {
		f = typeFactor[typ]
	}
	qp = max(0, min(params.NumQP-1, qp))
	return baseBlockBits * f / math.Pow(2, float64(qp-4)/6)
}

// encode runs the PAK over the programmed slices. It is triggered by the
// MI_FLUSH_DW that closes a pass and does nothing when no slice is
// pending.
func (g *GPU) encode() error {
	e := &g.eng
	if len(e.slices) == 0 || !e.hasImg {
		return nil
	}
	defer func() {
		e.slices = e.slices[:0]
		e.headers = e.headers[:0]
		e.pass++
	}()

	typ := e.frameType()
	qp, bits, err := g.frameBits(typ)
	if err != nil {
		return err
	}
	payload := int(math.Ceil(bits * g.cfg.Complexity / 8))
	payload = max(payload, len(e.slices))
	total := len(e.headers) + payload

	maxBytes, minBytes := g.frameBounds()
	//nolint:gosec // G115: modeled frame sizes fit 32 bits
	size := uint32(total)
	over := maxBytes > 0 && size > maxBytes
	under := minBytes > 0 && size < minBytes
	var delta int
	switch {
	case over:
		delta = statusDelta(size, maxBytes)
	case under:
		delta = statusDelta(size, minBytes)
	}
	status := mi.ImageStatus(over, under, delta, e.pass)

	regs := statusRegisters(e.codec)
	g.regs[regs.ByteCount] = size
	//nolint:gosec // G115: modeled frame sizes fit 32 bits
	g.regs[regs.ByteCountNoHeader] = uint32(payload)
	g.regs[regs.ImageStatus] = status
	//nolint:gosec // G115: qp < 52
	g.regs[regs.QPStatus] = uint32(qp)

	if err := g.writeCoded(total); err != nil {
		return err
	}
	if err := g.writeStats(size, qp, typ); err != nil {
		return err
	}
	g.stats.PAKPasses++

	slogger().Debug("hwsim: PAK pass",
		slog.String("codec", e.codec.String()),
		slog.String("frame", typ.String()),
		slog.Int("pass", e.pass),
		slog.Int("qp", qp),
		slog.Int("bytes", total),
		slog.Bool("over", over),
		slog.Bool("under", under),
	)
	return nil
}

// frameBits returns the AVC-scale QP of the frame and its modeled size in
// bits before the complexity factor.
func (g *GPU) frameBits(typ hw.FrameType) (qp int, bits float64, err error) {
	e := &g.eng
	img := e.img[:]
	blocks := e.blocks()

	if e.codec == hw.CodecVP9 {
		s := &params.VP9PicState
		qindex := s.BaseQIndex.GetInt(img)
		qp = g.cfg.Tables.QPForQIndex(qindex)
		if !s.SegmentationEnabled.Bool(img) || e.streamIn == 0 || e.numSegments == 0 {
			return qp, float64(blocks) * BlockBits(qp, typ), nil
		}
		n := params.SegmentMapSize(s.WidthMinus1.GetInt(img)+1, s.HeightMinus1.GetInt(img)+1)
		m, err := g.mem(e.streamIn, n)
		if err != nil {
			return 0, 0, err
		}
		for _, seg := range m[:n] {
			var d int
			if int(seg) < len(e.segments) {
				d = e.segments[seg]
			}
			// Four 8x8 map entries per 16x16 block.
			bits += BlockBits(g.cfg.Tables.QPForQIndex(qindex+d), typ) / 4
		}
		return qp, bits, nil
	}

	qp = params.ImageQP(img, hw.CodecAVC)
	vd := img[params.AVCImgStateLen*4:]
	if !params.VDEncImgState.ROIEnable.Bool(vd) || e.streamIn == 0 {
		return qp, float64(blocks) * BlockBits(qp, typ), nil
	}
	zones := params.ImageZones(img)
	m, err := g.mem(e.streamIn, blocks*params.StreamInEntrySize)
	if err != nil {
		return 0, 0, err
	}
	for i := range blocks {
		z := params.StreamIn.Zone.GetInt(m[i*params.StreamInEntrySize:])
		var d int
		if z < len(zones) {
			d = zones[z]
		}
		bits += BlockBits(qp+d, typ)
	}
	return qp, bits, nil
}

// frameBounds returns the frame-size bounds the image state enables.
func (g *GPU) frameBounds() (maxBytes, minBytes uint32) {
	e := &g.eng
	img := e.img[:]
	maxBytes, minBytes = params.ImageFrameBounds(img, e.codec)
	if e.codec == hw.CodecAVC {
		if !params.AVCImgState.MaxReportMask.Bool(img) {
			maxBytes = 0
		}
		if !params.AVCImgState.MinReportMask.Bool(img) {
			minBytes = 0
		}
	}
	return maxBytes, minBytes
}

// statusDelta suggests the QP change that moves size onto bound: six QP
// steps per doubling, at least one step.
func statusDelta(size, bound uint32) int {
	d := 6 * math.Log2(float64(size)/float64(bound))
	if d > 0 {
		return min(maxStatusDelta, max(1, int(math.Ceil(d))))
	}
	return max(-maxStatusDelta, min(-1, int(math.Floor(d))))
}

// writeCoded writes the inserted headers followed by payload bytes into
// the coded buffer, truncated to the indirect object bound.
func (g *GPU) writeCoded(total int) error {
	e := &g.eng
	if e.coded == 0 {
		return nil
	}
	buf, err := g.mem(e.coded, 0)
	if err != nil {
		return err
	}
	limit := len(buf)
	if e.codedEnd > e.coded {
		//nolint:gosec // G115: bounded by the resource size
		limit = min(limit, int(e.codedEnd-e.coded))
	}
	n := min(total, limit)
	h := copy(buf[:n], e.headers)
	for i := h; i < n; i++ {
		buf[i] = payloadByte(i, e.pass)
	}
	return nil
}

// payloadByte is a deterministic filler that never forms a start code.
func payloadByte(i, pass int) byte {
	//nolint:gosec // G115: masked to 7 bits
	return 0x80 | byte((i*31+pass*7)&0x7F)
}

func (g *GPU) writeStats(size uint32, qp int, typ hw.FrameType) error {
	e := &g.eng
	if e.stats == 0 {
		return nil
	}
	b, err := g.mem(e.stats, params.FrameStatsSize)
	if err != nil {
		return err
	}
	l := &params.FrameStats
	clear(b[:params.FrameStatsSize])
	l.BytesFrame.Set(b, size)
	l.QP.SetInt(b, qp)
	l.FrameType.Set(b, uint32(typ.FirmwareCode()))
	l.Pass.SetInt(b, e.pass)
	l.Blocks.SetInt(b, e.blocks())
	return nil
}
