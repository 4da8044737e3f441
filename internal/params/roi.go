// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package params

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/hwenc/internal/hw"
)

// ErrTooManyROI is returned for more regions than the image state has zones for.
var ErrTooManyROI = errors.New("params: too many regions of interest")

// ROI is a rectangle in pixels with a QP adjustment.
type ROI struct {
	Rect    image.Rectangle
	QPDelta int
}

// ClampROIDelta clamps d to the range of a zone adjustment field.
func ClampROIDelta(d int) int {
	return max(hw.MinROIDelta, min(hw.MaxROIDelta, d))
}

// Zones assigns rois to zones 1..n and returns the clamped deltas. Zone 0
// is the background and always carries 0.
func Zones(rois []ROI) ([hw.MaxROI + 1]int, error) {
	var z [hw.MaxROI + 1]int
	if len(rois) > hw.MaxROI {
		return z, fmt.Errorf("%w: %d > %d", ErrTooManyROI, len(rois), hw.MaxROI)
	}
	for i, r := range rois {
		z[i+1] = ClampROIDelta(r.QPDelta)
	}
	return z, nil
}

// zoneMap returns the zone of every block of size px in a w x h grid.
// Where regions overlap the lower-indexed region wins.
func zoneMap(rois []ROI, w, h, px int) []uint8 {
	zones := make([]uint8, w*h)
	for i := len(rois) - 1; i >= 0; i-- {
		r := rois[i].Rect.Canon()
		x0, y0 := max(0, r.Min.X/px), max(0, r.Min.Y/px)
		x1, y1 := min(w, hw.Blocks(r.Max.X, px)), min(h, hw.Blocks(r.Max.Y, px))
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				//nolint:gosec // G115: i < MaxROI
				zones[y*w+x] = uint8(i + 1)
			}
		}
	}
	return zones
}

// WriteStreamIn fills the AVC stream-in map: one record per macroblock
// carrying its zone and QP delta.
func WriteStreamIn(dst []byte, rois []ROI, widthMBs, heightMBs int) error {
	n := widthMBs * heightMBs * StreamInEntrySize
	if len(dst) < n {
		return fmt.Errorf("params: stream-in needs %d bytes, have %d", n, len(dst))
	}
	deltas, err := Zones(rois)
	if err != nil {
		return err
	}
	clear(dst[:n])
	for i, z := range zoneMap(rois, widthMBs, heightMBs, 16) {
		rec := dst[i*StreamInEntrySize:]
		StreamIn.Zone.Set(rec, uint32(z))
		StreamIn.QPDelta.SetInt(rec, deltas[z])
	}
	return nil
}

// SegmentMapBlock is the VP9 segmentation map granularity in pixels.
const SegmentMapBlock = 8

// WriteSegmentMap fills the VP9 segmentation map: one segment id byte per
// 8x8 block, the segment being the ROI zone.
func WriteSegmentMap(dst []byte, rois []ROI, width, height int) error {
	w, h := hw.Blocks(width, SegmentMapBlock), hw.Blocks(height, SegmentMapBlock)
	if len(dst) < w*h {
		return fmt.Errorf("params: segment map needs %d bytes, have %d", w*h, len(dst))
	}
	if _, err := Zones(rois); err != nil {
		return err
	}
	copy(dst, zoneMap(rois, w, h, SegmentMapBlock))
	return nil
}

// SegmentQIndexDelta converts a zone QP delta to a VP9 qindex delta.
func (t *Tables) SegmentQIndexDelta(zoneDelta int) int {
	return ClampROIDelta(zoneDelta) * t.ROIQIndexStep
}

// StreamInSize returns the stream-in map size for a frame.
func StreamInSize(widthMBs, heightMBs int) int {
	return widthMBs * heightMBs * StreamInEntrySize
}

// SegmentMapSize returns the segmentation map size for a frame.
func SegmentMapSize(width, height int) int {
	return hw.Blocks(width, SegmentMapBlock) * hw.Blocks(height, SegmentMapBlock)
}
