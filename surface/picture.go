// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/gogpu/hwenc/resource"
)

// Upload converts img to NV12 and writes it into s. Pixels outside the
// image bounds repeat the nearest edge pixel so block-aligned surfaces can
// take pictures of any size.
func Upload(reg *resource.Registry, s Surface, img image.Image) error {
	if s.Format != FormatNV12 {
		return fmt.Errorf("%w: upload into %s", ErrFormat, s.Format)
	}
	r := img.Bounds()
	if r.Empty() {
		return fmt.Errorf("%w: empty picture", ErrInvalidSize)
	}
	buf, err := reg.Map(s.Handle)
	if err != nil {
		return fmt.Errorf("surface: upload: %w", err)
	}
	defer func() { _ = reg.Unmap(s.Handle) }()

	if yc, ok := img.(*image.YCbCr); ok && yc.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		writeYCbCr(buf, s, yc)
		return nil
	}
	writeImage(buf, s, img)
	return nil
}

// edge clamps surface coordinate v into [lo, hi).
func edge(v, lo, hi int) int {
	return max(lo, min(hi-1, lo+v))
}

func writeYCbCr(buf []byte, s Surface, img *image.YCbCr) {
	r := img.Rect
	uv := s.Pitch * alignedHeight(s)
	for y := range s.Height {
		sy := edge(y, r.Min.Y, r.Max.Y)
		row := buf[y*s.Pitch:]
		for x := range s.Width {
			row[x] = img.Y[img.YOffset(edge(x, r.Min.X, r.Max.X), sy)]
		}
		if y%2 != 0 {
			continue
		}
		crow := buf[uv+y/2*s.Pitch:]
		for x := 0; x < s.Width; x += 2 {
			i := img.COffset(edge(x, r.Min.X, r.Max.X), sy)
			crow[x] = img.Cb[i]
			crow[x+1] = img.Cr[i]
		}
	}
}

func writeImage(buf []byte, s Surface, img image.Image) {
	r := img.Bounds()
	uv := s.Pitch * alignedHeight(s)
	for y := range s.Height {
		sy := edge(y, r.Min.Y, r.Max.Y)
		row := buf[y*s.Pitch:]
		crow := buf[uv+y/2*s.Pitch:]
		for x := range s.Width {
			c := color.YCbCrModel.Convert(img.At(edge(x, r.Min.X, r.Max.X), sy)).(color.YCbCr)
			row[x] = c.Y
			// Chroma is sited at the top-left pixel of each 2x2 block.
			if x%2 == 0 && y%2 == 0 {
				crow[x] = c.Cb
				crow[x+1] = c.Cr
			}
		}
	}
}

func alignedHeight(s Surface) int {
	return s.Height + s.Height%2
}

// Luma returns a copy of the luma plane of s.
func Luma(reg *resource.Registry, s Surface) (*image.Gray, error) {
	buf, err := reg.Map(s.Handle)
	if err != nil {
		return nil, fmt.Errorf("surface: read luma: %w", err)
	}
	defer func() { _ = reg.Unmap(s.Handle) }()
	return lumaOf(buf, s), nil
}

func lumaOf(buf []byte, s Surface) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	for y := range s.Height {
		copy(g.Pix[y*g.Stride:(y+1)*g.Stride], buf[y*s.Pitch:y*s.Pitch+s.Width])
	}
	return g
}

// Downscale4x writes the luma of src, scaled to a quarter in each
// dimension, into the Y8 surface dst.
func Downscale4x(reg *resource.Registry, src, dst Surface) error {
	if dst.Format != FormatY8 {
		return fmt.Errorf("%w: downscale into %s", ErrFormat, dst.Format)
	}
	if dst.Width != src.Width/4 || dst.Height != src.Height/4 {
		return fmt.Errorf("%w: %dx%d is not a quarter of %dx%d",
			ErrInvalidSize, dst.Width, dst.Height, src.Width, src.Height)
	}
	luma, err := Luma(reg, src)
	if err != nil {
		return err
	}
	small := image.NewGray(image.Rect(0, 0, dst.Width, dst.Height))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), luma, luma.Bounds(), draw.Src, nil)

	buf, err := reg.Map(dst.Handle)
	if err != nil {
		return fmt.Errorf("surface: downscale: %w", err)
	}
	for y := range dst.Height {
		copy(buf[y*dst.Pitch:], small.Pix[y*small.Stride:(y+1)*small.Stride])
	}
	return reg.Unmap(dst.Handle)
}
