// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/hwenc/resource"
)

func newSurface(t testing.TB, reg *resource.Registry, w, h int) Surface {
	t.Helper()
	s, err := New(reg, w, h, "picture")
	if err != nil {
		t.Fatalf("New(%d, %d): %v", w, h, err)
	}
	return s
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		wantPitch int
		wantSize  int
		wantErr   error
	}{
		{"aligned", 128, 64, 128, 128*64 + 128*32, nil},
		{"pitch padded", 100, 64, 128, 128*64 + 128*32, nil},
		{"odd height", 64, 15, 64, 64*16 + 64*8, nil},
		{"zero width", 0, 64, 0, 0, ErrInvalidSize},
		{"negative height", 64, -1, 0, 0, ErrInvalidSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := resource.NewRegistry(nil)
			s, err := New(reg, tt.w, tt.h, "picture")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if !s.IsZero() {
					t.Error("failed New() returned an allocated surface")
				}
				return
			}
			if s.Pitch != tt.wantPitch {
				t.Errorf("Pitch = %d, want %d", s.Pitch, tt.wantPitch)
			}
			if got := reg.Size(s.Handle); got != tt.wantSize {
				t.Errorf("buffer size = %d, want %d", got, tt.wantSize)
			}
			if reg.Kind(s.Handle) != resource.KindSurface {
				t.Errorf("kind = %s, want %s", reg.Kind(s.Handle), resource.KindSurface)
			}
			if !s.Valid(reg) {
				t.Error("Valid() = false after New")
			}
			s.Free(reg)
			if !s.IsZero() {
				t.Error("Free() left the handle set")
			}
			s.Free(reg) // zero surface
		})
	}
}

func TestNewScaled(t *testing.T) {
	reg := resource.NewRegistry(nil)
	src := newSurface(t, reg, 320, 240)
	ds, err := NewScaled(reg, src, "scaled")
	if err != nil {
		t.Fatalf("NewScaled: %v", err)
	}
	if ds.Format != FormatY8 || ds.Width != 80 || ds.Height != 60 || ds.Pitch != src.Pitch/4 {
		t.Errorf("NewScaled = %+v, want Y8 80x60 pitch %d", ds, src.Pitch/4)
	}
	if got, want := reg.Size(ds.Handle), ds.Pitch*60; got != want {
		t.Errorf("buffer size = %d, want %d", got, want)
	}

	tiny := newSurface(t, reg, 2, 2)
	if _, err := NewScaled(reg, tiny, "scaled"); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("NewScaled(2x2) error = %v, want ErrInvalidSize", err)
	}
}

func TestUploadYCbCr(t *testing.T) {
	reg := resource.NewRegistry(nil)
	s := newSurface(t, reg, 64, 32)

	img := image.NewYCbCr(image.Rect(0, 0, 64, 32), image.YCbCrSubsampleRatio420)
	for y := range 32 {
		for x := range 64 {
			img.Y[img.YOffset(x, y)] = uint8(x + y)
		}
	}
	for i := range img.Cb {
		img.Cb[i] = 100
		img.Cr[i] = 200
	}
	if err := Upload(reg, s, img); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	buf, err := reg.Read(s.Handle, 0, reg.Size(s.Handle))
	if err != nil {
		t.Fatal(err)
	}
	if got := buf[5*s.Pitch+7]; got != 12 {
		t.Errorf("luma(7, 5) = %d, want 12", got)
	}
	uv := s.Pitch * 32
	if buf[uv] != 100 || buf[uv+1] != 200 {
		t.Errorf("chroma(0, 0) = %d/%d, want 100/200", buf[uv], buf[uv+1])
	}
	if got := buf[uv+15*s.Pitch+62]; got != 100 {
		t.Errorf("last Cb = %d, want 100", got)
	}
}

func TestUploadPadsEdges(t *testing.T) {
	reg := resource.NewRegistry(nil)
	s := newSurface(t, reg, 32, 32)

	// 20x10 picture in a 32x32 surface; the last column and row repeat.
	img := image.NewGray(image.Rect(0, 0, 20, 10))
	for y := range 10 {
		for x := range 20 {
			img.SetGray(x, y, color.Gray{Y: uint8(10*y + x)})
		}
	}
	if err := Upload(reg, s, img); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	luma, err := Luma(reg, s)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		x, y int
		want uint8
	}{
		{0, 0, 0},
		{19, 0, 19},
		{31, 0, 19},
		{3, 9, 93},
		{3, 31, 93},
		{31, 31, 109},
	}
	for _, tt := range tests {
		if got := luma.GrayAt(tt.x, tt.y).Y; got != tt.want {
			t.Errorf("luma(%d, %d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestUploadRGBA(t *testing.T) {
	reg := resource.NewRegistry(nil)
	s := newSurface(t, reg, 16, 16)
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	red := color.RGBA{R: 255, A: 255}
	for y := range 16 {
		for x := range 16 {
			img.SetRGBA(x, y, red)
		}
	}
	if err := Upload(reg, s, img); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := color.YCbCrModel.Convert(red).(color.YCbCr)
	buf, err := reg.Read(s.Handle, 0, reg.Size(s.Handle))
	if err != nil {
		t.Fatal(err)
	}
	uv := s.Pitch * 16
	if buf[0] != want.Y || buf[uv] != want.Cb || buf[uv+1] != want.Cr {
		t.Errorf("pixel = %d/%d/%d, want %d/%d/%d", buf[0], buf[uv], buf[uv+1], want.Y, want.Cb, want.Cr)
	}
}

func TestUploadErrors(t *testing.T) {
	reg := resource.NewRegistry(nil)
	s := newSurface(t, reg, 16, 16)
	ds, err := NewScaled(reg, s, "scaled")
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewGray(image.Rect(0, 0, 16, 16))

	if err := Upload(reg, ds, img); !errors.Is(err, ErrFormat) {
		t.Errorf("Upload(Y8) error = %v, want ErrFormat", err)
	}
	if err := Upload(reg, s, image.NewGray(image.Rectangle{})); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Upload(empty) error = %v, want ErrInvalidSize", err)
	}
	if _, err := reg.Map(s.Handle); err != nil {
		t.Fatal(err)
	}
	if err := Upload(reg, s, img); !errors.Is(err, resource.ErrMapFailed) {
		t.Errorf("Upload(mapped) error = %v, want ErrMapFailed", err)
	}
}

func TestDownscale4x(t *testing.T) {
	reg := resource.NewRegistry(nil)
	s := newSurface(t, reg, 64, 64)
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 80
	}
	if err := Upload(reg, s, img); err != nil {
		t.Fatal(err)
	}
	ds, err := NewScaled(reg, s, "scaled")
	if err != nil {
		t.Fatal(err)
	}
	if err := Downscale4x(reg, s, ds); err != nil {
		t.Fatalf("Downscale4x: %v", err)
	}
	small, err := Luma(reg, ds)
	if err != nil {
		t.Fatal(err)
	}
	if b := small.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("downscaled bounds = %v, want 16x16", b)
	}
	for i, v := range small.Pix {
		if v != 80 {
			t.Fatalf("downscaled pixel %d = %d, want 80", i, v)
		}
	}

	if err := Downscale4x(reg, s, s); !errors.Is(err, ErrFormat) {
		t.Errorf("Downscale4x(NV12 dst) error = %v, want ErrFormat", err)
	}
	other := newSurface(t, reg, 128, 128)
	if err := Downscale4x(reg, other, ds); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Downscale4x(size mismatch) error = %v, want ErrInvalidSize", err)
	}
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		f    Format
		want string
	}{
		{FormatNV12, "NV12"},
		{FormatY8, "Y8"},
		{Format(9), "Format(9)"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Format(%d).String() = %q, want %q", uint8(tt.f), got, tt.want)
		}
	}
}

func BenchmarkUpload(b *testing.B) {
	reg := resource.NewRegistry(nil)
	s := newSurface(b, reg, 1280, 720)
	img := image.NewYCbCr(image.Rect(0, 0, 1280, 720), image.YCbCrSubsampleRatio420)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Upload(reg, s, img); err != nil {
			b.Fatal(err)
		}
	}
}
