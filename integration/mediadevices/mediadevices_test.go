// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mediadevices

import (
	"errors"
	"image"
	"io"
	"testing"

	"github.com/pion/mediadevices/pkg/prop"

	"github.com/gogpu/hwenc"
)

func media(width, height int, fps float32) prop.Media {
	return prop.Media{Video: prop.Video{Width: width, Height: height, FrameRate: fps}}
}

func TestConfigFrom(t *testing.T) {
	tests := []struct {
		name    string
		params  func() Params
		media   prop.Media
		mode    hwenc.RateControlMode
		bitrate uint64
		fpsNum  uint32
		fpsDen  uint32
		gop     int
	}{
		{
			name: "bitrate selects CBR",
			params: func() Params {
				p := NewAVCParams()
				p.BitRate = 2_000_000
				return p
			},
			media: media(1280, 720, 30), mode: hwenc.RateControlCBR,
			bitrate: 2_000_000, fpsNum: 30, fpsDen: 1, gop: DefaultKeyFrameInterval,
		},
		{
			name:   "no bitrate selects CQP",
			params: NewAVCParams,
			media:  media(640, 480, 25), mode: hwenc.RateControlCQP,
			fpsNum: 25, fpsDen: 1, gop: DefaultKeyFrameInterval,
		},
		{
			name: "fractional rate",
			params: func() Params {
				p := NewVP9Params()
				p.BitRate = 1_000_000
				p.KeyFrameInterval = 120
				p.RateControl = hwenc.RateControlVBR
				return p
			},
			media: media(1920, 1080, 29.97), mode: hwenc.RateControlVBR,
			bitrate: 1_000_000, fpsNum: 29970, fpsDen: 1000, gop: 120,
		},
		{
			name:   "missing rate",
			params: NewAVCParams,
			media:  media(320, 240, 0), mode: hwenc.RateControlCQP,
			fpsNum: hwenc.DefaultFPSNum, fpsDen: hwenc.DefaultFPSDen, gop: DefaultKeyFrameInterval,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ConfigFrom(tt.params(), tt.media)
			if err != nil {
				t.Fatalf("ConfigFrom failed: %v", err)
			}
			if cfg.Width != tt.media.Width || cfg.Height != tt.media.Height {
				t.Errorf("size = %dx%d", cfg.Width, cfg.Height)
			}
			if cfg.RateControl != tt.mode || cfg.TargetBitrate != tt.bitrate {
				t.Errorf("rate control = %v at %d, want %v at %d", cfg.RateControl, cfg.TargetBitrate, tt.mode, tt.bitrate)
			}
			if cfg.FPSNum != tt.fpsNum || cfg.FPSDen != tt.fpsDen {
				t.Errorf("frame rate = %d/%d, want %d/%d", cfg.FPSNum, cfg.FPSDen, tt.fpsNum, tt.fpsDen)
			}
			if cfg.GOPSize != tt.gop {
				t.Errorf("GOPSize = %d, want %d", cfg.GOPSize, tt.gop)
			}
		})
	}
}

func TestConfigFromErrors(t *testing.T) {
	if _, err := ConfigFrom(NewAVCParams(), media(0, 240, 30)); !errors.Is(err, ErrInvalidProperties) {
		t.Errorf("zero width: error = %v, want ErrInvalidProperties", err)
	}
	p := NewVP9Params()
	p.Generation = hwenc.Gen9
	if _, err := ConfigFrom(p, media(320, 240, 30)); !errors.Is(err, hwenc.ErrUnsupported) {
		t.Errorf("VP9 on Gen9: error = %v, want ErrUnsupported", err)
	}
}

// frameReader serves n gray frames then io.EOF.
type frameReader struct {
	width, height int
	n             int
	released      int
}

func (r *frameReader) Read() (image.Image, func(), error) {
	if r.n == 0 {
		return nil, func() {}, io.EOF
	}
	r.n--
	img := image.NewYCbCr(image.Rect(0, 0, r.width, r.height), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 100
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	return img, func() { r.released++ }, nil
}

func TestEncoder(t *testing.T) {
	r := &frameReader{width: 320, height: 240, n: 4}
	params := NewAVCParams()
	params.BitRate = 1_000_000
	params.KeyFrameInterval = 2
	enc, err := NewEncoder(r, media(320, 240, 30), params)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	defer enc.Close()

	for i := range 2 {
		b, release, err := enc.Read()
		if err != nil {
			t.Fatalf("frame %d: Read failed: %v", i, err)
		}
		release()
		if len(b) == 0 {
			t.Errorf("frame %d is empty", i)
		}
	}
	if got := enc.Session().Stats().Frames; got != 2 {
		t.Errorf("Frames = %d, want 2", got)
	}

	if err := enc.SetBitRate(500_000); err != nil {
		t.Fatalf("SetBitRate failed: %v", err)
	}
	if got := enc.Session().Config().TargetBitrate; got != 500_000 {
		t.Errorf("TargetBitrate = %d, want 500000", got)
	}
	if err := enc.SetBitRate(0); !errors.Is(err, hwenc.ErrInvalidConfig) {
		t.Errorf("SetBitRate(0) error = %v, want ErrInvalidConfig", err)
	}
	if err := enc.ForceKeyFrame(); err != nil {
		t.Fatalf("ForceKeyFrame failed: %v", err)
	}
	if _, _, err := enc.Read(); err != nil {
		t.Fatalf("Read after ForceKeyFrame failed: %v", err)
	}
	if got := enc.Session().Stats().Resets; got != 1 {
		t.Errorf("Resets = %d, want 1", got)
	}

	if _, _, err := enc.Read(); err != nil {
		t.Fatalf("last frame: Read failed: %v", err)
	}
	if _, _, err := enc.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read past the source error = %v, want io.EOF", err)
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, _, err := enc.Read(); !errors.Is(err, ErrEncoderClosed) {
		t.Errorf("Read after Close error = %v, want ErrEncoderClosed", err)
	}
}

