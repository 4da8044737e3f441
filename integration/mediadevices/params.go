// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mediadevices

import (
	"errors"
	"fmt"
	"math"

	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/gogpu/hwenc"
)

// Errors returned by the adapter.
var (
	// ErrInvalidProperties is returned when the media properties lack a
	// frame size.
	ErrInvalidProperties = errors.New("mediadevices: invalid media properties")

	// ErrEncoderClosed is returned by Read after Close.
	ErrEncoderClosed = errors.New("mediadevices: encoder is closed")
)

// DefaultKeyFrameInterval is the GOP size when BaseParams leaves it zero.
const DefaultKeyFrameInterval = 60

// Params are the encoder parameters of one track.
type Params struct {
	codec.BaseParams

	Codec      hwenc.Codec
	Generation hwenc.Generation

	// RateControl defaults to CBR when BitRate is set and CQP otherwise.
	RateControl hwenc.RateControlMode
	QP          int
	MinQP       int
	MaxQP       int
	MaxPasses   int
	Slices      int
}

// NewAVCParams returns the default AVC parameters.
func NewAVCParams() Params {
	return Params{
		BaseParams: codec.BaseParams{KeyFrameInterval: DefaultKeyFrameInterval},
		Codec:      hwenc.CodecAVC,
		Generation: hwenc.Gen10,
	}
}

// NewVP9Params returns the default VP9 parameters.
func NewVP9Params() Params {
	return Params{
		BaseParams: codec.BaseParams{KeyFrameInterval: DefaultKeyFrameInterval},
		Codec:      hwenc.CodecVP9,
		Generation: hwenc.Gen10,
	}
}

// ConfigFrom maps params and the negotiated media properties into a
// session configuration. The result is validated.
func ConfigFrom(params Params, p prop.Media) (hwenc.Config, error) {
	w, h := int(p.Width), int(p.Height)
	if w <= 0 || h <= 0 {
		return hwenc.Config{}, fmt.Errorf("%w: size %dx%d", ErrInvalidProperties, w, h)
	}
	num, den := frameRate(float64(p.FrameRate))

	bitrate := params.BitRate
	if bitrate < 0 {
		bitrate = 0
	}
	gop := params.KeyFrameInterval
	if gop <= 0 {
		gop = DefaultKeyFrameInterval
	}
	mode := params.RateControl
	if mode == hwenc.RateControlNone {
		mode = hwenc.RateControlCQP
		if bitrate > 0 {
			mode = hwenc.RateControlCBR
		}
	}

	cfg := hwenc.Config{
		Codec:         params.Codec,
		Generation:    params.Generation,
		Width:         w,
		Height:        h,
		RateControl:   mode,
		QP:            params.QP,
		MinQP:         params.MinQP,
		MaxQP:         params.MaxQP,
		TargetBitrate: uint64(bitrate),
		FPSNum:        num,
		FPSDen:        den,
		GOPSize:       int(gop),
		MaxPasses:     params.MaxPasses,
		Slices:        params.Slices,
	}
	if err := cfg.Validate(); err != nil {
		return hwenc.Config{}, err
	}
	return cfg, nil
}

// frameRate converts a frame rate to a fraction. Integral rates keep a
// denominator of 1; others are expressed in thousandths.
func frameRate(fps float64) (num, den uint32) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return hwenc.DefaultFPSNum, hwenc.DefaultFPSDen
	}
	if fps == math.Trunc(fps) {
		return uint32(min(fps, math.MaxUint32)), 1
	}
	return uint32(min(math.Round(fps*1000), math.MaxUint32)), 1000
}
