// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mediadevices

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/gogpu/hwenc"
)

// Encoder encodes the frames of a video.Reader with an hwenc session.
type Encoder struct {
	mu       sync.Mutex
	r        video.Reader
	s        *hwenc.Session
	cfg      hwenc.Config
	forceKey bool
	closed   bool
}

// NewEncoder opens a session for params and the media properties and
// reads frames from r.
func NewEncoder(r video.Reader, p prop.Media, params Params, opts ...hwenc.Option) (*Encoder, error) {
	cfg, err := ConfigFrom(params, p)
	if err != nil {
		return nil, err
	}
	s, err := hwenc.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		r:   video.ToI420(r),
		s:   s,
		cfg: s.Config(),
	}, nil
}

// Session returns the underlying session.
func (e *Encoder) Session() *hwenc.Session { return e.s }

// Read encodes the next frame and returns its coded bytes.
func (e *Encoder) Read() ([]byte, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, func() {}, ErrEncoderClosed
	}

	img, release, err := e.r.Read()
	if err != nil {
		return nil, func() {}, err
	}
	if release != nil {
		defer release()
	}

	typ := e.s.NextFrameType()
	if e.forceKey {
		typ = hwenc.FrameI
	}
	res, err := e.s.EncodeFrame(context.Background(), hwenc.FrameParams{Type: typ, Picture: img})
	if err != nil {
		return nil, func() {}, err
	}
	e.forceKey = false
	if !res.Converged {
		hwenc.Logger().Debug("mediadevices: frame accepted outside the BRC window",
			slog.Uint64("frame", uint64(res.FrameNum)),
			slog.Int("bytes", res.Bytes),
		)
	}
	return res.Bitstream, func() {}, nil
}

// SetBitRate retargets the rate control. The buffer model restarts from
// its defaults for the new rate.
func (e *Encoder) SetBitRate(b int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEncoderClosed
	}
	if b <= 0 {
		return fmt.Errorf("%w: bitrate %d", hwenc.ErrInvalidConfig, b)
	}
	cfg := e.cfg
	cfg.TargetBitrate = uint64(b)
	cfg.MaxBitrate, cfg.VBVBits, cfg.InitialFullness = 0, 0, 0
	if !cfg.RateControl.BRC() {
		cfg.RateControl = hwenc.RateControlCBR
	}
	if err := e.s.Reconfigure(cfg); err != nil {
		return err
	}
	e.cfg = e.s.Config()
	return nil
}

// ForceKeyFrame makes the next frame intra.
func (e *Encoder) ForceKeyFrame() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forceKey = true
	return nil
}

// Close closes the session. Closing twice is a no-op.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.s.Close()
}
