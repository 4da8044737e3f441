// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ratectl

import "fmt"

// Params are the rate-control targets a State is seeded from.
type Params struct {
	TargetBitrate   uint64 // bits per second
	VBVBits         uint64
	InitialFullness uint64 // bits
	FPSNum          uint32
	FPSDen          uint32
}

// InputBitsPerFrame returns the average bit budget of one frame.
func (p Params) InputBitsPerFrame() float64 {
	if p.FPSNum == 0 {
		return 0
	}
	den := p.FPSDen
	if den == 0 {
		den = 1
	}
	return float64(p.TargetBitrate) * float64(den) / float64(p.FPSNum)
}

// State is the rate-control state carried from frame to frame.
//
// The fullness model is a sawtooth: the target size of a frame is the
// running fullness, which wraps down by the VBV size when it exceeds it
// and grows by the per-frame input bits after every frame.
//
// State is NOT safe for concurrent use; the controller owns it.
type State struct {
	params Params

	initialized bool
	needsReset  bool

	fullness     float64
	prevFullness float64
	inputBits    float64

	frames    uint64
	lastBits  uint64
	lastQP    int
	totalBits uint64
}

// NewState returns a State that needs initialization.
func NewState(p Params) *State {
	return &State{params: p, inputBits: p.InputBitsPerFrame()}
}

// Params returns the current targets.
func (s *State) Params() Params { return s.params }

// SetParams installs new targets. A change after initialization marks the
// state for reset before the next frame.
func (s *State) SetParams(p Params) {
	if p == s.params {
		return
	}
	s.params = p
	s.inputBits = p.InputBitsPerFrame()
	if s.initialized {
		s.needsReset = true
	}
}

// RequestReset forces a reset before the next frame.
func (s *State) RequestReset() {
	if s.initialized {
		s.needsReset = true
	}
}

// NeedsInit reports whether the next frame must run the firmware init or
// reset step.
func (s *State) NeedsInit() bool { return !s.initialized || s.needsReset }

// Resetting reports whether the pending init is a reset of a running state.
func (s *State) Resetting() bool { return s.initialized && s.needsReset }

// Reset reseeds the fullness from the configured initial fullness.
func (s *State) Reset() {
	s.fullness = float64(s.params.InitialFullness)
	s.prevFullness = s.fullness
	s.inputBits = s.params.InputBitsPerFrame()
	s.initialized = true
	s.needsReset = false
}

// Update returns the target size in bits for the current frame. When the
// running fullness exceeds the VBV size it is wrapped down by the VBV size
// and wrapped is true. After Update the fullness lies in [0, VBVBits].
func (s *State) Update() (target uint64, wrapped bool) {
	vbv := float64(s.params.VBVBits)
	if s.fullness > vbv {
		s.fullness -= vbv
		wrapped = true
	}
	s.fullness = max(0, min(s.fullness, vbv))
	return uint64(s.fullness), wrapped
}

// EndFrame records the outcome of a frame and advances the fullness model.
func (s *State) EndFrame(bits uint64, qp int) {
	s.prevFullness = s.fullness
	s.fullness += s.inputBits
	s.frames++
	s.lastBits = bits
	s.lastQP = qp
	s.totalBits += bits
}

// Fullness returns the running target fullness in bits.
func (s *State) Fullness() float64 { return s.fullness }

// PrevFullness returns the fullness before the last EndFrame.
func (s *State) PrevFullness() float64 { return s.prevFullness }

// InputBitsPerFrame returns the per-frame input bits.
func (s *State) InputBitsPerFrame() float64 { return s.inputBits }

// Frames returns the number of frames recorded.
func (s *State) Frames() uint64 { return s.frames }

// Last returns the size and QP of the most recent frame.
func (s *State) Last() (bits uint64, qp int) { return s.lastBits, s.lastQP }

// AverageBitrate returns the achieved bitrate over all recorded frames.
func (s *State) AverageBitrate() float64 {
	if s.frames == 0 || s.params.FPSNum == 0 {
		return 0
	}
	den := s.params.FPSDen
	if den == 0 {
		den = 1
	}
	return float64(s.totalBits) / float64(s.frames) * float64(s.params.FPSNum) / float64(den)
}

// String formats the state for debug logs.
func (s *State) String() string {
	return fmt.Sprintf("RateControl[frames=%d fullness=%.0f/%d input=%.0f]",
		s.frames, s.fullness, s.params.VBVBits, s.inputBits)
}
