// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package ratectl implements the host side of bitrate control: the initial
// QP estimate, deviation-threshold scaling, 4.4 cost quantization, the
// buffer-fullness model carried across frames and the pass-count decision.
//
// The calibration constants are empirical values tuned against the BRC
// firmware. They are kept verbatim so the firmware sees the inputs it was
// tuned with; nothing else depends on their exact values.
package ratectl

import (
	"math"

	"github.com/gogpu/hwenc/internal/hw"
)

// Log-linear calibration points of the initial QP fit.
const (
	qpFitX0 = 0.0
	qpFitY0 = 1.19
	qpFitX1 = 1.75
	qpFitY1 = 1.75
)

// QP bounds of the initial estimate.
const (
	MinInitialQP = 1
	MaxInitialQP = 51
)

// InitialQP estimates a starting QP for the first frame from the frame size
// in bytes, the target bitrate, the frame rate and the VBV size in bits.
//
// qp = 1/1.2 * 10^((log10(size*2/3*fpsN/(bitrate*fpsD)) - x0) * (y1-y0)/(x1-x0) + y0)
// rounded, plus 2, plus max(0, 9 - vbv*fpsN/(bitrate*fpsD)), clamped to
// [1, 51], minus 1, then raised to at least 1.
func InitialQP(frameSizeBytes, bitrate, fpsNum, fpsDen, vbvBits uint64) int {
	den := float64(bitrate) * float64(fpsDen)
	ratio := float64(frameSizeBytes) * 2 / 3 * float64(fpsNum) / den

	exp := (math.Log10(ratio)-qpFitX0)*(qpFitY1-qpFitY0)/(qpFitX1-qpFitX0) + qpFitY0
	qp := toInt(1/1.2*math.Pow(10, exp) + 0.5)
	qp += 2

	delta := toInt(9 - float64(vbvBits)*float64(fpsNum)/den)
	if delta > 0 {
		qp += delta
	}

	qp = clamp(qp, MinInitialQP, MaxInitialQP)
	qp--
	if qp < MinInitialQP {
		qp = MinInitialQP
	}
	return qp
}

// toInt truncates toward zero like a C cast, mapping NaN and infinities to
// values the following clamps absorb.
func toInt(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PassCount returns the number of passes for a frame. Modes without BRC
// always run one pass; BRC modes run the requested budget (the default
// when requested is 0) bounded to [1, maxPasses].
func PassCount(mode hw.RateControlMode, requested, defaultPasses, maxPasses int) int {
	if !mode.BRC() {
		return 1
	}
	n := requested
	if n <= 0 {
		n = defaultPasses
	}
	if maxPasses < 1 {
		maxPasses = 1
	}
	return clamp(n, 1, maxPasses)
}

// Pass is the position of one encode pass within its frame.
type Pass struct {
	Index int
	Total int
}

// First reports whether this is pass 0.
func (p Pass) First() bool { return p.Index == 0 }

// Last reports whether this is the final pass of the budget.
func (p Pass) Last() bool { return p.Index == p.Total-1 }

// Passes returns the pass descriptors for a frame with n passes.
func Passes(n int) []Pass {
	out := make([]Pass, n)
	for i := range out {
		out[i] = Pass{Index: i, Total: n}
	}
	return out
}
