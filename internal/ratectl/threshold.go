// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ratectl

import "math"

// ThresholdsPerSide is the number of negative (and positive) deviation
// thresholds in each table.
const ThresholdsPerSide = 4

// Bounds of the bits-per-frame to VBV ratio used as the power-law exponent.
const (
	MinDeviationRatio = 0.1
	MaxDeviationRatio = 3.5
)

// DeviationBase holds the base percentages of one threshold table: the
// first half drives negative deviation, the second half positive.
type DeviationBase struct {
	Negative [ThresholdsPerSide]float64
	Positive [ThresholdsPerSide]float64

	// NegativeScale and PositiveScale multiply base^ratio.
	NegativeScale float64
	PositiveScale float64
}

// DeviationTables are the three base tables used by the firmware.
type DeviationTables struct {
	PB  DeviationBase
	I   DeviationBase
	VBR DeviationBase
}

// Thresholds are scaled deviation thresholds, 8 entries per table in the
// firmware order: four negative then four positive.
type Thresholds struct {
	PB  [2 * ThresholdsPerSide]int8
	I   [2 * ThresholdsPerSide]int8
	VBR [2 * ThresholdsPerSide]int8
}

// DeviationRatio returns bitrate / vbvBits, the bits per second over the
// buffer size, clamped to [MinDeviationRatio, MaxDeviationRatio].
func DeviationRatio(bitrate, vbvBits float64) float64 {
	r := bitrate / vbvBits
	if math.IsNaN(r) || r < MinDeviationRatio {
		return MinDeviationRatio
	}
	if r > MaxDeviationRatio {
		return MaxDeviationRatio
	}
	return r
}

// ScaleDeviation computes the thresholds for ratio (already clamped):
// round(scale * base[i]^ratio) for every entry.
func ScaleDeviation(t DeviationTables, ratio float64) Thresholds {
	var out Thresholds
	scaleTable(&out.PB, t.PB, ratio)
	scaleTable(&out.I, t.I, ratio)
	scaleTable(&out.VBR, t.VBR, ratio)
	return out
}

// DeviationThresholds combines DeviationRatio and ScaleDeviation.
func DeviationThresholds(t DeviationTables, bitrate, vbvBits float64) Thresholds {
	return ScaleDeviation(t, DeviationRatio(bitrate, vbvBits))
}

func scaleTable(dst *[2 * ThresholdsPerSide]int8, base DeviationBase, ratio float64) {
	for i := range ThresholdsPerSide {
		dst[i] = toInt8(math.Round(base.NegativeScale * math.Pow(base.Negative[i], ratio)))
		dst[ThresholdsPerSide+i] = toInt8(math.Round(base.PositiveScale * math.Pow(base.Positive[i], ratio)))
	}
}

func toInt8(v float64) int8 {
	if v > math.MaxInt8 {
		return math.MaxInt8
	}
	if v < math.MinInt8 {
		return math.MinInt8
	}
	return int8(v)
}
