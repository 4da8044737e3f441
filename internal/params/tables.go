// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package params

import (
	"math"

	"github.com/gogpu/hwenc/internal/ratectl"
)

// NumQP is the number of AVC QP values.
const NumQP = 52

// Mode-cost slots of one AVC cost entry.
const (
	CostIntra16x16 = iota
	CostIntra8x8
	CostIntra4x4
	CostInterSkip
	CostInter16x16
	CostInter8x8
	CostRefID
	CostChromaIntra
	NumModeCosts
)

// NumMVCosts is the number of motion-vector cost steps per QP.
const NumMVCosts = 8

// Tables is the constant data the builder and firmware consume. It is a
// value type: every session holds its own copy and never mutates it.
type Tables struct {
	// Deviation holds the base percentages of the deviation thresholds.
	Deviation ratectl.DeviationTables

	// GlobalRateRatio are the bits-to-target ratio thresholds (percent)
	// that select one of the GlobalRateQPAdj steps.
	GlobalRateRatio [7]uint8
	GlobalRateQPAdj [8]int8

	// StartGlobalAdjust* shape the ramp the firmware applies during the
	// first frames of a sequence.
	StartGlobalAdjustFrame [4]uint16
	StartGlobalAdjustMult  [5]uint8
	StartGlobalAdjustDiv   [5]uint8

	// InstRateThresh* are instantaneous rate thresholds per frame type.
	InstRateThreshP [4]uint8
	InstRateThreshB [4]uint8
	InstRateThreshI [4]uint8

	// OvershootCBRPercent bounds a CBR frame at this percentage of its
	// target size; the minimum is mirrored below 100.
	OvershootCBRPercent uint8

	// SceneChangeIntraPercent is the share of intra blocks that marks a
	// scene change.
	SceneChangeIntraPercent uint8

	// ModeCost holds raw AVC mode costs per QP; MVCost holds raw motion
	// vector costs. Both are quantized with ratectl.Map44 when written.
	ModeCost    [NumQP][NumModeCosts]int
	MVCost      [NumQP][NumMVCosts]int
	ModeCostMax uint8
	MVCostMax   uint8

	// VP9QIndex maps an AVC-scale QP to the VP9 base qindex.
	VP9QIndex [NumQP]uint8

	// ROIQIndexStep converts one ROI QP-delta step to VP9 qindex units.
	ROIQIndexStep int
}

// DefaultTables returns the tables the firmware is tuned with.
func DefaultTables() Tables {
	t := Tables{
		Deviation: ratectl.DeviationTables{
			PB: ratectl.DeviationBase{
				Negative:      [4]float64{0.90, 0.66, 0.46, 0.3},
				Positive:      [4]float64{0.3, 0.46, 0.70, 0.90},
				NegativeScale: -50,
				PositiveScale: 50,
			},
			I: ratectl.DeviationBase{
				Negative:      [4]float64{0.80, 0.60, 0.34, 0.2},
				Positive:      [4]float64{0.2, 0.4, 0.66, 0.9},
				NegativeScale: -50,
				PositiveScale: 50,
			},
			VBR: ratectl.DeviationBase{
				Negative:      [4]float64{0.90, 0.70, 0.50, 0.3},
				Positive:      [4]float64{0.4, 0.5, 0.75, 0.90},
				NegativeScale: -50,
				PositiveScale: 100,
			},
		},
		GlobalRateRatio:         [7]uint8{80, 95, 99, 101, 105, 125, 160},
		GlobalRateQPAdj:         [8]int8{-3, -2, -1, 0, 1, 1, 2, 3},
		StartGlobalAdjustFrame:  [4]uint16{10, 50, 100, 150},
		StartGlobalAdjustMult:   [5]uint8{1, 1, 3, 2, 1},
		StartGlobalAdjustDiv:    [5]uint8{40, 5, 5, 3, 1},
		InstRateThreshP:         [4]uint8{30, 50, 90, 115},
		InstRateThreshB:         [4]uint8{30, 50, 90, 115},
		InstRateThreshI:         [4]uint8{30, 50, 90, 115},
		OvershootCBRPercent:     115,
		SceneChangeIntraPercent: 90,
		ModeCostMax:             0x6F,
		MVCostMax:               0x6F,
		ROIQIndexStep:           5,
	}

	// Mode costs scale with the AVC Lagrangian 0.85 * 2^((qp-12)/3).
	weights := [NumModeCosts]float64{
		CostIntra16x16:  6,
		CostIntra8x8:    10,
		CostIntra4x4:    14,
		CostInterSkip:   1,
		CostInter16x16:  3,
		CostInter8x8:    8,
		CostRefID:       2,
		CostChromaIntra: 4,
	}
	for qp := range NumQP {
		lambda := math.Sqrt(0.85 * math.Pow(2, float64(qp-12)/3))
		for i, w := range weights {
			t.ModeCost[qp][i] = int(math.Round(w * lambda))
		}
		for i := range NumMVCosts {
			t.MVCost[qp][i] = int(math.Round(lambda * float64(1+2*i)))
		}
		t.VP9QIndex[qp] = uint8(min(255, max(1, qp*5)))
	}
	return t
}

// VP9QIndexFor returns the VP9 qindex for an AVC-scale qp.
func (t *Tables) VP9QIndexFor(qp int) int {
	return int(t.VP9QIndex[clampQP(qp)])
}

// QPForQIndex returns the smallest AVC-scale QP whose qindex reaches q.
func (t *Tables) QPForQIndex(q int) int {
	for qp, v := range t.VP9QIndex {
		if int(v) >= q {
			return qp
		}
	}
	return NumQP - 1
}

func clampQP(qp int) int {
	return max(0, min(NumQP-1, qp))
}
