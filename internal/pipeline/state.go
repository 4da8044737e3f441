// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"strings"
)

// State is one step of the per-pass command sequence.
type State uint8

// Pass states in emission order. StateConditionalEnd only occurs as a
// prefix; StateRefIdx through StateWalker repeat once per slice.
const (
	StateConditionalEnd State = iota
	StatePipeSelect
	StateSurface
	StateBufferAddress
	StateIndirectObject
	StateFirmware
	StateImage
	StateQuantMatrix
	StateRefIdx
	StateWeightOffset
	StateSlice
	StateHeaderInsert
	StateWalker
	StateFlush
)

var stateNames = [...]string{
	StateConditionalEnd: "CONDITIONAL_END",
	StatePipeSelect:     "PIPE_SELECT",
	StateSurface:        "SURFACE_STATE",
	StateBufferAddress:  "BUFFER_ADDRESS_STATE",
	StateIndirectObject: "INDIRECT_OBJECT_ADDRESS_STATE",
	StateFirmware:       "FIRMWARE_INVOKE",
	StateImage:          "IMAGE_STATE",
	StateQuantMatrix:    "QUANT_MATRIX_STATE",
	StateRefIdx:         "REF_IDX_STATE",
	StateWeightOffset:   "WEIGHT_OFFSET_STATE",
	StateSlice:          "SLICE_STATE",
	StateHeaderInsert:   "HEADER_INSERTION",
	StateWalker:         "WALKER_STATE",
	StateFlush:          "FLUSH",
}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Trace records the states one Run visited, in order.
type Trace []State

// Count returns how often s was visited.
func (t Trace) Count(s State) int {
	n := 0
	for _, v := range t {
		if v == s {
			n++
		}
	}
	return n
}

// Contains reports whether s was visited.
func (t Trace) Contains(s State) bool { return t.Count(s) > 0 }

// String joins the state names with arrows.
func (t Trace) String() string {
	parts := make([]string, len(t))
	for i, s := range t {
		parts[i] = s.String()
	}
	return strings.Join(parts, " -> ")
}
