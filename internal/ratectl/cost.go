// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ratectl

import "math/bits"

// Map44 quantizes a cost into the hardware's 4-bit exponent / 4-bit
// mantissa byte. limit is itself a 4.4 value and bounds the result.
//
// The rounding carry of the mantissa propagates into the exponent nibble,
// and a zero mantissa is forced to 8 so every non-zero cost stays non-zero.
func Map44(v int, limit uint8) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= Unmap44(limit) {
		return limit
	}

	d := bits.Len(uint(v)) - 1 - 3
	if d < 0 {
		d = 0
	}
	round := 0
	if d > 0 {
		round = 1 << (d - 1)
	}
	ret := (d << 4) + ((v + round) >> d)
	if ret&0xF == 0 {
		ret |= 8
	}
	return uint8(ret)
}

// Unmap44 decodes a 4.4 value: mantissa << exponent.
func Unmap44(x uint8) int {
	return int(x&0xF) << (x >> 4)
}
