// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/hwenc/internal/mi"
)

// ErrMalformed is returned by Validate for command streams that are not
// well formed.
var ErrMalformed = errors.New("pipeline: malformed command stream")

// Validate checks that words is a sequence of known commands whose
// lengths tile it exactly, that the first command after the conditional
// end prefix selects a pipe mode and that the last command terminates the
// sequence.
func Validate(words []uint32) error {
	if len(words) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	var last mi.Opcode
	seenBody := false
	for i := 0; i < len(words); {
		op, n := mi.Decode(words[i])
		if !op.Known() {
			return fmt.Errorf("%w: unknown command %#08x at dword %d", ErrMalformed, words[i], i)
		}
		if n <= 0 || i+n > len(words) {
			return fmt.Errorf("%w: %s at dword %d overruns the stream", ErrMalformed, op, i)
		}
		if !seenBody && !isPrefix(op) {
			if !op.IsPipeModeSelect() {
				return fmt.Errorf("%w: sequence starts with %s", ErrMalformed, op)
			}
			seenBody = true
		}
		last = op
		i += n
	}
	if !seenBody {
		return fmt.Errorf("%w: no pipe mode select", ErrMalformed)
	}
	if !last.IsTerminator() {
		return fmt.Errorf("%w: sequence ends with %s", ErrMalformed, last)
	}
	return nil
}

func isPrefix(op mi.Opcode) bool {
	return op == mi.StoreRegisterMem || op == mi.ConditionalBatchBufferEnd
}
