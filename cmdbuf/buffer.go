// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cmdbuf records command-streamer words for one submission.
//
// Commands are written in begin/advance brackets: Begin reserves the exact
// number of words a command occupies, Emit and EmitAddress fill them, and
// Advance closes the bracket. Writing more or fewer words than reserved is
// a bug in the caller and panics. Buffer addresses are emitted as
// placeholders with a relocation record and patched by Resolve before the
// buffer is submitted.
//
// State machine:
//
//	Idle      -> Begin(n)  -> Reserved
//	Reserved  -> Advance() -> Idle
//	Idle      -> Resolve() -> Resolved (no further Begin)
//
// Buffer is NOT safe for concurrent use.
package cmdbuf

import (
	"errors"
	"fmt"

	"github.com/gogpu/hwenc/resource"
)

// Buffer errors.
var (
	// ErrBufferFull is returned when a reservation exceeds the buffer capacity.
	ErrBufferFull = errors.New("cmdbuf: buffer full")

	// ErrUnresolved is returned when a relocation target has no GPU address.
	ErrUnresolved = errors.New("cmdbuf: unresolved relocation")
)

// DefaultMaxWords is the capacity used when New is given a non-positive size
// (64 KiB of commands).
const DefaultMaxWords = 16 * 1024

// Reloc records one deferred buffer address.
type Reloc struct {
	// Index is the word position of the low address word.
	Index int
	// Target is the referenced resource.
	Target resource.Handle
	// Offset is the byte offset inside Target.
	Offset uint32
	// Writable marks targets the GPU writes.
	Writable bool
}

// Buffer is an append-only sequence of 32-bit command words.
type Buffer struct {
	label    string
	words    []uint32
	maxWords int
	relocs   []Reloc

	open     bool
	start    int
	reserved int

	resolved bool
}

// New creates an empty buffer that can hold up to maxWords words.
func New(label string, maxWords int) *Buffer {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return &Buffer{
		label:    label,
		words:    make([]uint32, 0, min(maxWords, 1024)),
		maxWords: maxWords,
	}
}

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Begin reserves n words for the next command.
func (b *Buffer) Begin(n int) error {
	if b.open {
		panic(fmt.Sprintf("cmdbuf: %s: Begin(%d) while a %d-word bracket at %d is open",
			b.label, n, b.reserved, b.start))
	}
	if b.resolved {
		panic(fmt.Sprintf("cmdbuf: %s: Begin after Resolve", b.label))
	}
	if n <= 0 {
		panic(fmt.Sprintf("cmdbuf: %s: Begin(%d)", b.label, n))
	}
	if len(b.words)+n > b.maxWords {
		return fmt.Errorf("%w: %s needs %d words, %d of %d used",
			ErrBufferFull, b.label, n, len(b.words), b.maxWords)
	}
	b.open = true
	b.start = len(b.words)
	b.reserved = n
	return nil
}

func (b *Buffer) checkRoom(n int) {
	if !b.open {
		panic(fmt.Sprintf("cmdbuf: %s: emit outside Begin/Advance", b.label))
	}
	if len(b.words)-b.start+n > b.reserved {
		panic(fmt.Sprintf("cmdbuf: %s: command at %d overruns its %d reserved words",
			b.label, b.start, b.reserved))
	}
}

// Emit appends words to the open reservation.
func (b *Buffer) Emit(words ...uint32) {
	b.checkRoom(len(words))
	b.words = append(b.words, words...)
}

// EmitAddress appends a two-word 48-bit address placeholder for offset
// bytes into h and records its relocation. A zero handle emits a null
// address without a relocation.
func (b *Buffer) EmitAddress(h resource.Handle, writable bool, offset uint32) {
	b.checkRoom(2)
	if h.IsZero() {
		b.words = append(b.words, 0, 0)
		return
	}
	b.relocs = append(b.relocs, Reloc{
		Index:    len(b.words),
		Target:   h,
		Offset:   offset,
		Writable: writable,
	})
	b.words = append(b.words, offset, 0)
}

// Advance closes the open reservation. The reserved count must have been
// written exactly.
func (b *Buffer) Advance() {
	if !b.open {
		panic(fmt.Sprintf("cmdbuf: %s: Advance without Begin", b.label))
	}
	if got := len(b.words) - b.start; got != b.reserved {
		panic(fmt.Sprintf("cmdbuf: %s: command at %d wrote %d words, reserved %d",
			b.label, b.start, got, b.reserved))
	}
	b.open = false
}

// Len returns the number of committed words.
func (b *Buffer) Len() int { return len(b.words) }

// Words returns the recorded words. The slice aliases the buffer.
func (b *Buffer) Words() []uint32 { return b.words }

// Relocations returns the deferred addresses.
func (b *Buffer) Relocations() []Reloc { return b.relocs }

// Resolve patches every relocation with the address returned by addr. The
// buffer cannot take new commands afterwards.
func (b *Buffer) Resolve(addr func(resource.Handle) uint64) error {
	if b.open {
		panic(fmt.Sprintf("cmdbuf: %s: Resolve with an open bracket", b.label))
	}
	for _, r := range b.relocs {
		base := addr(r.Target)
		if base == 0 {
			return fmt.Errorf("%w: %s word %d targets %s", ErrUnresolved, b.label, r.Index, r.Target)
		}
		a := base + uint64(r.Offset)
		b.words[r.Index] = uint32(a)
		b.words[r.Index+1] = uint32(a>>32) & 0xFFFF
	}
	b.resolved = true
	return nil
}

// Resolved reports whether Resolve succeeded.
func (b *Buffer) Resolved() bool { return b.resolved }

// Reset empties the buffer for reuse.
func (b *Buffer) Reset() {
	if b.open {
		panic(fmt.Sprintf("cmdbuf: %s: Reset with an open bracket", b.label))
	}
	b.words = b.words[:0]
	b.relocs = b.relocs[:0]
	b.resolved = false
}
