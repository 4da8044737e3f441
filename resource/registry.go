// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource tracks the GPU-visible buffers of an encoder session.
//
// Buffers are referenced by generation-checked handles: freeing a buffer
// bumps the generation of its slot, so a stale handle can never reach a
// later allocation that reuses the slot. Every allocation also receives a
// presumed GPU virtual address that command buffers embed and that a
// submission back end resolves to the buffer again.
package resource

import (
	"errors"
	"fmt"
	"sync"
)

// Registry errors.
var (
	// ErrOutOfMemory is returned when the allocator cannot satisfy a request.
	ErrOutOfMemory = errors.New("resource: out of memory")

	// ErrMapFailed is returned when mapping a freed or already mapped resource.
	ErrMapFailed = errors.New("resource: map failed")

	// ErrInvalidSize is returned for non-positive allocation sizes.
	ErrInvalidSize = errors.New("resource: invalid size")

	// ErrNilDevice is returned when a device-backed allocator has no device.
	ErrNilDevice = errors.New("resource: device is nil")
)

const (
	// addressBase is the first presumed GPU address handed out.
	addressBase uint64 = 0x0001_0000_0000
	// addressAlign is the page granularity of presumed addresses.
	addressAlign uint64 = 4096
)

// Handle references one allocation. The zero Handle is never allocated.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.index == 0 }

// String formats the handle for logs.
func (h Handle) String() string {
	if h.IsZero() {
		return "res(nil)"
	}
	return fmt.Sprintf("res(%d#%d)", h.index, h.gen)
}

type entry struct {
	gen     uint32
	live    bool
	mapped  bool
	backing Backing
	size    int
	kind    Kind
	label   string
	addr    uint64
}

// Stats summarizes registry usage.
type Stats struct {
	Live        int
	LiveBytes   uint64
	PeakBytes   uint64
	Allocations uint64
	Frees       uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Resources[%d live, %d KB, peak %d KB, %d allocs, %d frees]",
		s.Live, s.LiveBytes/1024, s.PeakBytes/1024, s.Allocations, s.Frees)
}

// Registry owns the resources of one session.
//
// Registry is safe for concurrent use, but the encoder core drives it from
// a single goroutine.
type Registry struct {
	mu       sync.Mutex
	alloc    Allocator
	entries  []entry
	free     []uint32
	nextAddr uint64
	stats    Stats
}

// NewRegistry creates a registry on top of alloc. A nil alloc selects a
// HostAllocator with the default budget.
func NewRegistry(alloc Allocator) *Registry {
	if alloc == nil {
		alloc = NewHostAllocator(HostConfig{})
	}
	return &Registry{
		alloc:    alloc,
		entries:  make([]entry, 1, 64), // slot 0 is the zero handle
		nextAddr: addressBase,
	}
}

// Allocate creates a zero-filled resource of size bytes.
func (r *Registry) Allocate(size int, kind Kind, label string) (Handle, error) {
	b, err := r.alloc.Allocate(size, kind, label)
	if err != nil {
		return Handle{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.entries = append(r.entries, entry{})
		//nolint:gosec // G115: slot count stays far below 2^32
		idx = uint32(len(r.entries) - 1)
	}

	e := &r.entries[idx]
	e.gen++
	e.live = true
	e.mapped = false
	e.backing = b
	e.size = size
	e.kind = kind
	e.label = label
	e.addr = r.nextAddr
	//nolint:gosec // G115: size is positive
	r.nextAddr += (uint64(size) + addressAlign - 1) &^ (addressAlign - 1)

	r.stats.Live++
	//nolint:gosec // G115: size is positive
	r.stats.LiveBytes += uint64(size)
	if r.stats.LiveBytes > r.stats.PeakBytes {
		r.stats.PeakBytes = r.stats.LiveBytes
	}
	r.stats.Allocations++

	return Handle{index: idx, gen: e.gen}, nil
}

// lookupLocked returns the live entry for h. The caller must hold r.mu.
func (r *Registry) lookupLocked(h Handle) (*entry, bool) {
	if h.IsZero() || int(h.index) >= len(r.entries) {
		return nil, false
	}
	e := &r.entries[h.index]
	if !e.live || e.gen != h.gen {
		return nil, false
	}
	return e, true
}

// Valid reports whether h refers to a live resource.
func (r *Registry) Valid(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lookupLocked(h)
	return ok
}

// Map gives the host exclusive access to the resource contents until Unmap.
// The caller must have waited for GPU work that reads the resource.
func (r *Registry) Map(h Handle) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.lookupLocked(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a live resource", ErrMapFailed, h)
	}
	if e.mapped {
		return nil, fmt.Errorf("%w: %s (%s) is already mapped", ErrMapFailed, h, e.label)
	}
	e.mapped = true
	return e.backing.Bytes(), nil
}

// Unmap ends host access and uploads host-written kinds to the device copy.
// Unmapping a resource that is not mapped is a no-op.
func (r *Registry) Unmap(h Handle) error {
	r.mu.Lock()
	e, ok := r.lookupLocked(h)
	if !ok || !e.mapped {
		r.mu.Unlock()
		return nil
	}
	e.mapped = false
	b, upload := e.backing, e.kind.HostWritten()
	r.mu.Unlock()

	if upload {
		return b.Upload()
	}
	return nil
}

// Zero clears the resource contents. It is used for buffers whose stale
// contents would corrupt firmware state when reused across frames.
func (r *Registry) Zero(h Handle) error {
	r.mu.Lock()
	e, ok := r.lookupLocked(h)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: zero of %s", ErrMapFailed, h)
	}
	b := e.backing
	clear(b.Bytes())
	r.mu.Unlock()
	return b.Upload()
}

// Free releases the resource and invalidates h. Freeing the zero handle is
// a no-op; freeing a stale handle is a programming error and panics.
func (r *Registry) Free(h Handle) {
	if h.IsZero() {
		return
	}

	r.mu.Lock()
	e, ok := r.lookupLocked(h)
	if !ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("resource: free of stale handle %s", h))
	}
	b := e.backing
	//nolint:gosec // G115: size is positive
	r.stats.LiveBytes -= uint64(e.size)
	r.stats.Live--
	r.stats.Frees++
	*e = entry{gen: e.gen}
	r.free = append(r.free, h.index)
	r.mu.Unlock()

	b.Release()
}

// Size returns the byte size of the resource, or 0 for an invalid handle.
func (r *Registry) Size(h Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.lookupLocked(h); ok {
		return e.size
	}
	return 0
}

// Kind returns the kind of the resource.
func (r *Registry) Kind(h Handle) Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.lookupLocked(h); ok {
		return e.kind
	}
	return KindScratch
}

// Label returns the debug label of the resource.
func (r *Registry) Label(h Handle) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.lookupLocked(h); ok {
		return e.label
	}
	return ""
}

// Address returns the presumed GPU address of the resource, or 0.
func (r *Registry) Address(h Handle) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.lookupLocked(h); ok {
		return e.addr
	}
	return 0
}

// Resolve maps a GPU address back to the live resource that contains it.
func (r *Registry) Resolve(addr uint64) (Handle, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i < len(r.entries); i++ {
		e := &r.entries[i]
		//nolint:gosec // G115: size is positive
		if e.live && addr >= e.addr && addr < e.addr+uint64(e.size) {
			//nolint:gosec // G115: i bounded by entry count
			return Handle{index: uint32(i), gen: e.gen}, int(addr - e.addr), true
		}
	}
	return Handle{}, 0, false
}

// Device returns the device-side view of the resource. Submission back ends
// use it to model GPU reads and writes; it does not take part in host map
// exclusivity.
func (r *Registry) Device(h Handle) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lookupLocked(h)
	if !ok {
		return nil, fmt.Errorf("%w: device access to %s", ErrMapFailed, h)
	}
	return e.backing.Bytes(), nil
}

// Stats returns a snapshot of the usage counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Write copies data into the resource at offset through a Map/Unmap pair.
func (r *Registry) Write(h Handle, offset int, data []byte) error {
	buf, err := r.Map(h)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > len(buf) {
		_ = r.Unmap(h)
		return fmt.Errorf("%w: write of %d bytes at %d exceeds %s size %d",
			ErrMapFailed, len(data), offset, h, len(buf))
	}
	copy(buf[offset:], data)
	return r.Unmap(h)
}

// Read copies n bytes at offset out of the resource.
func (r *Registry) Read(h Handle, offset, n int) ([]byte, error) {
	buf, err := r.Map(h)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Unmap(h) }()
	if offset < 0 || n < 0 || offset+n > len(buf) {
		return nil, fmt.Errorf("%w: read of %d bytes at %d exceeds %s size %d",
			ErrMapFailed, n, offset, h, len(buf))
	}
	out := make([]byte, n)
	copy(out, buf[offset:offset+n])
	return out, nil
}
