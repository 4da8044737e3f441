// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"sync"
)

// Default host budget.
const (
	// DefaultBudgetMB is the default host allocator budget (512 MB).
	DefaultBudgetMB = 512

	// MinBudgetMB is the smallest budget a HostAllocator accepts.
	MinBudgetMB = 1
)

// Backing is the storage behind one allocation: a host-visible byte slice
// plus whatever device object mirrors it.
type Backing interface {
	// Bytes returns the host view of the allocation.
	Bytes() []byte

	// Upload pushes the host view to the device copy. Host-only backings
	// return nil.
	Upload() error

	// Release frees the backing. It is called exactly once.
	Release()
}

// Allocator creates backings for the Registry.
type Allocator interface {
	Allocate(size int, kind Kind, label string) (Backing, error)
}

// HostConfig configures a HostAllocator.
type HostConfig struct {
	// BudgetMB bounds the total live allocation size in megabytes.
	// Defaults to DefaultBudgetMB if < MinBudgetMB.
	BudgetMB int

	// BudgetBytes overrides BudgetMB with an exact byte budget when > 0.
	BudgetBytes uint64
}

// HostAllocator allocates zeroed host memory within a byte budget.
//
// HostAllocator is safe for concurrent use.
type HostAllocator struct {
	mu     sync.Mutex
	budget uint64
	used   uint64
}

// NewHostAllocator creates a HostAllocator.
func NewHostAllocator(cfg HostConfig) *HostAllocator {
	budget := cfg.BudgetBytes
	if budget == 0 {
		mb := cfg.BudgetMB
		if mb < MinBudgetMB {
			mb = DefaultBudgetMB
		}
		//nolint:gosec // G115: mb is positive
		budget = uint64(mb) * 1024 * 1024
	}
	return &HostAllocator{budget: budget}
}

// Allocate reserves size bytes of zeroed memory.
func (a *HostAllocator) Allocate(size int, kind Kind, label string) (Backing, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrInvalidSize, size, label)
	}
	n := uint64(size)

	a.mu.Lock()
	if a.used+n > a.budget {
		used := a.used
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %s %q needs %d bytes, %d of %d in use",
			ErrOutOfMemory, kind, label, n, used, a.budget)
	}
	a.used += n
	a.mu.Unlock()

	return &hostBacking{data: make([]byte, size), owner: a}, nil
}

// Used returns the bytes currently allocated.
func (a *HostAllocator) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Budget returns the configured budget in bytes.
func (a *HostAllocator) Budget() uint64 {
	return a.budget
}

func (a *HostAllocator) release(n uint64) {
	a.mu.Lock()
	a.used -= n
	a.mu.Unlock()
}

type hostBacking struct {
	data  []byte
	owner *HostAllocator
}

func (b *hostBacking) Bytes() []byte { return b.data }
func (b *hostBacking) Upload() error { return nil }

func (b *hostBacking) Release() {
	if b.owner != nil {
		b.owner.release(uint64(len(b.data)))
		b.owner = nil
	}
	b.data = nil
}
