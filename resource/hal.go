// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// copyAlignment is the size granularity of device buffers.
const copyAlignment = 4

// HALAllocator mirrors every allocation with a gogpu/wgpu hal.Buffer.
// The host view is authoritative until Upload copies it to the device
// buffer through the queue.
//
// HALAllocator is safe for concurrent use if the underlying device and
// queue are.
type HALAllocator struct {
	device hal.Device
	queue  hal.Queue

	live    atomic.Int64
	uploads atomic.Uint64
}

// NewHALAllocator creates an allocator on an already opened device.
func NewHALAllocator(device hal.Device, queue hal.Queue) (*HALAllocator, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	return &HALAllocator{device: device, queue: queue}, nil
}

// NewHALAllocatorFromProvider shares the device of an external provider.
// The provider must expose HalDevice() any and HalQueue() any returning a
// hal.Device and hal.Queue.
func NewHALAllocatorFromProvider(provider gpucontext.DeviceProvider) (*HALAllocator, error) {
	if provider == nil {
		return nil, ErrNilDevice
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNilDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNilDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNilDevice)
	}
	return NewHALAllocator(device, queue)
}

// Allocate creates a device buffer and its host view.
func (a *HALAllocator) Allocate(size int, kind Kind, label string) (Backing, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrInvalidSize, size, label)
	}
	aligned := (size + copyAlignment - 1) &^ (copyAlignment - 1)

	//nolint:gosec // G115: aligned is positive
	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(aligned),
		Usage: kind.Usage(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create %s buffer %q: %v", ErrOutOfMemory, kind, label, err)
	}
	a.live.Add(1)
	return &halBacking{data: make([]byte, aligned)[:size], buf: buf, owner: a}, nil
}

// Live returns the number of device buffers not yet released.
func (a *HALAllocator) Live() int {
	return int(a.live.Load())
}

// Uploads returns the number of host-to-device uploads performed.
func (a *HALAllocator) Uploads() uint64 {
	return a.uploads.Load()
}

type halBacking struct {
	data  []byte
	buf   hal.Buffer
	owner *HALAllocator
}

func (b *halBacking) Bytes() []byte { return b.data }

func (b *halBacking) Upload() error {
	if b.owner == nil {
		return ErrMapFailed
	}
	// Device writes must cover whole copy units.
	full := b.data[:cap(b.data)]
	b.owner.queue.WriteBuffer(b.buf, 0, full)
	b.owner.uploads.Add(1)
	return nil
}

func (b *halBacking) Release() {
	if b.owner == nil {
		return
	}
	b.owner.device.DestroyBuffer(b.buf)
	b.owner.live.Add(-1)
	b.owner = nil
	b.data = nil
}
