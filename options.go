// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwenc

import (
	"context"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/resource"
)

// Submitter executes a resolved command buffer on the video engine and
// returns once the engine is idle. hwsim.GPU is the software model.
type Submitter interface {
	Submit(ctx context.Context, b *cmdbuf.Buffer) error
}

// Option configures a Session during creation.
// Use functional options to inject collaborators.
//
// Example:
//
//	// Simulated engine on host memory
//	s, err := hwenc.New(cfg)
//
//	// Buffers mirrored on a wgpu HAL device
//	s, err := hwenc.New(cfg, hwenc.WithDevice(device, queue))
type Option func(*options)

// options holds optional configuration for Session creation.
type options struct {
	registry   *resource.Registry
	allocator  resource.Allocator
	device     hal.Device
	queue      hal.Queue
	provider   gpucontext.DeviceProvider
	submitter  Submitter
	tables     *Tables
	cmdWords   int
	codedBytes int
}

// defaultOptions returns the default session options.
func defaultOptions() options {
	return options{
		cmdWords: cmdbuf.DefaultMaxWords,
	}
}

// WithRegistry makes the session allocate from an existing registry. Use
// it when the Submitter was created over that registry.
//
// Example:
//
//	reg := resource.NewRegistry(nil)
//	gpu := hwsim.New(reg, hwsim.Config{})
//	s, err := hwenc.New(cfg, hwenc.WithRegistry(reg), hwenc.WithSubmitter(gpu))
func WithRegistry(reg *resource.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithAllocator sets the allocator of a session-owned registry.
func WithAllocator(a resource.Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// WithDevice mirrors every session buffer with a buffer on a wgpu HAL
// device. Host-written buffers are uploaded through queue on Unmap.
func WithDevice(device hal.Device, queue hal.Queue) Option {
	return func(o *options) {
		o.device, o.queue = device, queue
	}
}

// WithDeviceProvider is WithDevice for a device shared through gpucontext.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithSubmitter sets the engine command buffers are submitted to. Without
// it the session runs on a hwsim.GPU over its registry.
func WithSubmitter(s Submitter) Option {
	return func(o *options) {
		o.submitter = s
	}
}

// WithTables replaces the constant tables of the parameter builder and
// the firmware.
func WithTables(t Tables) Option {
	return func(o *options) {
		o.tables = &t
	}
}

// WithCommandBufferWords bounds the command buffer of one pass.
func WithCommandBufferWords(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cmdWords = n
		}
	}
}

// WithCodedBufferSize sets the coded buffer size in bytes, status segment
// included. The default holds one uncompressed frame.
func WithCodedBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.codedBytes = n
		}
	}
}
