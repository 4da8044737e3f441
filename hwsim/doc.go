// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package hwsim is a software model of the video engine the encoder
// programs. It executes resolved command buffers against the buffers of a
// resource.Registry.
//
// The model covers what the encoder observes:
//
//   - the command streamer: register loads and stores, immediate stores,
//     second-level batches and conditional batch ends in mask mode;
//   - the HuC with its BRC init and update functions, which read their
//     DMEM and history and write the second-level image state of a pass;
//   - the PAK, which turns the programmed image and slice states into a
//     frame size from a rate model, raises the frame-size status flags
//     against the image-state bounds and writes header and payload bytes
//     into the coded buffer.
//
// Pixels are never looked at. Frame sizes depend on the quantizer, the
// frame type, the ROI zone map and a configurable complexity factor.
//
// Basic usage:
//
//	gpu := hwsim.New(reg, hwsim.Config{})
//	if err := gpu.Submit(ctx, buf); err != nil {
//		return err
//	}
package hwsim
