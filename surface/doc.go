// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface manages the pictures the encoder reads and reconstructs.
//
// A Surface is an NV12 (or single-plane Y8) picture stored in a
// resource.Registry buffer. Source pictures are uploaded from any
// image.Image; the 4x downscaled luma surface used by the motion-estimation
// pre-pass is derived with golang.org/x/image/draw.
//
// A ReferenceSet holds the reconstructed pictures later frames predict
// from, most recent first:
//
//	refs := surface.NewReferenceSet(caps.MaxRefs)
//	refs.Promote(surface.Reference{Picture: recon, Scaled: reconDS})
//	if err := refs.Validate(reg, nextRecon.Handle); err != nil {
//		return err
//	}
package surface
