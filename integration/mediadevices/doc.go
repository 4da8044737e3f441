// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mediadevices adapts hwenc sessions to pion/mediadevices.
//
// ConfigFrom maps the codec parameters and media properties a
// mediadevices track negotiates into an hwenc.Config. Encoder pulls
// frames from a video.Reader and returns one coded frame per Read, the
// way mediadevices encoders do:
//
//	params := mediadevices.NewAVCParams()
//	params.BitRate = 2_000_000
//	enc, err := mediadevices.NewEncoder(reader, prop.Media{
//		Video: prop.Video{Width: 1280, Height: 720, FrameRate: 30},
//	}, params)
//	if err != nil {
//		return err
//	}
//	defer enc.Close()
//
//	for {
//		frame, release, err := enc.Read()
//		...
//	}
//
// The bitstream headers are left to the caller; Encoder emits the coded
// payload of every frame.
//
// # Thread Safety
//
// Encoder is safe for concurrent use; Read calls are serialized.
package mediadevices
