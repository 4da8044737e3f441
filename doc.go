// Package hwenc drives a fixed-function GPU video encoder: it sequences the
// command buffers of every encoding pass and runs the multi-pass bitrate
// control loop on the HuC microcontroller firmware.
//
// # Overview
//
// A Session owns one encoder context. It is created for a codec (AVC or
// VP9) on a hardware generation, allocates the buffers its passes
// reference and keeps the rate-control state carried from frame to frame.
//
//	s, err := hwenc.New(hwenc.Config{
//		Codec:         hwenc.CodecAVC,
//		Generation:    hwenc.Gen10,
//		Width:         1920,
//		Height:        1080,
//		RateControl:   hwenc.RateControlCBR,
//		TargetBitrate: 4_000_000,
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	res, err := s.EncodeFrame(ctx, hwenc.FrameParams{
//		Type:    s.NextFrameType(),
//		Picture: img,
//	})
//
// # Bitrate control
//
// With CBR or VBR every frame runs up to Config.MaxPasses passes. The first
// pass of the first frame initializes the firmware history; every pass
// then lets the firmware choose a QP and write the image state, and the
// PAK reports whether the coded size fell inside the window the firmware
// programmed. A pass that converged gates off the passes after it. A frame
// still outside the window after the last pass is accepted and flagged in
// FrameResult.
//
// CQP and NONE run one pass at Config.QP or FrameParams.QP.
//
// # Submission
//
// Command buffers are handed to a Submitter. The default is the software
// model in package hwsim, which executes the command stream against the
// session's registry. WithDevice and WithDeviceProvider mirror every
// buffer into a wgpu HAL device.
//
// # Errors
//
// Capability errors (ErrUnsupported) and frame errors (ErrInvalidFrame)
// abort one frame. Resource, submission and firmware errors fail the
// session: later calls return ErrSessionFailed.
//
// # Logging
//
// Logging is silent by default; see SetLogger.
package hwenc
