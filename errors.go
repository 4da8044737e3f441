// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwenc

import "errors"

// Session errors. Capability and invalid-frame errors abort one frame and
// leave the session usable; resource, firmware and submission errors fail
// the session, which then refuses further frames with ErrSessionFailed.
var (
	// ErrUnsupported is returned when a frame or configuration needs
	// something the hardware generation cannot do. Nothing is emitted.
	ErrUnsupported = errors.New("hwenc: unsupported")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("hwenc: invalid config")

	// ErrInvalidFrame is returned for frame parameters that cannot be
	// encoded, such as a P frame without references.
	ErrInvalidFrame = errors.New("hwenc: invalid frame")

	// ErrResource is returned when allocating, mapping or emitting into a
	// buffer fails mid-frame.
	ErrResource = errors.New("hwenc: resource failure")

	// ErrFirmware is returned when the BRC firmware gate skipped a pass:
	// the firmware is not loaded or not authenticated.
	ErrFirmware = errors.New("hwenc: BRC firmware not running")

	// ErrSessionFailed is returned for every frame after a session-fatal
	// error.
	ErrSessionFailed = errors.New("hwenc: session failed")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("hwenc: session closed")
)
