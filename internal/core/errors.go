// Package core defines sentinel errors.
package core

import "errors"

var (
	// Capture errors: fatal, abort the run without a partial result
	ErrCaptureOpen = errors.New("pcaplens: cannot open capture")
	ErrCaptureRead = errors.New("pcaplens: cannot read capture")

	// Packet filter errors
	ErrFilterInvalid = errors.New("pcaplens: invalid packet filter")

	// Configuration errors
	ErrConfigInvalid = errors.New("pcaplens: invalid configuration")

	// Output errors
	ErrUnsupportedFormat = errors.New("pcaplens: unsupported output format")
	ErrSinkUnknown       = errors.New("pcaplens: unknown sink type")
)
