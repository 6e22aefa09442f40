// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, wrapped with %w and matched with errors.Is.
var (
	// Packet projection errors
	ErrBadLength = errors.New("flowkey: packet shorter than ethernet header")

	// Source errors
	ErrUnsupportedLinkType = errors.New("flowkey: unsupported link type")
	ErrSourceClosed        = errors.New("flowkey: source closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("flowkey: invalid configuration")

	// Pipeline errors
	ErrPipelineStopped = errors.New("flowkey: pipeline stopped")
)
