package pipeline

import "errors"

// Error classes for per-region failures. Wrapped errors are matched with errors.Is.
var (
	// ErrNetwork covers listing and extract fetch failures.
	ErrNetwork = errors.New("network error")
	// ErrToolFailure covers a filter or converter run that left no usable output.
	ErrToolFailure = errors.New("external tool failure")
	// ErrFilesystem covers directory creation, moves and deletes.
	ErrFilesystem = errors.New("filesystem error")
)
