package resolver

import "errors"

var (
	// ErrOutsideRoot is returned when a computed destination would escape
	// the destination root.
	ErrOutsideRoot = errors.New("destination escapes destination root")

	// ErrEmptyRoot is returned when the destination root is empty.
	ErrEmptyRoot = errors.New("destination root is empty")

	// ErrEmptySource is returned when the source path is empty.
	ErrEmptySource = errors.New("source path is empty")
)
