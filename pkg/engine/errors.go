package engine

import "errors"

var (
	// ErrTransferInProgress is returned by Start while a session is
	// transferring or paused on this engine.
	ErrTransferInProgress = errors.New("transfer already in progress")

	// ErrNotTransferring is returned by Pause when nothing is running.
	ErrNotTransferring = errors.New("no transfer in progress")

	// ErrNotPaused is returned by Resume when the session is not paused.
	ErrNotPaused = errors.New("session is not paused")

	// ErrNoFiles is returned by Start when the request carries no files.
	ErrNoFiles = errors.New("transfer request has no files")

	// ErrNotRetryable is returned by Retry for files whose last failure is
	// not a transient kind.
	ErrNotRetryable = errors.New("file error is not retryable")

	// ErrChecksumMismatch is returned when destination verification does
	// not match the source checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch after copy")

	// errCancelled aborts an in-flight copy when the session is cancelled.
	errCancelled = errors.New("transfer cancelled")
)
