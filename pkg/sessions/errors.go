package sessions

import "errors"

var (
	// ErrSessionNotFound is returned when the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrFileNotFound is returned when a session has no record for the given
	// source path.
	ErrFileNotFound = errors.New("file record not found")

	// ErrFileExists is returned when a file record for the source path was
	// already appended to the session.
	ErrFileExists = errors.New("file record already exists")

	// ErrDeviceBusy is returned when the device already has an in-flight
	// session.
	ErrDeviceBusy = errors.New("device already has an active session")

	// ErrInvalidTransition is returned when a session status update violates
	// the monotonic lifecycle.
	ErrInvalidTransition = errors.New("invalid session status transition")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)
