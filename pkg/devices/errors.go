package devices

import "errors"

var (
	// ErrAlreadyMonitoring is returned by Monitor.Start when a polling loop
	// is already running.
	ErrAlreadyMonitoring = errors.New("device monitor already running")

	// ErrScanRoot is returned when the scan root does not exist or is not a
	// directory.
	ErrScanRoot = errors.New("scan root is not a readable directory")
)
