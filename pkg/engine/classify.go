package engine

import (
	"errors"
	"os"
	"syscall"

	"offload/pkg/models"
)

// classify maps a copy failure to the error taxonomy. A vanished source or
// dead device node mid-session is treated as a disconnect, which keeps the
// file eligible for retry once the device returns.
func classify(err error) models.ErrorKind {
	switch {
	case err == nil:
		return models.ErrKindNone
	case errors.Is(err, ErrChecksumMismatch):
		return models.ErrKindChecksumMismatch
	case errors.Is(err, os.ErrPermission):
		return models.ErrKindPermission
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENODEV, syscall.ENXIO, syscall.EIO, syscall.ESTALE, syscall.ENOMEDIUM:
			return models.ErrKindDriveDisconnected
		case syscall.ENETDOWN, syscall.ENETUNREACH, syscall.ETIMEDOUT,
			syscall.ECONNRESET, syscall.EHOSTDOWN, syscall.EHOSTUNREACH:
			return models.ErrKindNetwork
		case syscall.EACCES, syscall.EPERM:
			return models.ErrKindPermission
		}
	}

	if errors.Is(err, os.ErrNotExist) {
		return models.ErrKindDriveDisconnected
	}

	return models.ErrKindOther
}
