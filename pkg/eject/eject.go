// Package eject safely releases a removable device: filesystem buffers
// are flushed, every mount point is unmounted, and the device is powered
// down so the user can pull it.
package eject

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"offload/pkg/log"
	"offload/pkg/models"
)

const commandTimeout = 30 * time.Second // Timeout for exec commands

var (
	// ErrNoMountPoints is returned when the device has nothing to unmount.
	ErrNoMountPoints = errors.New("device has no mount points")

	// ErrUnmountFailed is returned when any mount point refuses to unmount,
	// usually because something still holds files open on it.
	ErrUnmountFailed = errors.New("unmount failed")
)

// Ejector runs the sync/unmount/power-off sequence. The zero value is not
// usable; construct with New.
type Ejector struct {
	timeout time.Duration
}

// New creates an ejector with the default command timeout.
func New() *Ejector {
	return &Ejector{timeout: commandTimeout}
}

// Eject flushes buffers and unmounts every mount point of the device. The
// caller is responsible for ensuring no transfer is running against the
// device; an unmount under an active copy fails with open file handles.
func (e *Ejector) Eject(ctx context.Context, device *models.Device) error {
	if len(device.MountPoints) == 0 {
		return ErrNoMountPoints
	}

	e.sync(ctx)

	for _, mountPoint := range device.MountPoints {
		if err := e.unmount(ctx, mountPoint); err != nil {
			log.Error().Err(err).
				Str("device", device.ID).
				Str("mount_point", mountPoint).
				Msg("Failed to unmount")
			return fmt.Errorf("%w: %s: %w", ErrUnmountFailed, mountPoint, err)
		}
		log.Info().Str("device", device.ID).Str("mount_point", mountPoint).Msg("Unmounted")
	}

	return nil
}

// sync flushes dirty pages before unmounting. Failure is logged, not
// fatal; umount syncs its own filesystem anyway.
func (e *Ejector) sync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(syncCtx, "sync")
	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Msg("Sync command failed")
	}
}

func (e *Ejector) unmount(ctx context.Context, mountPoint string) error {
	umountCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	//nolint:gosec // mountPoint comes from the kernel mount table, not user input
	cmd := exec.CommandContext(umountCtx, "umount", mountPoint)
	if output, err := cmd.CombinedOutput(); err != nil {
		if len(output) > 0 {
			return fmt.Errorf("%w: %s", err, string(output))
		}
		return err
	}
	return nil
}
