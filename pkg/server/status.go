package server

import (
	"net/http"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"offload/pkg/log"
)

// Status is the service health summary.
type Status struct {
	Version         string      `json:"version"`
	Uptime          string      `json:"uptime"`
	UptimeSeconds   int64       `json:"uptime_seconds"`
	Transferring    bool        `json:"transferring"`
	DestinationRoot string      `json:"destination_root"`
	Destination     StorageInfo `json:"destination"`
}

// StorageInfo is disk usage for the destination filesystem.
type StorageInfo struct {
	Total          uint64 `json:"total"`
	Available      uint64 `json:"available"`
	TotalHuman     string `json:"total_human"`
	AvailableHuman string `json:"available_human"`
}

func (srv *Server) getStatus(ctx echo.Context) error {
	storage, err := destinationStorage(srv.destinationRoot)
	if err != nil {
		log.Error().Err(err).Str("destination", srv.destinationRoot).Msg("Failed to stat destination")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to stat destination",
		})
	}

	uptime := time.Since(srv.startedAt)
	return ctx.JSON(http.StatusOK, &Status{
		Version:         srv.version,
		Uptime:          uptime.Round(time.Second).String(),
		UptimeSeconds:   int64(uptime.Seconds()),
		Transferring:    srv.engine.IsTransferring(),
		DestinationRoot: srv.destinationRoot,
		Destination:     *storage,
	})
}

func destinationStorage(path string) (*StorageInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}

	blockSize := uint64(stat.Bsize) // #nosec G115 - syscall values are system dependent
	total := stat.Blocks * blockSize
	available := stat.Bavail * blockSize

	return &StorageInfo{
		Total:          total,
		Available:      available,
		TotalHuman:     humanize.IBytes(total),
		AvailableHuman: humanize.IBytes(available),
	}, nil
}
