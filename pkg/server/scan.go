package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"offload/pkg/devices"
	"offload/pkg/log"
)

type scanRequest struct {
	Root string `json:"root"`
}

func (srv *Server) scanDevice(ctx echo.Context) error {
	var req scanRequest
	if err := ctx.Bind(&req); err != nil || req.Root == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "root parameter is required",
		})
	}

	result, err := srv.scanner.Scan(req.Root, srv.cfg)
	if err != nil {
		if errors.Is(err, devices.ErrScanRoot) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": "scan root is not a readable directory",
			})
		}
		log.Error().Err(err).Str("root", req.Root).Msg("Scan failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "scan failed",
		})
	}

	return ctx.JSON(http.StatusOK, result)
}
