package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"offload/pkg/log"
	"offload/pkg/models"
)

func (srv *Server) listDevices(ctx echo.Context) error {
	devs, err := srv.scanner.ListDevices()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list devices",
		})
	}

	return ctx.JSON(http.StatusOK, devs)
}

func (srv *Server) listRemovableDevices(ctx echo.Context) error {
	devs, err := srv.scanner.ListRemovable()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list removable devices")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list removable devices",
		})
	}

	return ctx.JSON(http.StatusOK, devs)
}

func (srv *Server) ejectDevice(ctx echo.Context) error {
	id := ctx.Param("id")

	device, err := srv.findDevice(id)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "device not found",
		})
	}

	// An eject under an active transfer would rip the source out from
	// under the copy loop.
	active, err := srv.store.HasActiveSession(id)
	if err != nil {
		log.Error().Err(err).Str("device", id).Msg("Failed to check active sessions")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to check active sessions",
		})
	}
	if active {
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": "device has an active transfer session",
		})
	}

	if err := srv.ejector.Eject(ctx.Request().Context(), device); err != nil {
		log.Error().Err(err).Str("device", id).Msg("Failed to eject device")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"status": "ejected",
	})
}

var errDeviceNotFound = errors.New("device not found")

func (srv *Server) findDevice(id string) (*models.Device, error) {
	devs, err := srv.scanner.ListDevices()
	if err != nil {
		return nil, err
	}
	for i := range devs {
		if devs[i].ID == id {
			return &devs[i], nil
		}
	}
	return nil, errDeviceNotFound
}
