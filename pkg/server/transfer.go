package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"offload/pkg/engine"
	"offload/pkg/log"
	"offload/pkg/models"
	"offload/pkg/sessions"
)

func (srv *Server) validateTransfer(ctx echo.Context) error {
	var req models.TransferRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid transfer request",
		})
	}

	result, err := srv.validator.Validate(&req)
	if err != nil {
		log.Error().Err(err).Msg("Validation failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "validation failed",
		})
	}

	return ctx.JSON(http.StatusOK, result)
}

func (srv *Server) startTransfer(ctx echo.Context) error {
	var req models.TransferRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid transfer request",
		})
	}

	// Preflight gates the start; a structurally invalid or space-starved
	// request never reaches the engine.
	validation, err := srv.validator.Validate(&req)
	if err != nil {
		log.Error().Err(err).Msg("Validation failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "validation failed",
		})
	}
	if !validation.CanProceed {
		return ctx.JSON(http.StatusUnprocessableEntity, validation)
	}

	sessionID, err := srv.engine.Start(&req)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrTransferInProgress), errors.Is(err, sessions.ErrDeviceBusy):
			return ctx.JSON(http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, engine.ErrNoFiles):
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		}
		log.Error().Err(err).Msg("Failed to start transfer")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to start transfer",
		})
	}

	return ctx.JSON(http.StatusAccepted, map[string]string{
		"session_id": sessionID,
	})
}

func (srv *Server) pauseTransfer(ctx echo.Context) error {
	if err := srv.engine.Pause(); err != nil {
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "pausing"})
}

func (srv *Server) resumeTransfer(ctx echo.Context) error {
	if err := srv.engine.Resume(); err != nil {
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "transferring"})
}

func (srv *Server) cancelTransfer(ctx echo.Context) error {
	if err := srv.engine.Cancel(); err != nil {
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "cancelling"})
}

type retryRequest struct {
	SessionID  string `json:"session_id"`
	SourcePath string `json:"source_path"`
}

func (srv *Server) retryFile(ctx echo.Context) error {
	var req retryRequest
	if err := ctx.Bind(&req); err != nil || req.SessionID == "" || req.SourcePath == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "session_id and source_path are required",
		})
	}

	err := srv.engine.Retry(req.SessionID, req.SourcePath)
	switch {
	case err == nil:
		return ctx.JSON(http.StatusOK, map[string]string{"status": "complete"})
	case errors.Is(err, sessions.ErrSessionNotFound), errors.Is(err, sessions.ErrFileNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrNotRetryable), errors.Is(err, engine.ErrTransferInProgress):
		return ctx.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Error().Err(err).Str("source", req.SourcePath).Msg("Retry failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (srv *Server) getProgress(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, srv.engine.Snapshot())
}
