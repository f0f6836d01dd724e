package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"offload/pkg/log"
	"offload/pkg/models"
	"offload/pkg/sessions"
)

// listSessions returns session history, newest first. Optional query
// parameters: status, and from/to as RFC 3339 timestamps.
func (srv *Server) listSessions(ctx echo.Context) error {
	var (
		result []models.TransferSession
		err    error
	)

	status := ctx.QueryParam("status")
	from := ctx.QueryParam("from")
	to := ctx.QueryParam("to")

	switch {
	case status != "":
		result, err = srv.store.GetSessionsByStatus(models.SessionStatus(status))
	case from != "" && to != "":
		var start, end time.Time
		if start, err = time.Parse(time.RFC3339, from); err == nil {
			end, err = time.Parse(time.RFC3339, to)
		}
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": "from and to must be RFC 3339 timestamps",
			})
		}
		result, err = srv.store.GetSessionsInRange(start, end)
	default:
		result, err = srv.store.GetAllSessions()
	}

	if err != nil {
		log.Error().Err(err).Msg("Failed to query sessions")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to query sessions",
		})
	}

	return ctx.JSON(http.StatusOK, result)
}

func (srv *Server) getSession(ctx echo.Context) error {
	session, err := srv.store.GetSession(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": "session not found",
			})
		}
		log.Error().Err(err).Msg("Failed to load session")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to load session",
		})
	}

	return ctx.JSON(http.StatusOK, session)
}
