// Package server exposes the ingest pipeline over HTTP: device discovery,
// scanning, preflight validation, transfer control, session history and
// safe eject.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"offload/pkg/config"
	"offload/pkg/devices"
	"offload/pkg/eject"
	"offload/pkg/engine"
	"offload/pkg/log"
	"offload/pkg/preflight"
	"offload/pkg/sessions"
)

const shutdownTimeout = 10

// Server wires the pipeline components behind an HTTP API.
type Server struct {
	echo            *echo.Echo
	version         string
	destinationRoot string
	startedAt       time.Time

	cfg       *config.Config
	scanner   *devices.Scanner
	validator *preflight.Validator
	engine    *engine.Engine
	store     *sessions.Store
	ejector   *eject.Ejector
}

// NewServer creates a server around the given pipeline components.
func NewServer(version, destinationRoot string, cfg *config.Config, scanner *devices.Scanner,
	validator *preflight.Validator, eng *engine.Engine, store *sessions.Store, ejector *eject.Ejector,
) *Server {
	return &Server{
		echo:            echo.New(),
		version:         version,
		destinationRoot: destinationRoot,
		startedAt:       time.Now(),
		cfg:             cfg,
		scanner:         scanner,
		validator:       validator,
		engine:          eng,
		store:           store,
		ejector:         ejector,
	}
}

// Start runs the server until SIGINT or SIGTERM, then shuts down
// gracefully.
func (srv *Server) Start(addr string) error {
	srv.setupRoutes()

	go func() {
		log.Info().
			Str("addr", addr).
			Str("destination", srv.destinationRoot).
			Str("version", srv.version).
			Msg("Starting offload server")

		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return srv.Shutdown()
}

// Shutdown stops the HTTP listener, then waits for a running transfer so
// the session record is finalized before the process exits.
func (srv *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout*time.Second)
	defer cancel()

	if err := srv.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	if srv.engine.IsTransferring() {
		log.Info().Msg("Waiting for running transfer to pause...")
		if err := srv.engine.Pause(); err == nil {
			srv.engine.WaitIdle()
		}
	}

	log.Info().Msg("Shutdown complete")
	return nil
}

func (srv *Server) setupRoutes() {
	srv.echo.HideBanner = true
	srv.echo.HidePort = true
	srv.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	srv.echo.Use(middleware.Recover())

	srv.echo.GET("/status", srv.getStatus)

	srv.echo.GET("/devices", srv.listDevices)
	srv.echo.GET("/devices/removable", srv.listRemovableDevices)
	srv.echo.POST("/devices/:id/eject", srv.ejectDevice)

	srv.echo.POST("/scan", srv.scanDevice)

	srv.echo.POST("/transfer/validate", srv.validateTransfer)
	srv.echo.POST("/transfer/start", srv.startTransfer)
	srv.echo.POST("/transfer/pause", srv.pauseTransfer)
	srv.echo.POST("/transfer/resume", srv.resumeTransfer)
	srv.echo.POST("/transfer/cancel", srv.cancelTransfer)
	srv.echo.POST("/transfer/retry", srv.retryFile)
	srv.echo.GET("/transfer/progress", srv.getProgress)

	srv.echo.GET("/sessions", srv.listSessions)
	srv.echo.GET("/sessions/:id", srv.getSession)
}
