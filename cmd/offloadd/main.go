package main

import (
	_ "embed"
	"flag"
	"os"
	"strings"

	"offload/pkg/config"
	"offload/pkg/devices"
	"offload/pkg/eject"
	"offload/pkg/engine"
	"offload/pkg/log"
	"offload/pkg/models"
	"offload/pkg/preflight"
	"offload/pkg/resolver"
	"offload/pkg/server"
	"offload/pkg/sessions"
)

const destDirPerm = 0750

//go:embed VERSION
var Version string

func main() {
	// Initialize logger first
	_ = log.Logger

	destDir := flag.String("dest", "build/imports", "Destination directory for ingested files")
	dbPath := flag.String("db", "build/sessions.db", "Session database path")
	addr := flag.String("addr", ":8080", "Listen address")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log.SetDebugMode(*debug)

	if err := os.MkdirAll(*destDir, destDirPerm); err != nil {
		log.Fatal().Err(err).Str("dest", *destDir).Msg("Failed to create destination directory")
	}

	store, err := sessions.NewStore(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open session store")
	}
	defer store.Close()

	cfg := config.Default()
	res := resolver.New()
	scanner := devices.NewScanner()
	validator := preflight.New(res, cfg)
	eng := engine.New(store, res, cfg)

	monitor := devices.NewMonitor(devices.NewSysfsLister(), 0)
	err = monitor.Start(
		func(d models.Device) {
			log.Info().Str("device", d.ID).Str("name", d.DisplayName).Msg("Device attached")
		},
		func(d models.Device) {
			log.Warn().Str("device", d.ID).Str("name", d.DisplayName).Msg("Device detached")
		},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start device monitor")
	}
	defer monitor.Stop()

	srv := server.NewServer(strings.TrimSpace(Version), *destDir, cfg,
		scanner, validator, eng, store, eject.New())

	if err := srv.Start(*addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}

	os.Exit(0)
}
