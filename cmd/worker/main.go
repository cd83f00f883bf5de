// Package main provides the ecotrace worker entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/ecotrace/internal/config"
	"github.com/thebtf/ecotrace/internal/coordinator"
	"github.com/thebtf/ecotrace/internal/db/gorm"
	"github.com/thebtf/ecotrace/internal/oracle"
	"github.com/thebtf/ecotrace/internal/search"
	"github.com/thebtf/ecotrace/internal/session"
	"github.com/thebtf/ecotrace/internal/watcher"
	"github.com/thebtf/ecotrace/internal/worker"
	"github.com/thebtf/ecotrace/internal/worker/sse"
	"github.com/thebtf/ecotrace/pkg/abtest"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Parse flags
	port := flag.Int("port", 0, "HTTP port (default: from settings)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	// Ensure data directory and settings exist
	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
		cfg.DatabaseURL = config.DBPath()
	}
	if *port != 0 {
		cfg.WorkerPort = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down worker")
		cancel()
	}()

	// Initialize database (migrations run automatically)
	storeCfg := gorm.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	}
	store, err := gorm.NewStore(storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	// Initialize the pipeline dependencies
	sessions := session.NewManager()
	experiments := abtest.NewRegistry()

	var searcher oracle.Searcher
	if cfg.GoogleAPIKey != "" && cfg.GoogleCSEID != "" {
		searcher = search.NewClient(cfg.GoogleAPIKey, cfg.GoogleCSEID)
	} else {
		log.Warn().Msg("Search grounding disabled, estimates run without snippets")
	}

	oracleClient := oracle.NewClient(cfg, searcher, experiments)
	defer oracleClient.Close()

	broadcaster := sse.NewBroadcaster()
	coord := coordinator.New(
		oracleClient,
		gorm.NewContextStore(store),
		gorm.NewFootprintStore(store),
		sessions,
		broadcaster,
		cfg.MaxConcurrency,
	)

	// Watch settings for changes (triggers process exit for restart)
	startSettingsWatcher()

	service := worker.NewService(cfg, store, sessions, coord, broadcaster, oracleClient)
	log.Info().Str("version", Version).Int("port", cfg.WorkerPort).Msg("Starting ecotrace worker")

	if err := service.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Worker error")
	}
}

// startSettingsWatcher exits the process when settings change so a
// supervisor restarts it with the new values.
func startSettingsWatcher() {
	settingsPath := config.SettingsPath()
	w, err := watcher.New(settingsPath, func() {
		log.Warn().Str("path", settingsPath).Msg("Settings changed, exiting for restart...")
		time.Sleep(100 * time.Millisecond) // Give logs time to flush
		os.Exit(0)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return
	}
	log.Info().Str("path", settingsPath).Msg("Settings file watcher started")
}
