package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CTAG07/Iconoclast/pkg/rendercache"
	"github.com/CTAG07/Iconoclast/pkg/svgicon"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(baseLogger); err != nil {
		baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
		os.Exit(1)
	}
	baseLogger.Info("Iconoclast has shut down.")
}

func run(baseLogger *slog.Logger) error {
	config, err := loadConfig("./config.json")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var logLevel slog.Level
	switch strings.ToLower(config.Server.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	logger.Info("Starting Iconoclast", "version", Version, "commit", Commit, "build_date", BuildDate)

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	if err = rendercache.SetupSchema(db); err != nil {
		return fmt.Errorf("failed to setup cache schema: %w", err)
	}

	cache, err := rendercache.New(logger, db, config.Server.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to create render cache: %w", err)
	}
	defer cache.Close()

	manager, err := svgicon.NewManager(logger, cache, config.Icons)
	if err != nil {
		return fmt.Errorf("failed to create icon manager: %w", err)
	}

	server := NewServer(config, logger, manager, cache)
	httpServer := &http.Server{Addr: config.Server.Addr, Handler: server.mux}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting icon server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	osSignalChan := make(chan os.Signal, 1)
	signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errChan:
		return fmt.Errorf("icon server failed: %w", err)
	case <-osSignalChan:
		logger.Info("OS signal received, initiating shutdown.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")
	return nil
}
