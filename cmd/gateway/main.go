package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"github.com/afroash/soil-monitor/internal/config"
	"github.com/afroash/soil-monitor/internal/logging"
	"github.com/afroash/soil-monitor/internal/server"
	"github.com/afroash/soil-monitor/internal/storage"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadGatewayConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	logger.Info().
		Str("version", version).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting soil monitor gateway")
	logger.Debug().Msg(cfg.String())

	store := server.NewMemoryStore(cfg.Storage.BufferSize)
	ingest := server.NewHandler(cfg.Server.AuthToken, store, logger, cfg.Server.AllowedOrigins...)

	var sqliteStore *storage.SQLiteStore
	var dbWriter *storage.DBWriter
	var retentionCleaner *storage.RetentionCleaner

	api := server.NewAPIHandler(store, version, logger)
	if cfg.Storage.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
			logger.Fatal().Err(err).Msg("Failed to create data directory")
		}
		sqliteStore, err = storage.NewSQLiteStore(cfg.Storage.DBPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open SQLite store")
		}

		dbWriter = storage.NewDBWriter(sqliteStore, storage.DBWriterConfig{
			BatchSize:   cfg.Storage.BatchSize,
			FlushPeriod: cfg.Storage.FlushPeriod,
			ChannelSize: cfg.Storage.ChannelSize,
		}, logger)
		ingest.SetDBWriter(dbWriter)

		retentionCleaner = storage.NewRetentionCleaner(sqliteStore, storage.RetentionCleanerConfig{
			RetentionDays: cfg.Storage.RetentionDays,
			CleanupPeriod: cfg.Storage.CleanupPeriod,
		}, logger)

		api = server.NewAPIHandlerWithHistory(store, sqliteStore, version, logger)
	} else {
		logger.Warn().Msg("No db_path configured, reports are kept in memory only")
	}
	api.SetNodeLister(ingest)

	router := server.NewRouter(api, ingest)

	var handler http.Handler = router
	if len(cfg.Server.AllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet}),
		)(handler)
	}
	handler = handlers.LoggingHandler(logger, handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	if dbWriter != nil {
		dbWriter.Stop()
	}
	if retentionCleaner != nil {
		retentionCleaner.Stop()
	}
	if sqliteStore != nil {
		if err := sqliteStore.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close SQLite store")
		}
	}

	logger.Info().Msg("Gateway stopped")
}
