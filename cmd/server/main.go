package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/segscope/backend/internal/api"
	"github.com/segscope/backend/internal/config"
	"github.com/segscope/backend/internal/engine"
	"github.com/segscope/backend/internal/storage"
)

func main() {
	// 1. Config
	cfg := config.Load()

	// Setup Logging
	logger := cfg.NewLogger()
	entry := logger.WithField("service", "segscope")

	if err := cfg.Validate(); err != nil {
		entry.Fatalf("Invalid configuration: %v", err)
	}

	entry.Info("Starting segscope similarity service")

	if err := run(cfg, entry); err != nil {
		entry.Fatal(err)
	}
	entry.Info("Stopped")
}

// run owns every resource opened after config, so deferred cleanup happens
// before main decides how to exit.
func run(cfg *config.Config, entry *logrus.Entry) error {
	// 2. Storage
	store, err := storage.New(cfg.Storage, entry)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			entry.WithError(err).Error("Failed to close storage")
		}
	}()

	// 3. Engine
	eng := engine.NewEngine(cfg.Similarity, entry, store)
	if cfg.Similarity.Project != "" {
		if err := eng.OpenProject(cfg.Similarity.Project); err != nil {
			entry.WithError(err).Warn("Startup project not opened")
		}
	}

	// 4. API Server
	server := api.NewServer(eng, entry)

	done := make(chan struct{})
	go func() {
		defer close(done)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		entry.Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			entry.WithError(err).Error("Graceful shutdown failed")
		}
	}()

	if err := server.Start(cfg.Server); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	// Storage stays open until in-flight requests have drained
	<-done
	return nil
}
