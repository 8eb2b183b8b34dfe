// Package main provides the compliance server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/assets"
	"github.com/opencomply/comply-server/pkg/jobs"
	"github.com/opencomply/comply-server/pkg/server"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

func main() {
	var (
		listenAddr  string
		databaseDSN string
		tenancyMode string
		enableCORS  bool
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&databaseDSN, "db-dsn", "", "PostgreSQL connection string")
	flag.StringVar(&tenancyMode, "tenancy-mode", "", "Tenancy mode (single or header)")
	flag.BoolVar(&enableCORS, "cors", true, "Enable CORS for browser clients")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gormDB, err := setupDatabase(databaseDSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	cipher, err := assets.NewTokenCipherFromEnv()
	if err != nil {
		glog.Fatalf("Failed to initialize token cipher: %v", err)
	}

	mode := tenancy.ModeFromEnv()
	if tenancyMode != "" {
		mode = tenancy.Mode(tenancyMode)
	}

	opts := []server.ServerOption{
		server.WithLogger(logger),
		server.WithTenancyMode(mode),
		server.WithSyncWorker(jobs.JobConfigFromEnv()),
	}
	if enableCORS {
		opts = append(opts, server.WithCORS())
	}

	srv := server.NewServer(gormDB, cipher, logger, opts...)
	if err := srv.Init(ctx); err != nil {
		glog.Fatalf("Failed to initialize server: %v", err)
	}

	router := srv.MountRoutes()
	srv.Start(ctx)

	logger.Info("comply server ready",
		"listen", listenAddr,
		"tenancyMode", string(mode))

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("comply server stopped")
}

func setupDatabase(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required (use -db-dsn flag or DATABASE_DSN environment variable)")
		}
	}

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return gormDB, nil
}
