// Dianping - flash-sale voucher backend.
// Copyright (c) 2025 sqkstwj
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqkstwj/juzhondianping/internal/api"
	"github.com/sqkstwj/juzhondianping/internal/cache"
	"github.com/sqkstwj/juzhondianping/internal/cacheaside"
	"github.com/sqkstwj/juzhondianping/internal/domain"
	"github.com/sqkstwj/juzhondianping/internal/idgen"
	"github.com/sqkstwj/juzhondianping/internal/lock"
	"github.com/sqkstwj/juzhondianping/internal/repository"
	"github.com/sqkstwj/juzhondianping/internal/seckill"
	"github.com/sqkstwj/juzhondianping/internal/shop"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DIANPING_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting dianping",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("DIANPING_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"loader_strategy", cfg.Loader.Strategy,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize distributed lock and ID generator on top of the cache
	locks := lock.New(cacheImpl)
	ids := idgen.NewGenerator(cacheImpl)

	// Initialize async rebuild pool
	pool := cacheaside.NewRebuildPool(cfg.Rebuild.Workers, cfg.Rebuild.QueueSize)
	slog.Info("rebuild pool initialized",
		"workers", cfg.Rebuild.Workers,
		"queue_size", cfg.Rebuild.QueueSize,
	)

	// Initialize cache-aside loader
	loader := cacheaside.NewLoader(cacheImpl, locks, pool, cfg.Loader)

	// Initialize services
	shopSvc := shop.NewService(repo, cacheImpl, loader)
	seckillSvc := seckill.NewService(repo, locks, ids, cfg.Seckill)
	slog.Info("services initialized")

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, shopSvc, seckillSvc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("dianping is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Drain the rebuild pool before the stores go away
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("dianping shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("              DIANPING")
	fmt.Println("       Flash-Sale Voucher Backend")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /shops/{id}            - Get a shop (cache-aside)")
	fmt.Println("    POST /shops                 - Create a shop")
	fmt.Println("    PUT  /shops/{id}            - Update a shop")
	fmt.Println("    POST /shops/{id}/warm       - Pre-heat a shop cache entry")
	fmt.Println("    GET  /vouchers/{id}         - Get a voucher")
	fmt.Println("    POST /vouchers              - Create a voucher")
	fmt.Println("    POST /vouchers/{id}/seckill - Purchase a voucher")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
