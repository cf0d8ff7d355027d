/**
 * @description
 * Main entry point for the Prophecy background worker.
 * Subscribes to the chain's new-head feed and runs the settlement
 * confirmation pass on every head. When no websocket endpoint is
 * configured it falls back to a fixed ticker.
 *
 * @dependencies
 * - backend/internal/chain/feed: Chain new-head websocket client
 * - backend/internal/services: Settlement confirmation
 * - backend/internal/db: Database connections
 *
 * @notes
 * - Run as a separate process from the API: `go run cmd/worker/main.go`
 * - Graceful shutdown on SIGINT/SIGTERM.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prophecy-market/backend/internal/chain/feed"
	"github.com/prophecy-market/backend/internal/config"
	"github.com/prophecy-market/backend/internal/db"
	"github.com/prophecy-market/backend/internal/logger"
	"github.com/prophecy-market/backend/internal/services"
)

const fallbackConfirmInterval = 30 * time.Second

func main() {
	logger.Info("🔥 Starting Prophecy Worker...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := services.NewNotificationService(pgDB)
	predictionService := services.NewPredictionService(pgDB, redisClient, notifier)
	if err := predictionService.Hydrate(ctx); err != nil {
		logger.Fatal("Failed to hydrate ledger: %v", err)
	}

	settlementService := services.NewSettlementService(predictionService, nil, pgDB, notifier)

	onHead := func(ctx context.Context, head feed.Head) {
		if err := settlementService.ConfirmPending(ctx, head.Number); err != nil {
			logger.Error("Confirmation pass failed at head %d: %v", head.Number, err)
		}
	}

	var client *feed.Client
	if cfg.Chain.WSURL != "" {
		client = feed.NewClient(cfg, feed.NewHeadHandler(onHead))
		if err := client.Connect(ctx); err != nil {
			logger.Error("Chain feed unavailable, falling back to ticker: %v", err)
			client = nil
		}
	} else {
		logger.Info("⚠️ No CHAIN_WS_URL configured, confirming on a %v ticker", fallbackConfirmInterval)
	}

	if client == nil {
		go func() {
			ticker := time.NewTicker(fallbackConfirmInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					// No head feed; pass a zero block number.
					if err := settlementService.ConfirmPending(ctx, 0); err != nil {
						logger.Error("Confirmation pass failed: %v", err)
					}
				}
			}
		}()
	}

	logger.Info("✅ Worker running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down worker...")
	cancel()
	if client != nil {
		if err := client.Close(); err != nil {
			logger.Error("Error closing chain feed: %v", err)
		}
	}
	logger.Info("Worker stopped")
}
