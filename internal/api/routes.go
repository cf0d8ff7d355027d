/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/api/middleware
 * - backend/internal/services
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prophecy-market/backend/internal/api/handlers"
	"github.com/prophecy-market/backend/internal/api/middleware"
	"github.com/prophecy-market/backend/internal/chain/settle"
	"github.com/prophecy-market/backend/internal/config"
	"github.com/prophecy-market/backend/internal/logger"
	"github.com/prophecy-market/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SetupRoutes configures all API routes and returns the prediction service
// so the caller can hydrate it before listening.
func SetupRoutes(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config) (*services.PredictionService, error) {
	// 1. Initialize Middleware
	if err := middleware.InitAuthMiddleware(cfg); err != nil {
		// Don't panic to allow app start in dev modes without valid keys,
		// but protected routes will fail.
		logger.Error("Failed to init auth middleware: %v", err)
	}

	// 2. Initialize Services
	notifier := services.NewNotificationService(db)
	predictionService := services.NewPredictionService(db, rdb, notifier)
	settlementService := services.NewSettlementService(predictionService, settle.NewSimulatedSubmitter(), db, notifier)
	authService := services.NewWalletAuthService(db, rdb, cfg)
	oddsHub := services.NewOddsStreamHub(rdb, services.OddsUpdateChannel)

	tokenService, err := services.NewTokenService(cfg)
	if err != nil {
		// Balance endpoint degrades gracefully without an RPC connection.
		logger.Error("Token service unavailable: %v", err)
		tokenService = nil
	}

	// 3. Initialize Handlers
	authHandler := handlers.NewAuthHandler(authService)
	predictionHandler := handlers.NewPredictionHandler(predictionService, settlementService, authService)
	streamHandler := handlers.NewStreamHandler(oddsHub)
	walletHandler := handlers.NewWalletHandler(tokenService)
	notificationHandler := handlers.NewNotificationHandler(notifier)

	// 4. Define Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Public Routes
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := v1.Group("/auth")
	auth.Get("/nonce", authHandler.GetNonce)
	auth.Post("/verify", authHandler.VerifySignature)

	predictions := v1.Group("/predictions")
	predictions.Get("/", predictionHandler.ListPredictions)
	predictions.Get("/stream", streamHandler.StreamOddsUpdates)
	predictions.Get("/:id", predictionHandler.GetPrediction)
	predictions.Get("/:id/settlements", predictionHandler.GetSettlements)

	v1.Get("/users/:address/predictions", predictionHandler.GetUserPredictions)

	// Protected Routes
	predictions.Post("/", middleware.Protected(), predictionHandler.CreatePrediction)
	predictions.Post("/:id/bets", middleware.Protected(), predictionHandler.PlaceBet)
	predictions.Post("/:id/resolve", middleware.Protected(), predictionHandler.ResolvePrediction)
	predictions.Post("/:id/settle", middleware.Protected(), predictionHandler.SettlePrediction)

	profile := v1.Group("/profile", middleware.Protected())
	profile.Get("/", authHandler.GetProfile)
	profile.Put("/", authHandler.UpdateProfile)

	wallet := v1.Group("/wallet", middleware.Protected())
	wallet.Get("/balance", walletHandler.GetBalance)

	notifications := v1.Group("/notifications", middleware.Protected())
	notifications.Get("/", notificationHandler.ListNotifications)
	notifications.Post("/read", notificationHandler.MarkRead)

	return predictionService, nil
}
