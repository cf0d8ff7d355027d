/**
 * @description
 * Main entry point for the Prophecy Backend API.
 * Initializes the Fiber web server, loads configuration, hydrates the
 * prediction ledger from Postgres, and sets up routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - backend/internal/config: Config loader
 * - backend/internal/db: Database connections
 * - backend/internal/api: Route definitions
 *
 * @notes
 * - Connects to Postgres and Redis on startup.
 * - Sets up basic middleware (CORS, Logger, Recover).
 */

package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prophecy-market/backend/internal/api"
	"github.com/prophecy-market/backend/internal/config"
	"github.com/prophecy-market/backend/internal/db"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// 3. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "Prophecy Backend",
		StrictRouting: false,
		CaseSensitive: true,
	})

	// 4. Global Middleware
	app.Use(recover.New()) // Panic recovery
	app.Use(logger.New())  // Request logging
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*", // TODO: Lock this down in production
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// 5. Routes + Services
	predictionService, err := api.SetupRoutes(app, pgDB, redisClient, cfg)
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// 6. Hydrate the ledger from persistence before accepting traffic
	if err := predictionService.Hydrate(context.Background()); err != nil {
		log.Fatalf("Failed to hydrate ledger: %v", err)
	}

	// 7. Start Server
	log.Printf("🚀 Starting Prophecy Backend on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
