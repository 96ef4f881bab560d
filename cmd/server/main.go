package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"jsonapi-backend/internal/api"
	"jsonapi-backend/internal/auth"
	"jsonapi-backend/internal/config"
	"jsonapi-backend/internal/logging"
	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/repository"
	"jsonapi-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.Name))

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		logger.Fatal("failed to bootstrap system tables", zap.Error(err))
	}

	// 4. Load metadata
	reg := metadata.NewRegistry()
	if cfg.Schema.Path != "" {
		err = metadata.LoadFile(cfg.Schema.Path, reg)
	} else {
		err = metadata.LoadAll(ctx, db.DB, reg, logger)
	}
	if err != nil {
		logger.Fatal("failed to load metadata", zap.Error(err))
	}
	logger.Info("metadata loaded", zap.Int("entities", len(reg.AllEntities())))

	if cfg.Schema.AutoMigrate {
		if err := store.NewMigrator(db, logger).MigrateAll(ctx, reg); err != nil {
			logger.Fatal("failed to migrate", zap.Error(err))
		}
	}

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler(logger),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(api.RequestLogger(logger))

	// 6. Auth routes
	var write []fiber.Handler
	if cfg.Auth.UserEntity != "" {
		users, err := repository.New(db, reg, cfg.Auth.UserEntity, logger)
		if err != nil {
			logger.Fatal("invalid auth.user_entity", zap.Error(err))
		}
		auth.RegisterRoutes(app, auth.NewHandler(users, cfg.Auth, logger))
	}
	if cfg.Auth.JWTSecret != "" {
		write = append(write, auth.Middleware(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("auth.jwt_secret is empty, write routes are unauthenticated")
	}

	// 7. Resource routes
	api.RegisterRoutes(app, api.NewHandler(db, reg, cfg.Paging, logger), write...)

	// 8. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("starting server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
