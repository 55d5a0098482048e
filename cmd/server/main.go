package main

import (
	"context"

	"github.com/anonto42/nano-midea/notifications/internal/router"
	"github.com/anonto42/nano-midea/notifications/internal/validators"
	"github.com/anonto42/nano-midea/notifications/pkg/config"
	"github.com/anonto42/nano-midea/notifications/pkg/firebase"
	"github.com/anonto42/nano-midea/notifications/pkg/logger"
	"github.com/labstack/echo/v4"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.Init(cfg.Env, cfg.LogLevel)

	// Initialize database connections
	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize databases")
	}
	defer db.CloseDB()

	// Initialize Firebase
	ctx := context.Background()
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Firebase")
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()

	config.SetupMiddleware(e, log)

	err = router.SetupRoutes(e, router.Deps{
		Postgres: db.Postgres,
		Mongo:    db.Mongo.Database(cfg.MongoDatabase),
		Verifier: firebaseApp.AuthClient,
		Config:   cfg,
		Log:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up routes")
	}

	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
