package router

import (
	"github.com/anonto42/nano-midea/notifications/internal/handlers"
	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/anonto42/nano-midea/notifications/pkg/config"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Deps carries everything the routes need.
type Deps struct {
	Postgres *gorm.DB
	Mongo    *mongo.Database
	Verifier middleware.TokenVerifier
	Config   *config.Config
	Log      zerolog.Logger
}

// Migrate creates or updates the PostgreSQL tables.
func Migrate(pgdb *gorm.DB) error {
	return pgdb.AutoMigrate(
		&models.User{},
		&models.Comment{},
		&models.Notification{},
	)
}

// NewNotificationRepository wires the notification store with its entity loaders.
func NewNotificationRepository(pgdb *gorm.DB, mgdb *mongo.Database, cfg *config.Config) (*repositories.PostgresNotificationRepository, *repositories.PostgresUserRepository) {
	userRepo := repositories.NewPostgresUserRepository(pgdb)
	loaders := repositories.EntityLoaders{
		models.UserType:    userRepo,
		models.CommentType: repositories.NewPostgresCommentRepository(pgdb),
	}
	if mgdb != nil {
		loaders[models.PostType] = repositories.NewMongoPostRepository(mgdb)
	}

	notificationRepo := repositories.NewPostgresNotificationRepository(pgdb, repositories.Options{
		OpenedIndexLimit: cfg.OpenedIndexLimit,
		GroupExpiryDelay: cfg.GroupExpiryDelay,
		Loaders:          loaders,
	})
	return notificationRepo, userRepo
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Deps) error {
	if err := Migrate(deps.Postgres); err != nil {
		return err
	}
	deps.Log.Info().Msg("PostgreSQL auto-migrations completed for all models.")

	e.GET("/health", handlers.HealthCheck)

	notificationRepo, userRepo := NewNotificationRepository(deps.Postgres, deps.Mongo, deps.Config)

	api := e.Group("/api/v1")
	api.Use(middleware.FirebaseAuthMiddleware(deps.Verifier))

	notificationHandler := handlers.NewNotificationHandler(notificationRepo, userRepo, deps.Log)
	notificationHandler.RegisterNotificationRoutes(api)
	deps.Log.Info().Msg("Notification routes configured.")

	return nil
}
