// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cgu-sc/sentinela/internal/domain/auth"
	"github.com/cgu-sc/sentinela/internal/domain/run"
	"github.com/cgu-sc/sentinela/internal/infrastructure/http/v1/handlers"
	"github.com/cgu-sc/sentinela/internal/infrastructure/http/v1/middleware"
	"github.com/cgu-sc/sentinela/pkg/logger"
)

// RouterConfig holds the router dependencies.
type RouterConfig struct {
	Pool      *pgxpool.Pool
	Logger    *logger.Logger
	Runs      run.Repository
	Validator *auth.JWTService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Order matters: recovery first, errors rendered last.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	router.GET("/healthz", healthHandler.Live)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	runsHandler := handlers.NewRunsHandler(cfg.Runs)
	ledgerHandler := handlers.NewLedgerHandler(cfg.Runs)

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.Validator))
	{
		api.GET("/runs", runsHandler.List)
		api.GET("/runs/:id", runsHandler.Get)
		api.GET("/pharmacies/:cnpj/ledger", ledgerHandler.Get)
	}

	return router
}
