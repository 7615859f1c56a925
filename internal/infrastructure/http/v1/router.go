// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"sompos/internal/domain/cash"
	"sompos/internal/domain/ledger"
	"sompos/internal/domain/movement"
	"sompos/internal/domain/rollup"
	"sompos/internal/domain/settlement"
	"sompos/internal/domain/stock"
	"sompos/internal/infrastructure/http/v1/handlers"
	"sompos/internal/infrastructure/http/v1/middleware"
	"sompos/internal/infrastructure/metrics"
	"sompos/pkg/logger"
)

// RouterConfig holds the services the API exposes.
type RouterConfig struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	Engine    *settlement.Engine
	Ledger    *ledger.Service
	Stock     *stock.Service
	Movements *movement.Service
	Cash      *cash.Service
	Rollups   *rollup.Service

	// Probes back /health/ready, keyed by dependency name.
	Probes map[string]handlers.Probe

	CORSAllowedOrigins []string
	Development        bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	healthHandler := handlers.NewHealthHandler(cfg.Probes)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Actor())
	{
		base := handlers.NewBaseHandler()
		registerSettlementRoutes(v1, base, cfg)
		registerStockRoutes(v1, base, cfg)
		registerCashRoutes(v1, base, cfg)
		registerRollupRoutes(v1, base, cfg)
	}

	return router, nil
}
