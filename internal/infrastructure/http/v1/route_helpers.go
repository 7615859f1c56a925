package v1

import (
	"github.com/gin-gonic/gin"

	"sompos/internal/infrastructure/http/v1/handlers"
)

// registerSettlementRoutes registers the engine operations.
func registerSettlementRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewSettlementHandler(base, cfg.Engine, cfg.Ledger)

	rg.POST("/transactions/settle", h.Settle)
	rg.POST("/transactions/:id/reverse", h.Reverse)

	stores := rg.Group("/stores/:store_id")
	stores.POST("/batches", h.Receive)
	stores.GET("/batches", h.ListBatches)
	stores.POST("/adjustments", h.Adjust)
}

// registerStockRoutes registers aggregate and movement reads.
func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewStockHandler(base, cfg.Stock, cfg.Movements)

	stores := rg.Group("/stores/:store_id")
	stores.GET("/movements", h.Movements)

	product := stores.Group("/products/:product_id")
	product.GET("/stock", h.Get)
	product.POST("/stock/recompute", h.Recompute)
	product.GET("/turnover", h.Turnover)
}

// registerCashRoutes registers cash register operations.
func registerCashRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewCashHandler(base, cfg.Cash)

	stores := rg.Group("/stores/:store_id/cash-registers")
	stores.POST("", h.Open)
	stores.GET("/current", h.Current)

	registers := rg.Group("/cash-registers/:id")
	registers.POST("/deposit", h.Deposit)
	registers.POST("/withdraw", h.Withdraw)
	registers.POST("/close", h.Close)
	registers.POST("/correct", h.Correct)
	registers.GET("/history", h.History)
}

// registerRollupRoutes registers rollup reads and the spreadsheet export.
func registerRollupRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewRollupHandler(base, cfg.Rollups)

	rollups := rg.Group("/stores/:store_id/rollups/:dimension")
	rollups.GET("", h.List)
	rollups.GET("/export", h.Export)
}
