package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/logger"
)

// RouterConfig reúne o que o router precisa além dos handlers
type RouterConfig struct {
	ServiceName string
	Logger      *zap.Logger
	Metrics     *Metrics
}

// NewRouter monta o gin.Engine com tracing, logs, métricas e as rotas da API
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(logger.Middleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
		r.GET("/metrics", cfg.Metrics.Handler())
	}

	// Health check
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")

	// Catálogo
	api.GET("/products", h.ListProducts)
	api.GET("/products/:id", h.GetProduct)
	api.GET("/products/:id/stock-history", h.StockHistory)

	// Carrinho por sessão
	carts := api.Group("/carts/:session")
	carts.GET("", h.GetCart)
	carts.DELETE("", h.DiscardSession)
	carts.POST("/items", h.AddItem)
	carts.DELETE("/items", h.ClearCart)
	carts.PATCH("/items/:key", h.UpdateItem)
	carts.DELETE("/items/:key", h.RemoveItem)
	carts.POST("/reconcile", h.ReconcileCart)
	carts.POST("/checkout", h.Checkout)

	// Turnos
	api.GET("/shifts/types", h.ShiftTypes)
	api.GET("/shifts/current", h.CurrentShift)
	api.POST("/shifts", h.StartShift)
	api.POST("/shifts/:id/end", h.EndShift)

	// Vendas
	api.GET("/sales", h.ListSales)
	api.GET("/sales/:id", h.GetSale)
	api.POST("/sales/:id/cancel", h.CancelSale)

	return r
}
