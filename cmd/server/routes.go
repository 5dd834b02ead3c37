package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-trade/internal/assets"
	"github.com/ksred/klear-trade/internal/auth"
	"github.com/ksred/klear-trade/internal/book"
	"github.com/ksred/klear-trade/internal/config"
	"github.com/ksred/klear-trade/internal/ledger"
	"github.com/ksred/klear-trade/internal/portfolio"
	"github.com/ksred/klear-trade/internal/pricing"
	"github.com/ksred/klear-trade/internal/trading"
	"github.com/ksred/klear-trade/pkg/middleware"
	"github.com/rs/cors"
	"gorm.io/gorm"
)

// handlers bundles the HTTP handlers of every service.
type handlers struct {
	auth      *auth.GinHandlers
	assets    *assets.GinHandlers
	portfolio *portfolio.GinHandlers
	trading   *trading.GinHandlers
	ledger    *ledger.GinHandlers
	book      *book.GinHandlers
}

// newHandler wires services over db and returns the CORS-wrapped router.
func newHandler(cfg *config.Config, db *gorm.DB, prices pricing.Source) http.Handler {
	assetService := assets.NewService(db)
	portfolioService := portfolio.NewService(db)
	authService := auth.NewService(db, cfg.JWTSecret, portfolioService, cfg.InitialCredit)
	tradingService := trading.NewService(db, prices,
		trading.WithFeeRate(cfg.FeeRate),
		trading.WithTxTimeout(cfg.TxTimeout),
	)
	ledgerService := ledger.NewService(db)

	h := handlers{
		auth:      auth.NewGinHandlers(authService),
		assets:    assets.NewGinHandlers(assetService),
		portfolio: portfolio.NewGinHandlers(portfolioService),
		trading:   trading.NewGinHandlers(tradingService),
		ledger:    ledger.NewGinHandlers(ledgerService),
		book:      book.NewGinHandlers(book.NewManager(), assetService),
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.RateLimit())
	setupRoutes(router, cfg.JWTSecret, h)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

// setupRoutes configures all API endpoints and their handlers
// - Auth, asset and book routes: public
// - Order, portfolio and ledger routes: protected by JWT authentication
func setupRoutes(router *gin.Engine, jwtSecret string, h handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", h.auth.RegisterHandler())
			authRoutes.POST("/login", h.auth.LoginHandler())
		}

		v1.GET("/assets", h.assets.ListAssetsHandler())
		v1.GET("/assets/:symbol", h.assets.GetAssetHandler())

		bookRoutes := v1.Group("/book")
		{
			bookRoutes.GET("/:symbol", h.book.GetBookHandler())
			bookRoutes.POST("/:symbol/bids", h.book.PlaceBidHandler())
			bookRoutes.POST("/:symbol/asks", h.book.PlaceAskHandler())
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("", h.trading.CreateOrderHandler())
			orders.GET("", h.trading.ListOrdersHandler())
			orders.GET("/:order_id", h.trading.GetOrderStatusHandler())
			orders.POST("/:order_id/cancel", h.trading.CancelOrderHandler())
		}

		account := v1.Group("")
		account.Use(middleware.JWTAuth(jwtSecret))
		{
			account.GET("/portfolio", h.portfolio.GetPortfolioHandler())
			account.GET("/ledger", h.ledger.ListEntriesHandler())
			account.GET("/ledger/reconcile", h.ledger.ReconcileHandler())
		}
	}
}
