package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/handlers"
	"github.com/glowcart/backend/internal/middleware"
	"github.com/glowcart/backend/internal/queue"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/services/order"
	"github.com/glowcart/backend/internal/services/referral"
	"github.com/glowcart/backend/internal/services/settings"
)

// RegisterRoutes configures all API routes
func RegisterRoutes(router *gin.Engine, db *gorm.DB, jobQueue queue.QueueInterface, rateLimiter *middleware.RateLimiter) {
	router.Use(rateLimiter.IPRateLimiterMiddleware())

	ledgerSvc := ledger.NewService(db)
	settingsSvc := settings.NewService(db)
	referralSvc := referral.NewService(db, ledgerSvc)

	checkoutSvc := order.NewCheckoutService(db, ledgerSvc, settingsSvc, jobQueue)
	statusSvc := order.NewStatusService(db, ledgerSvc, referralSvc, settingsSvc, jobQueue)
	returnSvc := order.NewReturnService(db, ledgerSvc)

	authHandler := handlers.NewAuthHandler(db)
	orderHandler := handlers.NewOrderHandler(db, checkoutSvc, statusSvc, returnSvc)
	settingsHandler := handlers.NewSettingsHandler(settingsSvc)
	productHandler := handlers.NewProductHandler(db)
	bonusHandler := handlers.NewBonusHandler(db, ledgerSvc)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/api/auth")
	authGroup.Use(rateLimiter.AuthRateLimiterMiddleware())
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Public storefront surface. Checkout accepts both guests and
	// authenticated buyers.
	publicGroup := router.Group("/api")
	{
		publicGroup.GET("/products", productHandler.ListProducts)
		publicGroup.GET("/settings", settingsHandler.GetSettings)
		publicGroup.POST("/checkout", middleware.OptionalAuthMiddleware(), orderHandler.Checkout)
	}

	userGroup := router.Group("/api")
	userGroup.Use(middleware.AuthMiddleware())
	{
		userGroup.GET("/me", authHandler.Me)
		userGroup.GET("/me/orders", orderHandler.MyOrders)
		userGroup.GET("/me/bonus", bonusHandler.MyBonus)
	}

	adminGroup := router.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		adminGroup.GET("/orders", orderHandler.ListOrders)
		adminGroup.GET("/orders/:id", orderHandler.GetOrder)
		adminGroup.POST("/orders/:id/status", orderHandler.TransitionStatus)
		adminGroup.POST("/orders/:id/returns", orderHandler.ProcessReturn)

		adminGroup.GET("/products", productHandler.ListAllProducts)
		adminGroup.POST("/products", productHandler.CreateProduct)
		adminGroup.PUT("/products/:id", productHandler.UpdateProduct)

		adminGroup.GET("/settings", settingsHandler.GetAdminSettings)
		adminGroup.PUT("/settings", settingsHandler.UpdateSettings)
		adminGroup.GET("/stats/reserve", settingsHandler.GetReserve)

		adminGroup.POST("/bonus/adjust", bonusHandler.Adjust)
		adminGroup.GET("/bonus/reconcile", bonusHandler.Reconcile)
	}
}
