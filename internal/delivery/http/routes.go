package http

import (
	"github.com/dealpop/dashboard/config"
	"github.com/dealpop/dashboard/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps are the shared services the router wires into middleware
type RouterDeps struct {
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, deps RouterDeps) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Environment() == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(deps.Logger))
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/signin", handler.SignIn)
			auth.POST("/signup", handler.SignUp)
		}

		session := v1.Group("")
		session.Use(AuthMiddleware(handler.identity, handler.dashboard.Alerts(), deps.Logger))
		{
			session.POST("/auth/signout", handler.SignOut)
			session.GET("/auth/me", handler.Me)

			products := session.Group("/products")
			{
				products.GET("", handler.ListProducts)
				products.POST("", handler.CreateProduct)
				products.PUT("/:id", handler.UpdateProduct)
				products.DELETE("/:id", handler.DeleteProduct)
				products.GET("/:id/edit", handler.EditProduct)
			}

			alerts := session.Group("/alerts")
			{
				alerts.GET("", handler.ListAlerts)
				alerts.POST("", handler.CreateAlert)
				alerts.GET("/stats", handler.AlertStats)
				alerts.GET("/stream", handler.AlertStream)
				alerts.PATCH("/:id", handler.UpdateAlert)
				alerts.DELETE("/:id", handler.DeleteAlert)
				alerts.POST("/:id/dismiss", handler.DismissAlert)
				alerts.GET("/:id/history", handler.AlertHistory)
			}

			session.GET("/preferences", handler.GetPreferences)
			session.PUT("/preferences", handler.UpdatePreferences)

			search := session.Group("/search")
			{
				search.GET("/suggestions", handler.SearchSuggestions)
				search.GET("/vendors", handler.Vendors)
			}

			session.GET("/stats", handler.DashboardStats)
			session.POST("/captures", handler.Capture)
			session.GET("/backend", handler.BackendStatus)
		}
	}

	return router
}
