package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aagii9912/smarthub-sub002/internal/handler"
	"github.com/aagii9912/smarthub-sub002/internal/middleware"
)

// SetupRoutes wires every endpoint onto the engine.
func SetupRoutes(
	router *gin.Engine,
	webhooks *handler.WebhookHandler,
	admin *handler.AdminHandler,
	health *handler.HealthHandler,
	registry *prometheus.Registry,
	webhookRatePerMinute int,
) {
	router.GET("/health", health.Live)
	router.GET("/health/ready", health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	hooks := router.Group("/webhook")
	hooks.Use(middleware.RateLimiter(webhookRatePerMinute, time.Minute))
	hooks.GET("", webhooks.Verify)
	hooks.POST("", webhooks.Receive)

	adminGroup := router.Group("/admin")
	{
		adminGroup.GET("/breakers", admin.BreakerStats)
		adminGroup.POST("/breakers/reset", admin.ResetBreakers)
		adminGroup.GET("/jobs", admin.JobStats)
		adminGroup.POST("/experiments", admin.CreateExperiment)
		adminGroup.POST("/experiments/:id/deactivate", admin.DeactivateExperiment)
		adminGroup.GET("/experiments/:id/report", admin.ExperimentReport)
		adminGroup.POST("/discounts", admin.CreateDiscountSchedule)
		adminGroup.POST("/discounts/sweep", admin.SweepDiscounts)
	}
}
