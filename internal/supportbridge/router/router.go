// Package router provides support bridge routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/internal/supportbridge/handler"
	"github.com/kart-io/support-bridge/internal/supportbridge/middleware"
)

// Register registers the support bridge routes. Only the webhook endpoint
// carries the signature check; admin endpoints are expected to sit behind
// the deployment's own access control.
func Register(engine *gin.Engine, h *handler.SupportHandler, webhookSecret string) {
	logger.Info("Registering routes...")

	engine.POST("/webhook", middleware.VerifySignature(webhookSecret), h.Webhook)
	engine.GET("/healthz", h.Health)

	v1 := engine.Group("/v1")
	{
		v1.GET("/stats", h.Stats)
		v1.POST("/ingest/sync", h.Sync)
	}

	logger.Info("HTTP routes registered")
}
