// Package handler provides HTTP handlers for the support bridge.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/internal/model"
	"github.com/kart-io/support-bridge/internal/supportbridge/biz"
	"github.com/kart-io/support-bridge/internal/supportbridge/dispatch"
	"github.com/kart-io/support-bridge/internal/supportbridge/metrics"
	"github.com/kart-io/support-bridge/internal/supportbridge/store"
)

// handleTimeout bounds one background conversation pipeline run.
const handleTimeout = 5 * time.Minute

// syncTimeout bounds one background ingestion pass.
const syncTimeout = 30 * time.Minute

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SupportHandler handles webhook and admin HTTP requests.
type SupportHandler struct {
	orchestrator *biz.Orchestrator
	ingestor     *biz.Ingestor
	client       biz.SupportClient
	store        store.SectionStore
	index        store.VectorIndex
	pool         *dispatch.Pool
}

// NewSupportHandler creates a SupportHandler.
func NewSupportHandler(
	orchestrator *biz.Orchestrator,
	ingestor *biz.Ingestor,
	client biz.SupportClient,
	sectionStore store.SectionStore,
	index store.VectorIndex,
	pool *dispatch.Pool,
) *SupportHandler {
	return &SupportHandler{
		orchestrator: orchestrator,
		ingestor:     ingestor,
		client:       client,
		store:        sectionStore,
		index:        index,
		pool:         pool,
	}
}

// Webhook accepts a conversation notification and schedules processing. The
// platform retries on slow responses, so the reply pipeline runs off the
// request path and the handler acknowledges immediately.
func (h *SupportHandler) Webhook(c *gin.Context) {
	var envelope model.WebhookEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		metrics.Get().RecordWebhook(false)
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "invalid payload: " + err.Error()})
		return
	}
	metrics.Get().RecordWebhook(true)

	taskID := h.pool.Submit("handle-conversation", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		return h.orchestrator.HandleEvent(ctx, &envelope)
	})
	logger.Debugw("webhook accepted",
		"topic", envelope.Topic,
		"task_id", taskID,
	)

	// The platform only needs an acknowledgement body.
	c.String(http.StatusOK, "OK")
}

// SyncRequest represents an article sync request.
type SyncRequest struct {
	// ForceUpdate re-ingests every article regardless of checksums.
	ForceUpdate bool `json:"force_update"`
}

// Sync schedules an article ingestion pass.
func (h *SupportHandler) Sync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
			return
		}
	}

	taskID := h.pool.Submit("sync-articles", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		articles, err := h.client.ListArticles(ctx)
		if err != nil {
			return err
		}
		_, err = h.ingestor.Sync(ctx, articles, req.ForceUpdate)
		return err
	})

	c.JSON(http.StatusAccepted, SuccessResponse{
		Code:    0,
		Message: "Sync scheduled",
		Data:    gin.H{"task_id": taskID},
	})
}

// Stats reports pipeline counters and store sizes.
func (h *SupportHandler) Stats(c *gin.Context) {
	stats := metrics.Get().Stats()

	if count, err := h.store.CountSections(c.Request.Context()); err == nil {
		stats["sections_stored"] = count
	} else {
		logger.Warnw("failed to count stored sections", "error", err.Error())
	}
	if count, err := h.index.Count(c.Request.Context()); err == nil {
		stats["sections_indexed"] = count
	} else {
		logger.Warnw("failed to count indexed sections", "error", err.Error())
	}
	stats["workers_busy"] = h.pool.Running()

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: stats})
}

// Health reports liveness.
func (h *SupportHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
