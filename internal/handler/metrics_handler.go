package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/face-attendance-api/internal/recognition"
	"github.com/noah-isme/face-attendance-api/internal/service"
)

type dbPinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics     *service.MetricsService
	recognition *recognition.Client
	db          dbPinger
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, recognitionClient *recognition.Client, db dbPinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, recognition: recognitionClient, db: db}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health reports liveness plus the recognition gateway status. The API
// stays healthy when the gateway is down since marking degrades instead
// of failing.
func (h *MetricsHandler) Health(c *gin.Context) {
	recognitionStatus := "unknown"
	if h.recognition != nil {
		if h.recognition.Healthy(c.Request.Context()) {
			recognitionStatus = "ok"
		} else {
			recognitionStatus = "unreachable"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"recognition": recognitionStatus,
	})
}

// Ready reports readiness to serve traffic. Unlike Health this fails
// when the database is unreachable, since every operation needs it.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
