// Package status exposes the operational probe used by the payment page's
// debug panel and by deploy checks.
package status

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/appraisells/backend/internal/store"
	"github.com/appraisells/backend/pkg/response"
)

// Handler handles GET /api/status.
type Handler struct {
	store   store.Store
	redis   *redis.Client
	started time.Time
	logger  *zap.Logger
}

// NewHandler creates a status handler. rdb may be nil when Redis is disabled.
func NewHandler(st store.Store, rdb *redis.Client, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: st, redis: rdb, started: time.Now(), logger: logger}
}

// GetStatus reports record counts, connectivity and uptime.
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("store ping failed", zap.Error(err))
		response.Internal(c, "database unavailable")
		return
	}
	regs, err := h.store.CountRegistrations(ctx)
	if err != nil {
		h.logger.Error("count registrations failed", zap.Error(err))
		response.Internal(c, "status check failed")
		return
	}
	pays, err := h.store.CountPayments(ctx)
	if err != nil {
		h.logger.Error("count payments failed", zap.Error(err))
		response.Internal(c, "status check failed")
		return
	}

	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "connected"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "error"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"registrations": regs,
		"payments":      pays,
		"database":      "connected",
		"redis":         redisStatus,
		"uptime":        time.Since(h.started).Round(time.Second).String(),
		"timestamp":     time.Now().UTC(),
	})
}
