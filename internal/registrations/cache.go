package registrations

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const statusCacheKeyPrefix = "registration-status:"

// StatusCache is a short-TTL Redis cache in front of registration status
// lookups. The payment page polls status aggressively after each callback;
// the cache absorbs that polling. All methods are nil-safe so the server runs
// unchanged without Redis.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatusCache creates a status cache with the given TTL.
func NewStatusCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StatusCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached status view for an email, if present.
func (sc *StatusCache) Get(ctx context.Context, email string) (StatusView, bool) {
	if sc == nil || sc.client == nil {
		return StatusView{}, false
	}
	raw, err := sc.client.Get(ctx, statusCacheKeyPrefix+email).Bytes()
	if err != nil {
		return StatusView{}, false
	}
	var view StatusView
	if err := json.Unmarshal(raw, &view); err != nil {
		return StatusView{}, false
	}
	return view, true
}

// Set stores a status view. Cache errors are logged and dropped.
func (sc *StatusCache) Set(ctx context.Context, email string, view StatusView) {
	if sc == nil || sc.client == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := sc.client.Set(ctx, statusCacheKeyPrefix+email, raw, sc.ttl).Err(); err != nil {
		sc.logger.Debug("status cache set failed", zap.Error(err), zap.String("email", email))
	}
}

// Invalidate drops the cached view after a registration changes.
func (sc *StatusCache) Invalidate(ctx context.Context, email string) {
	if sc == nil || sc.client == nil {
		return
	}
	if err := sc.client.Del(ctx, statusCacheKeyPrefix+email).Err(); err != nil {
		sc.logger.Debug("status cache invalidate failed", zap.Error(err), zap.String("email", email))
	}
}
