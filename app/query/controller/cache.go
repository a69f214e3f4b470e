package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/canopy-network/socialx/pkg/metrics"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

// serveCached answers from Redis when possible and otherwise from load, caching the encoded
// result for ttl. Without Redis it always calls load. Errors are never cached.
func (c *Controller) serveCached(w http.ResponseWriter, r *http.Request, endpoint, key string, ttl time.Duration, load func(ctx context.Context) (interface{}, error)) {
	ctx := r.Context()
	rc := c.App.RedisClient

	if rc != nil {
		if body, ok := rc.GetBytes(ctx, key); ok {
			metrics.RecordCache(endpoint, true)
			w.Header().Set("X-Cache", "HIT")
			writeRaw(w, http.StatusOK, body)
			return
		}
		metrics.RecordCache(endpoint, false)
	}

	v, err := load(ctx)
	if err != nil {
		c.writeStoreError(w, r, err)
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		c.App.Logger.Error("Failed to encode response", zap.String("endpoint", endpoint), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	if rc != nil && ttl > 0 {
		rc.SetBytes(ctx, key, body, ttl)
	}
	w.Header().Set("X-Cache", "MISS")
	writeRaw(w, http.StatusOK, body)
}
