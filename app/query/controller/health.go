package controller

import (
	"net/http"

	"github.com/canopy-network/socialx/pkg/db"
	"go.uber.org/zap"
)

// HandleHealth reports 503 when Postgres, or Redis when enabled, is unreachable.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var failed string
	c.App.Stores.Range(func(platform string, store db.SocialStore) bool {
		if err := store.Ping(ctx); err != nil {
			c.App.Logger.Warn("Health check failed", zap.String("platform", platform), zap.Error(err))
			failed = "database connection error"
			return false
		}
		return true
	})
	if failed == "" && c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(ctx); err != nil {
			c.App.Logger.Warn("Health check failed", zap.String("component", "redis"), zap.Error(err))
			failed = "redis connection error"
		}
	}

	if failed != "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "errored", "error": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
