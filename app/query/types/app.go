package types

import (
	"context"
	"net/http"
	"time"

	"github.com/canopy-network/socialx/pkg/db"
	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/db/postgres"
	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// CacheTTL holds the response cache lifetime of each cached endpoint.
type CacheTTL struct {
	History     time.Duration
	Leaderboard time.Duration
	Influencers time.Duration
}

// DefaultCacheTTL mirrors the refresh cadence of the data: rankings change once a day.
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{
		History:     600 * time.Second,
		Leaderboard: 600 * time.Second,
		Influencers: 86400 * time.Second,
	}
}

type App struct {
	// Stores maps platform name to its store.
	Stores *xsync.Map[string, db.SocialStore]
	// DB is the shared pool behind every store. Nil in tests.
	DB *postgres.Client
	// RedisClient backs the response cache and the websocket relay. Nil when Redis is disabled.
	RedisClient *redis.Client
	CacheTTL    CacheTTL
	// Snapshots maps platform to the latest snapshot file served by the influencers listing.
	Snapshots map[social.Platform]string
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// LoadStore resolves a platform path segment to its catalog and store.
func (a *App) LoadStore(platform string) (social.Catalog, db.SocialStore, bool) {
	catalog, ok := social.Lookup(platform)
	if !ok {
		return social.Catalog{}, nil, false
	}
	store, ok := a.Stores.Load(string(catalog.Platform))
	return catalog, store, ok
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}
	a.DB.Close()

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
