package db

import (
	"context"
	"fmt"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/db/postgres"
	socialdb "github.com/canopy-network/socialx/pkg/db/postgres/social"
	"github.com/canopy-network/socialx/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

var _ SocialStore = (*socialdb.DB)(nil)

// NewClient opens the shared pool on POSTGRES_DB (default "socialx") for a component. postgres.New
// already retries database creation and the first connection with backoff.
func NewClient(ctx context.Context, logger *zap.Logger, component string) (*postgres.Client, error) {
	dbName := utils.Env("POSTGRES_DB", "socialx")
	client, err := postgres.New(ctx, logger.With(zap.String("db", dbName)), dbName, postgres.GetPoolConfigForComponent(component))
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// EnsureSocialStores builds one store per platform over the shared client, keyed by platform
// name. With ensureSchema set, every store's schema is created first.
func EnsureSocialStores(ctx context.Context, logger *zap.Logger, client *postgres.Client, ensureSchema bool) (*xsync.Map[string, SocialStore], error) {
	platforms := social.Platforms()
	built := make([]*socialdb.DB, 0, len(platforms))
	for _, p := range platforms {
		store, err := socialdb.New(client, logger, p)
		if err != nil {
			return nil, fmt.Errorf("build %s store: %w", p, err)
		}
		built = append(built, store)
	}
	if ensureSchema {
		if err := socialdb.EnsureAll(ctx, built...); err != nil {
			return nil, err
		}
	}

	stores := xsync.NewMap[string, SocialStore]()
	for _, store := range built {
		stores.Store(string(store.Platform()), store)
	}
	return stores, nil
}
