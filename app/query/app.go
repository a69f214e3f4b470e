package query

import (
	"context"

	"github.com/canopy-network/socialx/app/query/types"
	"github.com/canopy-network/socialx/pkg/config"
	"github.com/canopy-network/socialx/pkg/db"
	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/logging"
	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/canopy-network/socialx/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.Named("query")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	client, err := db.NewClient(ctx, logger, "query")
	if err != nil {
		logger.Fatal("Unable to connect to Postgres", zap.Error(err))
	}

	stores, err := db.EnsureSocialStores(ctx, logger, client, true)
	if err != nil {
		logger.Fatal("Unable to initialize platform stores", zap.Error(err))
	}

	// the job file tells us where the latest snapshots live
	jobs, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Unable to load jobs config", zap.Error(err))
	}
	snapshots := make(map[social.Platform]string, len(jobs.Jobs))
	for _, job := range jobs.Jobs {
		if c, ok := social.Lookup(job.Platform); ok {
			snapshots[c.Platform] = job.Snapshot
		}
	}

	defaults := types.DefaultCacheTTL()
	app := &types.App{
		Stores:      stores,
		DB:          client,
		RedisClient: redis.NewOptional(ctx, logger),
		CacheTTL: types.CacheTTL{
			History:     utils.EnvDuration("CACHE_TTL_HISTORY", defaults.History),
			Leaderboard: utils.EnvDuration("CACHE_TTL_LEADERBOARD", defaults.Leaderboard),
			Influencers: utils.EnvDuration("CACHE_TTL_INFLUENCERS", defaults.Influencers),
		},
		Snapshots: snapshots,
		Logger:    logger,
	}

	return app
}
