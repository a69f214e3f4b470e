package db

import (
	"context"

	"github.com/canopy-network/socialx/pkg/db/models/social"
)

// SocialStore is the per-platform store used by the query API, the scheduler and the CLI.
type SocialStore interface {
	Platform() social.Platform
	EnsureSchema(ctx context.Context) error
	Ingest(ctx context.Context, rows []social.RawMetricRow) (*social.IngestResult, error)
	Sweep(ctx context.Context, horizonDays int) (*social.SweepResult, error)
	GetHistory(ctx context.Context, username string) (*social.AccountHistory, error)
	GetLeaderboard(ctx context.Context, q social.LeaderboardQuery) (*social.LeaderboardPage, error)
	Ping(ctx context.Context) error
}
