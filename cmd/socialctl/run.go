package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/canopy-network/socialx/pkg/db"
	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/db/postgres"
	"github.com/canopy-network/socialx/pkg/logging"
	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/canopy-network/socialx/pkg/snapshot"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// env holds the connections one command needs.
type env struct {
	logger *zap.Logger
	client *postgres.Client
	redis  *redis.Client
	stores *xsync.Map[string, db.SocialStore]
}

func openEnv(ctx context.Context, ensureSchema bool) (*env, error) {
	logger, err := logging.Named("socialctl")
	if err != nil {
		return nil, err
	}
	client, err := db.NewClient(ctx, logger, "cli")
	if err != nil {
		return nil, err
	}
	stores, err := db.EnsureSocialStores(ctx, logger, client, ensureSchema)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &env{
		logger: logger,
		client: client,
		redis:  redis.NewOptional(ctx, logger),
		stores: stores,
	}, nil
}

func (e *env) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	e.client.Close()
	_ = e.logger.Sync()
}

func (e *env) store(platform string) (db.SocialStore, error) {
	return lookupStore(e.stores, platform)
}

func lookupStore(stores *xsync.Map[string, db.SocialStore], platform string) (db.SocialStore, error) {
	c, ok := social.Lookup(platform)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
	store, ok := stores.Load(string(c.Platform))
	if !ok {
		return nil, fmt.Errorf("no store for platform %q", c.Platform)
	}
	return store, nil
}

type ingestOptions struct {
	File string
	// HorizonDays > 0 sweeps after ingesting.
	HorizonDays int
}

type ingestOutput struct {
	Ingest *social.IngestResult `json:"ingest"`
	Sweep  *social.SweepResult  `json:"sweep,omitempty"`
}

// runIngest reads and ingests one snapshot. With Redis enabled it also invalidates the
// platform's cached responses and announces the ingestion, like a scheduled run.
func runIngest(ctx context.Context, out io.Writer, e *env, store db.SocialStore, opts ingestOptions) error {
	rows, err := snapshot.ReadFile(opts.File, social.MustLookup(store.Platform()))
	if err != nil {
		return err
	}
	res, err := store.Ingest(ctx, rows)
	if err != nil {
		return err
	}
	output := ingestOutput{Ingest: res}

	if opts.HorizonDays > 0 {
		sweep, err := store.Sweep(ctx, opts.HorizonDays)
		if err != nil {
			e.logger.Warn("Retention sweep failed", zap.Error(err))
		} else {
			output.Sweep = sweep
		}
	}

	if e.redis != nil {
		if _, err := e.redis.DeletePattern(ctx, redis.PlatformPattern(store.Platform())); err != nil {
			e.logger.Warn("Cache invalidation failed", zap.Error(err))
		}
		e.redis.PublishIngestCompleted(ctx, redis.NewIngestCompletedEvent(res, output.Sweep, time.Now()))
	}
	return printJSON(out, output)
}

func runSweep(ctx context.Context, out io.Writer, store db.SocialStore, horizonDays int) error {
	res, err := store.Sweep(ctx, horizonDays)
	if res != nil {
		if perr := printJSON(out, res); perr != nil {
			return errors.Join(err, perr)
		}
	}
	return err
}

func runHistory(ctx context.Context, out io.Writer, store db.SocialStore, username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	h, err := store.GetHistory(ctx, username)
	if err != nil {
		return err
	}
	return printJSON(out, h)
}

func runLeaderboard(ctx context.Context, out io.Writer, store db.SocialStore, q social.LeaderboardQuery) error {
	page, err := store.GetLeaderboard(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(out, page)
}

func printJSON(out io.Writer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, b, "", "  "); err != nil {
		return err
	}
	indented.WriteByte('\n')
	_, err = indented.WriteTo(out)
	return err
}
