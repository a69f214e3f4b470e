// Package scheduler runs the daily snapshot pipeline per platform: read the snapshot, ingest it
// with retries, sweep expired history, invalidate cached responses and announce the run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/socialx/pkg/config"
	"github.com/canopy-network/socialx/pkg/db"
	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/metrics"
	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/canopy-network/socialx/pkg/retry"
	"github.com/canopy-network/socialx/pkg/snapshot"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultJobTimeout bounds one pipeline run, retries included.
const DefaultJobTimeout = 10 * time.Minute

// Cache is the part of the response cache the pipeline invalidates.
type Cache interface {
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}

// Publisher announces completed ingestions.
type Publisher interface {
	PublishIngestCompleted(ctx context.Context, ev redis.IngestCompletedEvent)
}

// SnapshotReader loads a snapshot file for a platform.
type SnapshotReader func(path string, c social.Catalog) ([]social.RawMetricRow, error)

// RunResult is the outcome of one pipeline run. Sweep is nil when the sweep failed.
type RunResult struct {
	Ingest *social.IngestResult `json:"ingest"`
	Sweep  *social.SweepResult  `json:"sweep,omitempty"`
}

type Scheduler struct {
	Stores *xsync.Map[string, db.SocialStore]
	Config config.Config
	Logger *zap.Logger

	// Cache and Events are optional.
	Cache  Cache
	Events Publisher

	Retry        retry.Config
	JobTimeout   time.Duration
	ReadSnapshot SnapshotReader
	Now          func() time.Time

	cron *cron.Cron
}

// New returns a scheduler with the production retry policy and snapshot reader.
func New(cfg config.Config, stores *xsync.Map[string, db.SocialStore], logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Stores:       stores,
		Config:       cfg,
		Logger:       logger,
		Retry:        retry.JobConfig(),
		JobTimeout:   DefaultJobTimeout,
		ReadSnapshot: snapshot.ReadFile,
		Now:          time.Now,
	}
}

// Start registers one cron entry per configured job and starts the cron loop. Runs derive their
// context from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	loc, err := s.Config.Location()
	if err != nil {
		return err
	}
	logger := cronLogger{l: s.Logger.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, job := range s.Config.Jobs {
		cat, ok := social.Lookup(job.Platform)
		if !ok {
			return fmt.Errorf("unknown platform %q", job.Platform)
		}
		platform := cat.Platform
		if _, err := s.cron.AddFunc(job.Schedule, func() {
			if _, err := s.RunOnce(ctx, platform); err != nil {
				s.Logger.Error("Scheduled ingestion failed",
					zap.String("platform", string(platform)),
					zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", platform, err)
		}
		s.Logger.Info("Ingestion scheduled",
			zap.String("platform", string(platform)),
			zap.String("schedule", job.Schedule),
			zap.String("snapshot", job.Snapshot),
			zap.String("timezone", loc.String()))
	}

	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for running jobs, or until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce executes the pipeline for one platform now. Only ingestion failures are returned;
// sweep, cache and event failures are logged and leave the committed ingestion in place.
func (s *Scheduler) RunOnce(ctx context.Context, platform social.Platform) (*RunResult, error) {
	store, ok := s.Stores.Load(string(platform))
	if !ok {
		return nil, fmt.Errorf("no store for platform %q", platform)
	}
	job, ok := s.Config.Job(platform)
	if !ok {
		return nil, fmt.Errorf("no job configured for platform %q", platform)
	}
	catalog := social.MustLookup(platform)
	logger := s.Logger.With(zap.String("platform", string(platform)))

	timeout := s.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.Now()
	var ingest *social.IngestResult
	err := retry.WithBackoff(ctx, s.Retry, logger, "ingest "+string(platform), func() error {
		rows, err := s.ReadSnapshot(job.Snapshot, catalog)
		if err != nil {
			return classify(err)
		}
		res, err := store.Ingest(ctx, rows)
		if err != nil {
			return classify(err)
		}
		ingest = res
		return nil
	})
	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.Is(err, social.ErrScheduleConflict) {
			outcome = metrics.OutcomeConflict
		}
		metrics.RecordIngest(string(platform), outcome, s.Now().Sub(start), 0)
		return nil, err
	}
	metrics.RecordIngest(string(platform), metrics.OutcomeSuccess, s.Now().Sub(start), ingest.Observations)

	result := &RunResult{Ingest: ingest}
	sweep, err := store.Sweep(ctx, s.Config.HorizonDays)
	if err != nil {
		logger.Warn("Retention sweep failed", zap.Error(err))
	}
	if sweep != nil {
		metrics.RecordSweep(string(platform), sweep.Total())
		if err == nil {
			result.Sweep = sweep
		}
	}

	if s.Cache != nil {
		if _, err := s.Cache.DeletePattern(ctx, redis.PlatformPattern(platform)); err != nil {
			logger.Warn("Cache invalidation failed", zap.Error(err))
		}
	}
	if s.Events != nil {
		s.Events.PublishIngestCompleted(ctx, redis.NewIngestCompletedEvent(ingest, result.Sweep, s.Now()))
	}

	logger.Info("Ingestion pipeline finished",
		zap.Int("accounts", ingest.Accounts),
		zap.Int("observations", ingest.Observations),
		zap.Duration("duration", s.Now().Sub(start)))
	return result, nil
}

// classify marks errors that another attempt cannot fix.
func classify(err error) error {
	if errors.Is(err, social.ErrValidation) || errors.Is(err, social.ErrScheduleConflict) {
		return retry.Permanent(err)
	}
	return err
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
