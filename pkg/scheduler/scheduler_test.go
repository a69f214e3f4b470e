package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/socialx/pkg/config"
	"github.com/canopy-network/socialx/pkg/db/dbtest"
	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/canopy-network/socialx/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	args := m.Called(ctx, pattern)
	return args.Get(0).(int64), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []redis.IngestCompletedEvent
}

func (p *recordingPublisher) PublishIngestCompleted(_ context.Context, ev redis.IngestCompletedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

type harness struct {
	sched *Scheduler
	store *dbtest.MockStore
	cache *mockCache
	pub   *recordingPublisher
	reads int
}

func newHarness(t *testing.T, read func(n int) ([]social.RawMetricRow, error)) *harness {
	t.Helper()
	h := &harness{
		store: dbtest.NewMockStore(social.Instagram),
		cache: &mockCache{},
		pub:   &recordingPublisher{},
	}
	h.sched = New(config.DefaultConfig(), dbtest.Stores(h.store), zaptest.NewLogger(t))
	h.sched.Retry = fastRetry()
	h.sched.Cache = h.cache
	h.sched.Events = h.pub
	h.sched.ReadSnapshot = func(path string, c social.Catalog) ([]social.RawMetricRow, error) {
		h.reads++
		assert.Equal(t, "scraped_data_instagram.csv", path)
		assert.Equal(t, social.Instagram, c.Platform)
		return read(h.reads)
	}
	return h
}

var oneRow = []social.RawMetricRow{{Username: "alice"}}

func TestRunOnce_Pipeline(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return oneRow, nil })

	h.store.On("Ingest", mock.Anything, oneRow).
		Return(&social.IngestResult{Platform: social.Instagram, Accounts: 1, Created: 1, Observations: 3}, nil).Once()
	h.store.On("Sweep", mock.Anything, 30).
		Return(&social.SweepResult{Platform: social.Instagram, Deleted: map[string]int64{"t": 2}}, nil).Once()
	h.cache.On("DeletePattern", mock.Anything, "social:cache:instagram:*").Return(int64(4), nil).Once()

	res, err := h.sched.RunOnce(context.Background(), social.Instagram)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Ingest.Observations)
	require.NotNil(t, res.Sweep)

	require.Len(t, h.pub.events, 1)
	assert.Equal(t, social.Instagram, h.pub.events[0].Platform)
	assert.Equal(t, int64(2), h.pub.events[0].Swept)
	h.store.AssertExpectations(t)
	h.cache.AssertExpectations(t)
}

func TestRunOnce_RetriesTransientErrors(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return oneRow, nil })

	h.store.On("Ingest", mock.Anything, oneRow).
		Return(nil, &social.StorageError{Op: "ingest", Err: errors.New("connection reset")}).Once()
	h.store.On("Ingest", mock.Anything, oneRow).
		Return(&social.IngestResult{Platform: social.Instagram, Accounts: 1}, nil).Once()
	h.store.On("Sweep", mock.Anything, 30).Return(&social.SweepResult{Deleted: map[string]int64{}}, nil)
	h.cache.On("DeletePattern", mock.Anything, mock.Anything).Return(int64(0), nil)

	_, err := h.sched.RunOnce(context.Background(), social.Instagram)
	require.NoError(t, err)
	assert.Equal(t, 2, h.reads, "snapshot is re-read on every attempt")
	h.store.AssertNumberOfCalls(t, "Ingest", 2)
}

func TestRunOnce_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   error
	}{
		{"validation", &social.ValidationError{Row: 3, Field: "username", Reason: "empty"}, social.ErrValidation},
		{"conflict", &social.ScheduleConflictError{Platform: social.Instagram}, social.ErrScheduleConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return oneRow, nil })
			h.store.On("Ingest", mock.Anything, oneRow).Return(nil, tt.err).Once()

			_, err := h.sched.RunOnce(context.Background(), social.Instagram)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.is))
			h.store.AssertNumberOfCalls(t, "Ingest", 1)
			h.store.AssertNotCalled(t, "Sweep", mock.Anything, mock.Anything)
			assert.Empty(t, h.pub.events)
		})
	}
}

func TestRunOnce_UnreadableSnapshotIsPermanent(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) {
		return nil, &social.ValidationError{Row: 0, Field: "Followers", Reason: "not a number"}
	})

	_, err := h.sched.RunOnce(context.Background(), social.Instagram)
	require.Error(t, err)
	assert.Equal(t, 1, h.reads)
	h.store.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestRunOnce_GivesUpAfterMaxRetries(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return nil, errors.New("file not there yet") })

	_, err := h.sched.RunOnce(context.Background(), social.Instagram)
	require.Error(t, err)
	assert.Equal(t, 3, h.reads)
}

func TestRunOnce_SweepAndCacheFailuresDoNotFailRun(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return oneRow, nil })
	h.store.On("Ingest", mock.Anything, oneRow).Return(&social.IngestResult{Platform: social.Instagram}, nil)
	h.store.On("Sweep", mock.Anything, 30).Return(nil, &social.StorageError{Op: "sweep", Err: errors.New("boom")})
	h.cache.On("DeletePattern", mock.Anything, mock.Anything).Return(int64(0), errors.New("redis down"))

	res, err := h.sched.RunOnce(context.Background(), social.Instagram)
	require.NoError(t, err)
	assert.Nil(t, res.Sweep)
	require.Len(t, h.pub.events, 1)
	assert.Zero(t, h.pub.events[0].Swept)
}

func TestRunOnce_WithoutOptionalSinks(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return oneRow, nil })
	h.sched.Cache = nil
	h.sched.Events = nil
	h.store.On("Ingest", mock.Anything, oneRow).Return(&social.IngestResult{Platform: social.Instagram}, nil)
	h.store.On("Sweep", mock.Anything, 30).Return(&social.SweepResult{}, nil)

	_, err := h.sched.RunOnce(context.Background(), social.Instagram)
	require.NoError(t, err)
}

func TestRunOnce_UnknownPlatform(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return oneRow, nil })

	_, err := h.sched.RunOnce(context.Background(), social.TikTok)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return oneRow, nil })
	require.NoError(t, h.sched.Start(context.Background()))
	assert.Len(t, h.sched.cron.Entries(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.sched.Stop(ctx)
}

func TestStart_InvalidSchedule(t *testing.T) {
	h := newHarness(t, func(int) ([]social.RawMetricRow, error) { return oneRow, nil })
	h.sched.Config.Jobs = []config.Job{{Platform: "instagram", Schedule: "nonsense", Snapshot: "x.csv"}}
	assert.Error(t, h.sched.Start(context.Background()))
}
