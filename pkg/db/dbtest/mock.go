// Package dbtest provides a testify mock of db.SocialStore for packages that sit above the store.
package dbtest

import (
	"context"

	"github.com/canopy-network/socialx/pkg/db"
	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/stretchr/testify/mock"
)

var _ db.SocialStore = (*MockStore)(nil)

type MockStore struct {
	mock.Mock
	PlatformName social.Platform
}

func NewMockStore(p social.Platform) *MockStore {
	return &MockStore{PlatformName: p}
}

func (m *MockStore) Platform() social.Platform { return m.PlatformName }

func (m *MockStore) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Ingest(ctx context.Context, rows []social.RawMetricRow) (*social.IngestResult, error) {
	args := m.Called(ctx, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*social.IngestResult), args.Error(1)
}

func (m *MockStore) Sweep(ctx context.Context, horizonDays int) (*social.SweepResult, error) {
	args := m.Called(ctx, horizonDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*social.SweepResult), args.Error(1)
}

func (m *MockStore) GetHistory(ctx context.Context, username string) (*social.AccountHistory, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*social.AccountHistory), args.Error(1)
}

func (m *MockStore) GetLeaderboard(ctx context.Context, q social.LeaderboardQuery) (*social.LeaderboardPage, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*social.LeaderboardPage), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Stores builds the platform map the services use from a set of mocks.
func Stores(mocks ...*MockStore) *xsync.Map[string, db.SocialStore] {
	stores := xsync.NewMap[string, db.SocialStore]()
	for _, m := range mocks {
		stores.Store(string(m.PlatformName), m)
	}
	return stores
}
