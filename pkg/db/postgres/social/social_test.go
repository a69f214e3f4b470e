package social

import (
	"context"
	"strings"
	"testing"

	models "github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newOfflineDB returns a store without a pool, for code paths that must not reach Postgres.
func newOfflineDB(t *testing.T, p models.Platform) *DB {
	t.Helper()
	db, err := New(nil, zaptest.NewLogger(t), p)
	require.NoError(t, err)
	return db
}

func TestNewUnknownPlatform(t *testing.T) {
	_, err := New(nil, zaptest.NewLogger(t), "myspace")
	require.Error(t, err)
}

func TestIngestValidatesBeforeStorage(t *testing.T) {
	db := newOfflineDB(t, models.Instagram)
	followers := 10.0

	_, err := db.Ingest(context.Background(), []models.RawMetricRow{
		{Username: "alice", Metrics: map[models.Metric]*float64{models.MetricFollowers: &followers}},
		{Username: ""},
	})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Row)
	assert.Equal(t, "username", ve.Field)

	res, err := db.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Accounts)
}

func TestSweepRejectsNonPositiveHorizon(t *testing.T) {
	db := newOfflineDB(t, models.TikTok)
	_, err := db.Sweep(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetLeaderboardRejectsBadPage(t *testing.T) {
	db := newOfflineDB(t, models.TikTok)
	_, err := db.GetLeaderboard(context.Background(), models.LeaderboardQuery{Page: -2})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpsertAccountSQL(t *testing.T) {
	sql := newOfflineDB(t, models.Instagram).upsertAccountSQL()
	assert.Contains(t, sql, `INSERT INTO "instagram_stats" (username, "category", "country", "image_url")`)
	assert.Contains(t, sql, `VALUES ($1, $2, $3, $4)`)
	assert.Contains(t, sql, `"category" = EXCLUDED."category"`)
	assert.Contains(t, sql, `updated_at = now()`)
	assert.Contains(t, sql, `RETURNING id, (xmax = 0) AS inserted`)

	tiktok := newOfflineDB(t, models.TikTok).upsertAccountSQL()
	assert.Contains(t, tiktok, `VALUES ($1, $2)`)
	assert.NotContains(t, tiktok, "category")
}

func TestInsertObservationSQL(t *testing.T) {
	sql := newOfflineDB(t, models.TikTok).insertObservationSQL(models.MetricShares)
	assert.Contains(t, sql, `INSERT INTO "tiktok_shares_history" (account_id, value)`)
	assert.Contains(t, sql, `FROM "tiktok_stats" WHERE username = $1`)
	assert.NotContains(t, sql, "recorded_at")
}

func TestSchemaDDL(t *testing.T) {
	db := newOfflineDB(t, models.Instagram)
	ddl := db.accountDDL()
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "instagram_stats"`)
	assert.Contains(t, ddl, `username TEXT NOT NULL UNIQUE`)
	assert.Contains(t, ddl, `ALTER TABLE "instagram_stats" ADD COLUMN IF NOT EXISTS "country" TEXT;`)

	hist := historyDDL("instagram_stats", "instagram_rank_history")
	assert.Contains(t, hist, `REFERENCES "instagram_stats"(id)`)
	assert.Contains(t, hist, `recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()`)
	assert.Equal(t, 2, strings.Count(hist, "CREATE INDEX IF NOT EXISTS"))
}

func TestHistorySQL(t *testing.T) {
	sql := newOfflineDB(t, models.TikTok).historySQL()
	assert.Equal(t, 5, strings.Count(sql, "UNION ALL"))
	assert.Contains(t, sql, `SELECT 'likes'::text AS metric`)
	assert.Contains(t, sql, `ORDER BY o.recorded_at ASC NULLS FIRST, o.id ASC NULLS FIRST`)
}

func TestLeaderboardSQL(t *testing.T) {
	db := newOfflineDB(t, models.Instagram)
	tests := []struct {
		sort, order string
		want        string
	}{
		{"", "", "ORDER BY m_rank.d0 ASC NULLS LAST, a.username ASC"},
		{"followers_7d", "", "ORDER BY m_followers.d7 DESC NULLS LAST"},
		{"Engagement28DaysAgo", "asc", "ORDER BY m_engagement.d28 ASC NULLS LAST"},
		{"rank_14d", "desc", "ORDER BY m_rank.d14 DESC NULLS LAST"},
		{"username; DROP TABLE instagram_stats", "", "ORDER BY m_rank.d0 ASC NULLS LAST"},
	}
	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			key := db.Catalog.ResolveSortKey(tt.sort)
			sql := db.leaderboardSQL(key, models.ResolveOrder(tt.order, key))
			assert.Contains(t, sql, tt.want)
			assert.NotContains(t, sql, "DROP")
		})
	}

	sql := db.leaderboardSQL(db.Catalog.DefaultSortKey(), models.SortOrderAsc)
	assert.Contains(t, sql, "recorded_at::date = CURRENT_DATE - 7))[1] AS d7")
	assert.Contains(t, sql, "WHERE recorded_at >= CURRENT_DATE - 28")
	assert.Contains(t, sql, "LEFT JOIN m_engagement ON m_engagement.account_id = a.id")
	assert.Contains(t, sql, "LIMIT $1 OFFSET $2")
}

func TestLeaderboardRow(t *testing.T) {
	db := newOfflineDB(t, models.Instagram)
	v := func(f float64) *float64 { return &f }
	img := "https://img/alice.jpg"

	// rank, followers, engagement × today, 7d, 14d, 28d
	values := []*float64{
		v(1), v(2), nil, v(0),
		v(1_500_000), v(2_300), v(999), v(0),
		v(2.5), nil, nil, nil,
	}
	row := db.leaderboardRow(42, "alice", []*string{nil, nil, &img}, values)

	expect := map[string]*string{}
	for _, f := range row.Values {
		expect[f.Name] = f.Value
	}
	require.Len(t, row.Values, 12)
	assert.Equal(t, "1", *expect["RankToday"])
	assert.Equal(t, "2", *expect["Rank7DaysAgo"])
	assert.Nil(t, expect["Rank14DaysAgo"])
	assert.Nil(t, expect["Rank28DaysAgo"])
	assert.Equal(t, "1.5M", *expect["FollowersToday"])
	assert.Equal(t, "2.3K", *expect["Followers7DaysAgo"])
	assert.Equal(t, "999", *expect["Followers14DaysAgo"])
	assert.Nil(t, expect["Followers28DaysAgo"], "zero renders as absent")
	assert.Equal(t, "2.5", *expect["EngagementToday"])
	assert.Equal(t, "image_url", row.Attributes[2].Name)
	assert.Equal(t, img, *row.Attributes[2].Value)
}
