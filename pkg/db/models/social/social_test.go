package social

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func TestLookup(t *testing.T) {
	c, ok := Lookup(" TikTok ")
	require.True(t, ok)
	assert.Equal(t, TikTok, c.Platform)
	assert.Equal(t, "tiktok_stats", c.AccountTable)
	assert.Equal(t, []string{
		"tiktok_rank_history", "tiktok_followers_history", "tiktok_likes_history",
		"tiktok_views_history", "tiktok_comments_history", "tiktok_shares_history",
	}, c.HistoryTables())

	_, ok = Lookup("myspace")
	assert.False(t, ok)

	ig := MustLookup(Instagram)
	assert.Equal(t, []string{"category", "country", "image_url"}, ig.AttributeNames())
	assert.NotEqual(t, ig.LockKey, c.LockKey)
}

func TestValidate(t *testing.T) {
	c := MustLookup(Instagram)
	tests := []struct {
		name    string
		rows    []RawMetricRow
		wantRow int
		wantErr bool
	}{
		{
			name: "valid rows with absent values",
			rows: []RawMetricRow{
				{Username: "alice", Metrics: map[Metric]*float64{MetricFollowers: f64(1), MetricRank: nil}},
				{Username: "bob"},
			},
		},
		{
			name:    "empty username fails whole batch",
			rows:    []RawMetricRow{{Username: "alice"}, {Username: "  "}},
			wantErr: true,
			wantRow: 1,
		},
		{
			name:    "metric from another platform",
			rows:    []RawMetricRow{{Username: "alice", Metrics: map[Metric]*float64{MetricLikes: f64(3)}}},
			wantErr: true,
			wantRow: 0,
		},
		{
			name:    "non-finite metric",
			rows:    []RawMetricRow{{Username: "alice"}, {Username: "bob", Metrics: map[Metric]*float64{MetricFollowers: f64(math.Inf(1))}}},
			wantErr: true,
			wantRow: 1,
		},
		{
			name:    "unknown attribute",
			rows:    []RawMetricRow{{Username: "alice", Attributes: map[string]*string{"bio": str("x")}}},
			wantErr: true,
			wantRow: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.rows)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantRow, ve.Row)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	base := errors.New("connection refused")
	storage := NewStorageError("get history", base)
	assert.ErrorIs(t, storage, ErrStorage)
	assert.ErrorIs(t, storage, base)
	assert.NotErrorIs(t, storage, ErrNotFound)

	notFound := fmt.Errorf("lookup: %w", &NotFoundError{Platform: TikTok, Username: "x"})
	assert.ErrorIs(t, notFound, ErrNotFound)
	assert.Same(t, notFound, NewStorageError("op", notFound))

	assert.ErrorIs(t, &ScheduleConflictError{Platform: Instagram}, ErrScheduleConflict)
	assert.NoError(t, NewStorageError("op", nil))
	assert.Equal(t, "invalid page: must be >= 1", (&ValidationError{Row: -1, Field: "page", Reason: "must be >= 1"}).Error())
}

func TestBuildHistory(t *testing.T) {
	c := MustLookup(Instagram)
	d1 := time.Date(2024, 5, 1, 0, 5, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	d3 := d2.Add(24 * time.Hour)

	obs := []Observation{
		{Metric: MetricFollowers, Value: f64(1000), RecordedAt: d1},
		{Metric: MetricRank, Value: f64(1), RecordedAt: d1.Add(time.Second)},
		{Metric: MetricEngagement, Value: f64(2.5), RecordedAt: d2},
		{Metric: MetricFollowers, Value: f64(1500), RecordedAt: d3},
		// later run on the same day wins
		{Metric: MetricFollowers, Value: f64(1600), RecordedAt: d3.Add(time.Hour)},
		// absent readings are not data
		{Metric: MetricRank, Value: nil, RecordedAt: d3},
		// a date with only absent readings disappears
		{Metric: MetricRank, Value: nil, RecordedAt: d3.Add(48 * time.Hour)},
	}

	h := BuildHistory(c, Account{Username: "alice", Attributes: []Field{{Name: "category", Value: str("Music")}}}, obs)
	require.Len(t, h.HistoricalData, 3)
	assert.Equal(t, []string{"2024-05-03", "2024-05-02", "2024-05-01"},
		[]string{h.HistoricalData[0].Date, h.HistoricalData[1].Date, h.HistoricalData[2].Date})

	v, ok := h.HistoricalData[0].Get("FollowersCount")
	require.True(t, ok)
	assert.Equal(t, 1600.0, v)
	_, ok = h.HistoricalData[0].Get("Position")
	assert.False(t, ok)

	_, ok = h.HistoricalData[1].Get("FollowersCount")
	assert.False(t, ok)
	v, _ = h.HistoricalData[1].Get("EngagementRate")
	assert.Equal(t, 2.5, v)

	assert.Equal(t, []MetricValue{{Name: "Position", Value: 1}, {Name: "FollowersCount", Value: 1000}},
		h.HistoricalData[2].Metrics, "metrics follow catalog order")
}

func TestBuildHistoryLastRecordedWinsRegardlessOfOrder(t *testing.T) {
	c := MustLookup(TikTok)
	day := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	obs := []Observation{
		{Metric: MetricLikes, Value: f64(20), RecordedAt: day.Add(time.Hour)},
		{Metric: MetricLikes, Value: f64(10), RecordedAt: day},
	}
	h := BuildHistory(c, Account{Username: "x"}, obs)
	require.Len(t, h.HistoricalData, 1)
	v, _ := h.HistoricalData[0].Get("LikesCount")
	assert.Equal(t, 20.0, v)
}

func TestBuildHistorySkipsNonFiniteValues(t *testing.T) {
	c := MustLookup(Instagram)
	day := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	obs := []Observation{
		{Metric: MetricFollowers, Value: f64(900), RecordedAt: day},
		{Metric: MetricFollowers, Value: f64(math.NaN()), RecordedAt: day.Add(time.Hour)},
		{Metric: MetricEngagement, Value: f64(math.Inf(-1)), RecordedAt: day},
	}
	h := BuildHistory(c, Account{Username: "alice"}, obs)
	require.Len(t, h.HistoricalData, 1)
	v, ok := h.HistoricalData[0].Get("FollowersCount")
	require.True(t, ok)
	assert.Equal(t, 900.0, v)
	_, ok = h.HistoricalData[0].Get("EngagementRate")
	assert.False(t, ok)

	_, err := h.MarshalJSON()
	require.NoError(t, err)
}

func TestBuildHistoryBucketsByUTCDate(t *testing.T) {
	c := MustLookup(TikTok)
	sgt := time.FixedZone("SGT", 8*3600)
	// 2024-03-02 07:00 in Singapore is still 2024-03-01 in UTC
	at := time.Date(2024, 3, 2, 7, 0, 0, 0, sgt)
	h := BuildHistory(c, Account{Username: "x"}, []Observation{{Metric: MetricViews, Value: f64(1), RecordedAt: at}})
	require.Len(t, h.HistoricalData, 1)
	assert.Equal(t, "2024-03-01", h.HistoricalData[0].Date)
}

func TestAccountHistoryMarshalJSON(t *testing.T) {
	h := AccountHistory{
		Username:   "alice",
		Attributes: []Field{{Name: "category", Value: str("Music")}, {Name: "country", Value: nil}},
		HistoricalData: []DatedMetrics{
			{Date: "2024-05-02", Metrics: []MetricValue{{Name: "Position", Value: 2}, {Name: "FollowersCount", Value: 1500}}},
			{Date: "2024-05-01", Metrics: []MetricValue{{Name: "FollowersCount", Value: 1000}}},
		},
	}
	b, err := h.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"username":"alice","category":"Music","country":null,"historical_data":{"2024-05-02":{"Position":2,"FollowersCount":1500},"2024-05-01":{"FollowersCount":1000}}}`,
		string(b))

	empty, err := AccountHistory{Username: "bob"}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"username":"bob","historical_data":{}}`, string(empty))
}

func TestResolveSortKey(t *testing.T) {
	ig := MustLookup(Instagram)
	tt := MustLookup(TikTok)
	tests := []struct {
		catalog Catalog
		raw     string
		want    string
		order   SortOrder
	}{
		{ig, "", "RankToday", SortOrderAsc},
		{ig, "rank_today", "RankToday", SortOrderAsc},
		{ig, "followers_7d", "Followers7DaysAgo", SortOrderDesc},
		{ig, "Followers7DaysAgo", "Followers7DaysAgo", SortOrderDesc},
		{ig, "ENGAGEMENT28DAYSAGO", "Engagement28DaysAgo", SortOrderDesc},
		{ig, "followers", "FollowersToday", SortOrderDesc},
		{ig, "likes_today", "RankToday", SortOrderAsc},
		{ig, "followers; DROP TABLE instagram_stats", "RankToday", SortOrderAsc},
		{tt, "shares_14d", "Shares14DaysAgo", SortOrderDesc},
		{tt, "views_3d", "RankToday", SortOrderAsc},
	}
	for _, tc := range tests {
		t.Run(string(tc.catalog.Platform)+"/"+tc.raw, func(t *testing.T) {
			k := tc.catalog.ResolveSortKey(tc.raw)
			assert.Equal(t, tc.want, k.Column())
			assert.Equal(t, tc.order, k.DefaultOrder())
		})
	}
}

func TestResolveOrder(t *testing.T) {
	rank := MustLookup(Instagram).DefaultSortKey()
	assert.Equal(t, SortOrderAsc, ResolveOrder("", rank))
	assert.Equal(t, SortOrderDesc, ResolveOrder("DESC", rank))
	assert.Equal(t, SortOrderAsc, ResolveOrder("sideways", rank))
}

func TestLeaderboardQueryNormalize(t *testing.T) {
	q, err := LeaderboardQuery{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPerPage, q.PerPage)
	assert.Equal(t, 0, q.Offset())

	q, err = LeaderboardQuery{Page: 3, PerPage: 500}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, MaxPerPage, q.PerPage)
	assert.Equal(t, 200, q.Offset())

	_, err = LeaderboardQuery{Page: -1}.Normalize()
	assert.ErrorIs(t, err, ErrValidation)
	_, err = LeaderboardQuery{PerPage: -5}.Normalize()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, PerPage: 50, TotalCount: 0, TotalPages: 0}, NewPagination(1, 50, 0))
	assert.Equal(t, 1, NewPagination(1, 50, 50).TotalPages)
	assert.Equal(t, 2, NewPagination(1, 50, 51).TotalPages)
	assert.Equal(t, 3, NewPagination(9, 10, 21).TotalPages)
}

func TestLeaderboardRowMarshalJSON(t *testing.T) {
	r := LeaderboardRow{
		ID:         7,
		Username:   "alice",
		Attributes: []Field{{Name: "image_url", Value: nil}},
		Values:     []Field{{Name: "RankToday", Value: str("1")}, {Name: "FollowersToday", Value: str("1.5M")}},
	}
	b, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":7,"username":"alice","image_url":null,"RankToday":"1","FollowersToday":"1.5M"}`, string(b))

	v, ok := r.Get("FollowersToday")
	require.True(t, ok)
	assert.Equal(t, "1.5M", *v)
}

func TestSweepResultTotal(t *testing.T) {
	r := &SweepResult{Deleted: map[string]int64{"a": 3, "b": 4}}
	assert.Equal(t, int64(7), r.Total())
}
