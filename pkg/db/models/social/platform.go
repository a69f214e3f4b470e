package social

import (
	"fmt"
	"strings"
)

// Platform identifies one tracked social network.
type Platform string

const (
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
)

// Metric identifies one observation table of a platform.
type Metric string

const (
	MetricRank       Metric = "rank"
	MetricFollowers  Metric = "followers"
	MetricEngagement Metric = "engagement"
	MetricLikes      Metric = "likes"
	MetricViews      Metric = "views"
	MetricComments   Metric = "comments"
	MetricShares     Metric = "shares"
)

// AttributeDef describes one mutable descriptive column of an account table.
type AttributeDef struct {
	// Name is the database column and the JSON field.
	Name string
	// Column is the snapshot CSV header.
	Column string
	// Optional columns may be missing from the snapshot header entirely.
	Optional bool
}

// MetricDef describes one metric family.
type MetricDef struct {
	Metric Metric
	// Column is the snapshot CSV header.
	Column string
	// HistoryName keys the metric inside history date buckets.
	HistoryName string
	// LeaderboardName prefixes the leaderboard columns (FollowersToday, Followers7DaysAgo, ...).
	LeaderboardName string
	// Position metrics rank ascending and are never abbreviated.
	Position bool
}

// Catalog is the static schema of one platform. Every table and column name used in SQL comes
// from here, never from request input.
type Catalog struct {
	Platform     Platform
	AccountTable string
	Attributes   []AttributeDef
	Metrics      []MetricDef
	// LockKey is the advisory lock taken by ingestion.
	LockKey int64
}

var catalogs = map[Platform]Catalog{
	Instagram: {
		Platform:     Instagram,
		AccountTable: "instagram_stats",
		Attributes: []AttributeDef{
			{Name: "category", Column: "Category"},
			{Name: "country", Column: "Country"},
			{Name: "image_url", Column: "img", Optional: true},
		},
		Metrics: []MetricDef{
			{Metric: MetricRank, Column: "Rank", HistoryName: "Position", LeaderboardName: "Rank", Position: true},
			{Metric: MetricFollowers, Column: "Followers", HistoryName: "FollowersCount", LeaderboardName: "Followers"},
			{Metric: MetricEngagement, Column: "Engagement", HistoryName: "EngagementRate", LeaderboardName: "Engagement"},
		},
		LockKey: 7_130_001,
	},
	TikTok: {
		Platform:     TikTok,
		AccountTable: "tiktok_stats",
		Attributes: []AttributeDef{
			{Name: "image_url", Column: "img", Optional: true},
		},
		Metrics: []MetricDef{
			{Metric: MetricRank, Column: "Rank", HistoryName: "Position", LeaderboardName: "Rank", Position: true},
			{Metric: MetricFollowers, Column: "Followers", HistoryName: "FollowersCount", LeaderboardName: "Followers"},
			{Metric: MetricLikes, Column: "Likes", HistoryName: "LikesCount", LeaderboardName: "Likes"},
			{Metric: MetricViews, Column: "Views", HistoryName: "ViewsCount", LeaderboardName: "Views"},
			{Metric: MetricComments, Column: "Comments", HistoryName: "CommentsCount", LeaderboardName: "Comments"},
			{Metric: MetricShares, Column: "Shares", HistoryName: "SharesCount", LeaderboardName: "Shares"},
		},
		LockKey: 7_130_002,
	},
}

// Platforms lists the supported platforms in a stable order.
func Platforms() []Platform {
	return []Platform{Instagram, TikTok}
}

// Lookup returns the catalog of a platform by name, case-insensitively.
func Lookup(name string) (Catalog, bool) {
	c, ok := catalogs[Platform(strings.ToLower(strings.TrimSpace(name)))]
	return c, ok
}

// MustLookup is Lookup for compile-time known platforms.
func MustLookup(p Platform) Catalog {
	c, ok := catalogs[p]
	if !ok {
		panic(fmt.Sprintf("unknown platform %q", p))
	}
	return c
}

// HistoryTable returns the observation table of a metric, e.g. "tiktok_likes_history".
func (c Catalog) HistoryTable(m Metric) string {
	return fmt.Sprintf("%s_%s_history", c.Platform, m)
}

// HistoryTables lists every observation table in catalog order.
func (c Catalog) HistoryTables() []string {
	tables := make([]string, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		tables = append(tables, c.HistoryTable(m.Metric))
	}
	return tables
}

// MetricDef returns the definition of m on this platform.
func (c Catalog) MetricDef(m Metric) (MetricDef, bool) {
	for _, def := range c.Metrics {
		if def.Metric == m {
			return def, true
		}
	}
	return MetricDef{}, false
}

// HasAttribute reports whether name is a descriptive column of this platform.
func (c Catalog) HasAttribute(name string) bool {
	for _, a := range c.Attributes {
		if a.Name == name {
			return true
		}
	}
	return false
}

// AttributeNames lists the descriptive columns in catalog order.
func (c Catalog) AttributeNames() []string {
	names := make([]string, 0, len(c.Attributes))
	for _, a := range c.Attributes {
		names = append(names, a.Name)
	}
	return names
}
