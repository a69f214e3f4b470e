package social

import (
	"bytes"
	"strconv"
	"strings"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 100
)

// Anchor is one of the leaderboard's fixed comparison dates, Days before CURRENT_DATE.
type Anchor struct {
	Days   int
	Suffix string
	Short  string
}

var (
	AnchorToday = Anchor{Days: 0, Suffix: "Today", Short: "today"}
	Anchor7     = Anchor{Days: 7, Suffix: "7DaysAgo", Short: "7d"}
	Anchor14    = Anchor{Days: 14, Suffix: "14DaysAgo", Short: "14d"}
	Anchor28    = Anchor{Days: 28, Suffix: "28DaysAgo", Short: "28d"}
)

// Anchors lists the comparison dates in output order.
var Anchors = []Anchor{AnchorToday, Anchor7, Anchor14, Anchor28}

type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// SortKey is a resolved metric×anchor leaderboard column.
type SortKey struct {
	Metric MetricDef
	Anchor Anchor
}

// Column is the output column name, e.g. "Followers7DaysAgo".
func (k SortKey) Column() string {
	return k.Metric.LeaderboardName + k.Anchor.Suffix
}

// Key is the canonical request spelling, e.g. "followers_7d".
func (k SortKey) Key() string {
	return string(k.Metric.Metric) + "_" + k.Anchor.Short
}

// DefaultOrder sorts positions ascending (1 first) and every other metric descending.
func (k SortKey) DefaultOrder() SortOrder {
	if k.Metric.Position {
		return SortOrderAsc
	}
	return SortOrderDesc
}

// DefaultSortKey is rank today.
func (c Catalog) DefaultSortKey() SortKey {
	def, _ := c.MetricDef(MetricRank)
	return SortKey{Metric: def, Anchor: AnchorToday}
}

// ResolveSortKey maps a caller-supplied key onto the whitelist of metric×anchor columns.
// Accepted spellings, case-insensitive: "followers_7d", "followers_today", "followers" (today),
// "Followers7DaysAgo", "FollowersToday". Anything else falls back to the default.
func (c Catalog) ResolveSortKey(raw string) SortKey {
	want := strings.ToLower(strings.TrimSpace(raw))
	if want == "" {
		return c.DefaultSortKey()
	}
	for _, def := range c.Metrics {
		for _, a := range Anchors {
			k := SortKey{Metric: def, Anchor: a}
			if want == k.Key() || want == strings.ToLower(k.Column()) {
				return k
			}
			if a == AnchorToday && want == string(def.Metric) {
				return k
			}
		}
	}
	return c.DefaultSortKey()
}

// ResolveOrder returns the explicit order when valid, otherwise the key's default.
func ResolveOrder(raw string, key SortKey) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case SortOrderAsc:
		return SortOrderAsc
	case SortOrderDesc:
		return SortOrderDesc
	default:
		return key.DefaultOrder()
	}
}

// LeaderboardQuery is a page request. Zero Page and PerPage mean defaults.
type LeaderboardQuery struct {
	Page    int
	PerPage int
	Sort    string
	Order   string
}

// Normalize applies defaults and the per-page cap. Negative values are rejected.
func (q LeaderboardQuery) Normalize() (LeaderboardQuery, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = DefaultPerPage
	}
	if q.Page < 1 {
		return q, &ValidationError{Row: -1, Field: "page", Reason: "must be >= 1"}
	}
	if q.PerPage < 1 {
		return q, &ValidationError{Row: -1, Field: "per_page", Reason: "must be >= 1"}
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q, nil
}

// Offset is the number of rows skipped before this page.
func (q LeaderboardQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}

type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination computes total_pages as ceil(total/perPage).
func NewPagination(page, perPage int, total int64) Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{Page: page, PerPage: perPage, TotalCount: total, TotalPages: pages}
}

// LeaderboardRow is one account with its metric×anchor display values, in catalog order.
type LeaderboardRow struct {
	ID         int64
	Username   string
	Attributes []Field
	Values     []Field
}

// Get returns the display value of a column such as "FollowersToday".
func (r LeaderboardRow) Get(column string) (*string, bool) {
	for _, v := range r.Values {
		if v.Name == column {
			return v.Value, true
		}
	}
	return nil, false
}

func (r LeaderboardRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	buf.WriteString(strconv.FormatInt(r.ID, 10))
	buf.WriteByte(',')
	if err := writeMember(&buf, "username", r.Username); err != nil {
		return nil, err
	}
	for _, group := range [][]Field{r.Attributes, r.Values} {
		for _, f := range group {
			buf.WriteByte(',')
			if err := writeMember(&buf, f.Name, f.Value); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type LeaderboardPage struct {
	Platform   Platform         `json:"-"`
	Data       []LeaderboardRow `json:"data"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
	Order      SortOrder        `json:"order"`
}
