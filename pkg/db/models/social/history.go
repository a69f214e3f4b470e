package social

import (
	"bytes"
	"sort"
	"time"

	"github.com/go-jose/go-jose/v4/json"
)

// DateLayout is the calendar-date key used by history buckets.
const DateLayout = "2006-01-02"

// Field is one named, possibly absent, string value.
type Field struct {
	Name  string
	Value *string
}

// Account is one row of a platform account table.
type Account struct {
	ID         int64
	Username   string
	Attributes []Field
}

// Observation is one reading from any of the platform's history tables.
type Observation struct {
	Metric     Metric
	Value      *float64
	RecordedAt time.Time
}

// MetricValue is one populated reading inside a date bucket.
type MetricValue struct {
	Name  string
	Value float64
}

// DatedMetrics holds the readings that landed on one UTC calendar date.
type DatedMetrics struct {
	Date    string
	Metrics []MetricValue
}

// Get returns the reading stored under the history name, e.g. "FollowersCount".
func (d DatedMetrics) Get(name string) (float64, bool) {
	for _, m := range d.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// AccountHistory is an account with its retained observations bucketed by date, newest first.
type AccountHistory struct {
	Platform       Platform
	Username       string
	Attributes     []Field
	HistoricalData []DatedMetrics
}

type bucketEntry struct {
	value float64
	at    time.Time
}

// BuildHistory buckets observations by the UTC date of recorded_at. Within a date the most
// recently recorded reading of a metric wins, ties going to the later element of obs. Absent and
// non-finite readings are skipped, and a date without any reading does not appear.
func BuildHistory(c Catalog, account Account, obs []Observation) *AccountHistory {
	buckets := make(map[string]map[Metric]bucketEntry)
	for _, o := range obs {
		if o.Value == nil || !finite(*o.Value) {
			continue
		}
		date := o.RecordedAt.UTC().Format(DateLayout)
		b, ok := buckets[date]
		if !ok {
			b = make(map[Metric]bucketEntry)
			buckets[date] = b
		}
		if prev, seen := b[o.Metric]; seen && o.RecordedAt.Before(prev.at) {
			continue
		}
		b[o.Metric] = bucketEntry{value: *o.Value, at: o.RecordedAt}
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	history := &AccountHistory{
		Platform:       c.Platform,
		Username:       account.Username,
		Attributes:     account.Attributes,
		HistoricalData: make([]DatedMetrics, 0, len(dates)),
	}
	for _, d := range dates {
		dm := DatedMetrics{Date: d}
		for _, def := range c.Metrics {
			if e, ok := buckets[d][def.Metric]; ok {
				dm.Metrics = append(dm.Metrics, MetricValue{Name: def.HistoryName, Value: e.value})
			}
		}
		history.HistoricalData = append(history.HistoricalData, dm)
	}
	return history
}

// MarshalJSON keeps attributes in catalog order and dates newest first, which a Go map would not.
func (h AccountHistory) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeMember(&buf, "username", h.Username); err != nil {
		return nil, err
	}
	for _, f := range h.Attributes {
		buf.WriteByte(',')
		if err := writeMember(&buf, f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`,"historical_data":{`)
	for i, d := range h.HistoricalData {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, d.Date); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, m := range d.Metrics {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeMember(&buf, m.Name, m.Value); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

func writeMember(buf *bytes.Buffer, key string, v any) error {
	if err := writeKey(buf, key); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
