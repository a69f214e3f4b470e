package social

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultHorizonDays is how long observations are retained.
const DefaultHorizonDays = 30

// RawMetricRow is one account of one snapshot. A nil pointer (or a missing key) is an absent value.
type RawMetricRow struct {
	Username   string
	Attributes map[string]*string
	Metrics    map[Metric]*float64
}

// Attr returns the named attribute, or nil when absent.
func (r RawMetricRow) Attr(name string) *string {
	if r.Attributes == nil {
		return nil
	}
	return r.Attributes[name]
}

// Value returns the reading of m, or nil when absent.
func (r RawMetricRow) Value(m Metric) *float64 {
	if r.Metrics == nil {
		return nil
	}
	return r.Metrics[m]
}

// Validate checks the whole batch before anything is written. The first bad row wins.
func (c Catalog) Validate(rows []RawMetricRow) error {
	for i, row := range rows {
		if strings.TrimSpace(row.Username) == "" {
			return &ValidationError{Row: i, Field: "username", Reason: "must not be empty"}
		}
		for name := range row.Attributes {
			if !c.HasAttribute(name) {
				return &ValidationError{Row: i, Field: name, Reason: fmt.Sprintf("not an attribute of %s", c.Platform)}
			}
		}
		for m, v := range row.Metrics {
			if _, ok := c.MetricDef(m); !ok {
				return &ValidationError{Row: i, Field: string(m), Reason: fmt.Sprintf("not a metric of %s", c.Platform)}
			}
			if v != nil && !finite(*v) {
				return &ValidationError{Row: i, Field: string(m), Reason: "must be a finite number"}
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IngestResult summarizes one committed ingestion batch.
type IngestResult struct {
	Platform     Platform      `json:"platform"`
	Accounts     int           `json:"accounts"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Observations int           `json:"observations"`
	Duration     time.Duration `json:"duration_ns"`
}

// SweepResult reports per-table deletions. A table is in exactly one of Deleted or Failed.
type SweepResult struct {
	Platform    Platform          `json:"platform"`
	HorizonDays int               `json:"horizon_days"`
	Deleted     map[string]int64  `json:"deleted"`
	Failed      map[string]string `json:"failed,omitempty"`
	Duration    time.Duration     `json:"duration_ns"`
}

// Total is the number of rows deleted across all tables.
func (r *SweepResult) Total() int64 {
	var n int64
	for _, v := range r.Deleted {
		n += v
	}
	return n
}
