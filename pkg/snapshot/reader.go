// Package snapshot reads the scraper's per-platform CSV files into ingestion rows.
package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/canopy-network/socialx/pkg/db/models/social"
)

const usernameColumn = "Username"

// Read parses a snapshot of the given platform. Columns are matched by header name,
// case-insensitively, so their order does not matter. Blank rows are skipped. Empty cells are
// absent values; a cell that is present but not a number is a *social.ValidationError.
func Read(r io.Reader, c social.Catalog) ([]social.RawMetricRow, error) {
	header, records, err := readAll(r)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(h)] = i
	}
	col := func(name string) (int, bool) {
		i, ok := index[strings.ToLower(name)]
		return i, ok
	}

	userIdx, ok := col(usernameColumn)
	if !ok {
		return nil, &social.ValidationError{Row: -1, Field: usernameColumn, Reason: "missing column"}
	}
	for _, a := range c.Attributes {
		if _, ok := col(a.Column); !ok && !a.Optional {
			return nil, &social.ValidationError{Row: -1, Field: a.Column, Reason: "missing column"}
		}
	}
	for _, m := range c.Metrics {
		if _, ok := col(m.Column); !ok {
			return nil, &social.ValidationError{Row: -1, Field: m.Column, Reason: "missing column"}
		}
	}

	cell := func(rec []string, i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	rows := make([]social.RawMetricRow, 0, len(records))
	for n, rec := range records {
		row := social.RawMetricRow{
			Username:   cell(rec, userIdx),
			Attributes: make(map[string]*string, len(c.Attributes)),
			Metrics:    make(map[social.Metric]*float64, len(c.Metrics)),
		}
		for _, a := range c.Attributes {
			i, ok := col(a.Column)
			if !ok {
				continue
			}
			if v := cell(rec, i); v != "" {
				row.Attributes[a.Name] = &v
			}
		}
		for _, m := range c.Metrics {
			i, _ := col(m.Column)
			v, err := ParseNumber(cell(rec, i))
			if err != nil {
				return nil, &social.ValidationError{Row: n, Field: m.Column, Reason: err.Error()}
			}
			row.Metrics[m.Metric] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile is Read on a file path.
func ReadFile(path string, c social.Catalog) ([]social.RawMetricRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Read(f, c)
}

// ReadRecords returns the snapshot as header-keyed records with the raw cell text, the shape
// served by the influencers listing.
func ReadRecords(r io.Reader) ([]map[string]string, error) {
	header, records, err := readAll(r)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		m := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				m[h] = strings.TrimSpace(rec[i])
			} else {
				m[h] = ""
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// ReadRecordsFile is ReadRecords on a file path.
func ReadRecordsFile(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadRecords(f)
}

func readAll(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, &social.ValidationError{Row: -1, Field: "header", Reason: "empty snapshot"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read snapshot: %w", err)
		}
		if blank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return header, records, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
