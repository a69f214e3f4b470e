package social

import (
	"context"
	"fmt"
	"strings"

	models "github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/format"
	"github.com/jackc/pgx/v5"
)

// GetLeaderboard returns one page of accounts with each metric's value today and 7, 14 and 28
// days ago. An anchor only matches observations recorded exactly on that UTC date; the newest
// non-null one of the day is used. A page past the end is empty, not an error.
func (db *DB) GetLeaderboard(ctx context.Context, q models.LeaderboardQuery) (*models.LeaderboardPage, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	key := db.Catalog.ResolveSortKey(q.Sort)
	order := models.ResolveOrder(q.Order, key)

	// Count and page travel in one batch inside a read-only REPEATABLE READ transaction, so both
	// statements read the same snapshot even while an ingestion commits.
	batch := &pgx.Batch{}
	batch.Queue(fmt.Sprintf(`SELECT count(*) FROM %s`, ident(db.Catalog.AccountTable)))
	batch.Queue(db.leaderboardSQL(key, order), q.PerPage, q.Offset())

	var (
		total int64
		data  []models.LeaderboardRow
	)
	txOpts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err = pgx.BeginTxFunc(ctx, db.Pool, txOpts, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		if err := br.QueryRow().Scan(&total); err != nil {
			return models.NewStorageError("count accounts", err)
		}
		rows, err := br.Query()
		if err != nil {
			return models.NewStorageError("query leaderboard", err)
		}
		data, err = db.scanLeaderboard(rows, q.PerPage)
		return err
	})
	if err != nil {
		return nil, models.NewStorageError("get leaderboard", err)
	}

	return &models.LeaderboardPage{
		Platform:   db.Catalog.Platform,
		Data:       data,
		Pagination: models.NewPagination(q.Page, q.PerPage, total),
		Sort:       key.Key(),
		Order:      order,
	}, nil
}

func (db *DB) scanLeaderboard(rows pgx.Rows, perPage int) ([]models.LeaderboardRow, error) {
	defer rows.Close()

	nAttrs := len(db.Catalog.Attributes)
	nValues := len(db.Catalog.Metrics) * len(models.Anchors)
	data := make([]models.LeaderboardRow, 0, perPage)
	for rows.Next() {
		var (
			id       int64
			username string
		)
		attrs := make([]*string, nAttrs)
		values := make([]*float64, nValues)
		dest := make([]any, 0, 2+nAttrs+nValues)
		dest = append(dest, &id, &username)
		for i := range attrs {
			dest = append(dest, &attrs[i])
		}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, models.NewStorageError("scan leaderboard", err)
		}
		data = append(data, db.leaderboardRow(id, username, attrs, values))
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("read leaderboard", err)
	}
	return data, nil
}

func (db *DB) leaderboardRow(id int64, username string, attrs []*string, values []*float64) models.LeaderboardRow {
	row := models.LeaderboardRow{
		ID:         id,
		Username:   username,
		Attributes: make([]models.Field, len(attrs)),
		Values:     make([]models.Field, 0, len(values)),
	}
	for i, a := range db.Catalog.Attributes {
		row.Attributes[i] = models.Field{Name: a.Name, Value: attrs[i]}
	}
	i := 0
	for _, def := range db.Catalog.Metrics {
		for _, anchor := range models.Anchors {
			k := models.SortKey{Metric: def, Anchor: anchor}
			var display *string
			if def.Position {
				display = format.Position(values[i])
			} else {
				display = format.AbbreviatePtr(values[i])
			}
			row.Values = append(row.Values, models.Field{Name: k.Column(), Value: display})
			i++
		}
	}
	return row
}

// anchorColumn names the per-anchor column inside a metric CTE.
func anchorColumn(a models.Anchor) string {
	return fmt.Sprintf("d%d", a.Days)
}

func metricCTE(def models.MetricDef) string {
	return "m_" + string(def.Metric)
}

// leaderboardSQL builds the page query. One CTE per metric picks, per account and anchor, the
// newest non-null observation of that exact date. Every identifier and the ORDER BY column come
// from the catalog; $1 is the limit and $2 the offset.
func (db *DB) leaderboardSQL(key models.SortKey, order models.SortOrder) string {
	oldest := models.Anchors[len(models.Anchors)-1].Days

	ctes := make([]string, 0, len(db.Catalog.Metrics))
	selects := []string{"a.id", "a.username"}
	joins := make([]string, 0, len(db.Catalog.Metrics))
	for _, a := range db.Catalog.Attributes {
		selects = append(selects, "a."+ident(a.Name))
	}

	for _, def := range db.Catalog.Metrics {
		cte := metricCTE(def)
		aggs := make([]string, 0, len(models.Anchors))
		for _, anchor := range models.Anchors {
			aggs = append(aggs, fmt.Sprintf(
				"(array_agg(value ORDER BY recorded_at DESC, id DESC) FILTER (WHERE value IS NOT NULL AND recorded_at::date = CURRENT_DATE - %d))[1] AS %s",
				anchor.Days, anchorColumn(anchor)))
			selects = append(selects, fmt.Sprintf("%s.%s", cte, anchorColumn(anchor)))
		}
		ctes = append(ctes, fmt.Sprintf(`%s AS (
			SELECT account_id,
				%s
			FROM %s
			WHERE recorded_at >= CURRENT_DATE - %d
			GROUP BY account_id
		)`, cte, strings.Join(aggs, ",\n\t\t\t\t"), ident(db.Catalog.HistoryTable(def.Metric)), oldest))
		joins = append(joins, fmt.Sprintf("LEFT JOIN %[1]s ON %[1]s.account_id = a.id", cte))
	}

	direction := "DESC"
	if order == models.SortOrderAsc {
		direction = "ASC"
	}

	return fmt.Sprintf(`
		WITH %s
		SELECT %s
		FROM %s a
		%s
		ORDER BY %s.%s %s NULLS LAST, a.username ASC
		LIMIT $1 OFFSET $2
	`,
		strings.Join(ctes, ",\n\t\t"),
		strings.Join(selects, ", "),
		ident(db.Catalog.AccountTable),
		strings.Join(joins, "\n\t\t"),
		metricCTE(key.Metric), anchorColumn(key.Anchor), direction)
}
