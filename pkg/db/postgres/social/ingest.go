package social

import (
	"context"
	"fmt"
	"strings"
	"time"

	models "github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Ingest upserts every account of the snapshot and appends one observation per metric per
// account, all in one transaction. The batch is validated up front, so a malformed row fails
// the call before anything is written. If another ingestion of the same platform holds the
// lock the call returns a *models.ScheduleConflictError and writes nothing.
func (db *DB) Ingest(ctx context.Context, rows []models.RawMetricRow) (*models.IngestResult, error) {
	start := time.Now()
	if err := db.Catalog.Validate(rows); err != nil {
		return nil, err
	}

	result := &models.IngestResult{Platform: db.Catalog.Platform}
	if len(rows) == 0 {
		return result, nil
	}

	upsert := db.upsertAccountSQL()
	inserts := make([]string, len(db.Catalog.Metrics))
	for i, def := range db.Catalog.Metrics {
		inserts[i] = db.insertObservationSQL(def.Metric)
	}

	err := db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var locked bool
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, db.Catalog.LockKey).Scan(&locked); err != nil {
			return models.NewStorageError("acquire ingestion lock", err)
		}
		if !locked {
			return &models.ScheduleConflictError{Platform: db.Catalog.Platform}
		}

		batch := &pgx.Batch{}
		for _, row := range rows {
			username := strings.TrimSpace(row.Username)
			args := make([]any, 0, 1+len(db.Catalog.Attributes))
			args = append(args, username)
			for _, a := range db.Catalog.Attributes {
				args = append(args, row.Attr(a.Name))
			}
			batch.Queue(upsert, args...)
			for i, def := range db.Catalog.Metrics {
				batch.Queue(inserts[i], username, row.Value(def.Metric))
			}
		}

		br := tx.SendBatch(ctx, batch)
		if err := db.collectIngestResults(br, rows, result); err != nil {
			_ = br.Close()
			return err
		}
		if err := br.Close(); err != nil {
			return models.NewStorageError("ingest batch", err)
		}
		return nil
	})
	if err != nil {
		return nil, models.NewStorageError("ingest "+string(db.Catalog.Platform), err)
	}

	result.Accounts = len(rows)
	result.Duration = time.Since(start)
	db.Logger.Info("Snapshot ingested",
		zap.Int("accounts", result.Accounts),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("observations", result.Observations),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// collectIngestResults reads the batch back in queue order: per row one upsert, then one insert
// per metric.
func (db *DB) collectIngestResults(br pgx.BatchResults, rows []models.RawMetricRow, result *models.IngestResult) error {
	for i := range rows {
		var (
			id       int64
			inserted bool
		)
		if err := br.QueryRow().Scan(&id, &inserted); err != nil {
			return models.NewStorageError(fmt.Sprintf("upsert row %d", i), err)
		}
		if inserted {
			result.Created++
		} else {
			result.Updated++
		}

		for _, def := range db.Catalog.Metrics {
			tag, err := br.Exec()
			if err != nil {
				return models.NewStorageError(fmt.Sprintf("insert %s row %d", def.Metric, i), err)
			}
			result.Observations += int(tag.RowsAffected())
		}
	}
	return nil
}

// upsertAccountSQL overwrites every attribute on conflict; absent values become NULL.
// (xmax = 0) is true only for rows inserted by this statement.
func (db *DB) upsertAccountSQL() string {
	cols := []string{"username"}
	params := []string{"$1"}
	sets := make([]string, 0, len(db.Catalog.Attributes)+1)
	for i, a := range db.Catalog.Attributes {
		col := ident(a.Name)
		cols = append(cols, col)
		params = append(params, fmt.Sprintf("$%d", i+2))
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, "updated_at = now()")

	return fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (%s)
		ON CONFLICT (username) DO UPDATE SET %s
		RETURNING id, (xmax = 0) AS inserted
	`, ident(db.Catalog.AccountTable), strings.Join(cols, ", "), strings.Join(params, ", "), strings.Join(sets, ", "))
}

// insertObservationSQL resolves the account by username inside the same transaction, so the
// upsert queued just before it in the batch is visible. recorded_at is left to the server.
func (db *DB) insertObservationSQL(m models.Metric) string {
	return fmt.Sprintf(`
		INSERT INTO %s (account_id, value)
		SELECT id, $2::double precision FROM %s WHERE username = $1
	`, ident(db.Catalog.HistoryTable(m)), ident(db.Catalog.AccountTable))
}
