package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	models "github.com/canopy-network/socialx/pkg/db/models/social"
	"go.uber.org/zap"
)

// EnsureSchema creates the account table and one history table per metric when they are
// absent. It is safe to call on every startup.
func (db *DB) EnsureSchema(ctx context.Context) error {
	start := time.Now()

	if err := db.Exec(ctx, db.accountDDL()); err != nil {
		return models.NewStorageError("ensure schema "+db.Catalog.AccountTable, err)
	}

	// History tables only depend on the account table, so they go in parallel.
	metrics := db.Catalog.Metrics
	errs := make([]error, len(metrics))
	pool := pond.NewPool(len(metrics))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, def := range metrics {
		group.Submit(func() {
			table := db.Catalog.HistoryTable(def.Metric)
			db.Logger.Debug("Initializing table", zap.String("table", table))
			if err := db.Exec(groupCtx, historyDDL(db.Catalog.AccountTable, table)); err != nil {
				errs[i] = fmt.Errorf("init %s: %w", table, err)
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return models.NewStorageError("ensure schema", err)
	}
	if err := errors.Join(errs...); err != nil {
		return models.NewStorageError("ensure schema", err)
	}

	db.Logger.Info("Schema ensured",
		zap.String("account_table", db.Catalog.AccountTable),
		zap.Int("history_tables", len(metrics)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (db *DB) accountDDL() string {
	table := ident(db.Catalog.AccountTable)
	var cols, alters strings.Builder
	for _, a := range db.Catalog.Attributes {
		fmt.Fprintf(&cols, "\t\t\t%s TEXT,\n", ident(a.Name))
		// tables created before an attribute was added
		fmt.Fprintf(&alters, "\t\tALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT;\n", table, ident(a.Name))
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
%[2]s			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
%[3]s`, table, cols.String(), alters.String())
}

func historyDDL(accountTable, table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
			value DOUBLE PRECISION,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s(account_id, recorded_at);
		CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s(recorded_at);
	`, ident(table), ident(accountTable), ident("idx_"+table+"_account_recorded"), ident("idx_"+table+"_recorded"))
}

// EnsureAll runs EnsureSchema on every store, stopping at the first failure.
func EnsureAll(ctx context.Context, stores ...*DB) error {
	for _, s := range stores {
		if err := s.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure %s schema: %w", s.Platform(), err)
		}
	}
	return nil
}
