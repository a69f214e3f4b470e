package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	models "github.com/canopy-network/socialx/pkg/db/models/social"
	"go.uber.org/zap"
)

// Sweep deletes observations older than horizonDays from every history table. Each table is
// its own statement, so one failing table leaves the others swept; failures are reported in the
// result. The error is non-nil only when no table could be swept.
func (db *DB) Sweep(ctx context.Context, horizonDays int) (*models.SweepResult, error) {
	if horizonDays <= 0 {
		return nil, &models.ValidationError{Row: -1, Field: "horizon_days", Reason: "must be > 0"}
	}

	start := time.Now()
	tables := db.Catalog.HistoryTables()
	result := &models.SweepResult{
		Platform:    db.Catalog.Platform,
		HorizonDays: horizonDays,
		Deleted:     make(map[string]int64, len(tables)),
		Failed:      make(map[string]string),
	}

	var mu sync.Mutex
	pool := pond.NewPool(len(tables))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, table := range tables {
		group.Submit(func() {
			n, err := db.sweepTable(groupCtx, table, horizonDays)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[table] = err.Error()
				db.Logger.Warn("Sweep failed for table",
					zap.String("table", table),
					zap.Error(err))
				return
			}
			result.Deleted[table] = n
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		db.Logger.Warn("Sweep group encountered error", zap.Error(err))
	}

	result.Duration = time.Since(start)
	db.Logger.Info("Sweep finished",
		zap.Int("horizon_days", horizonDays),
		zap.Int64("deleted", result.Total()),
		zap.Int("failed_tables", len(result.Failed)),
		zap.Duration("duration", result.Duration))

	if len(result.Failed) == len(tables) {
		failed := make([]string, 0, len(result.Failed))
		for _, t := range tables {
			failed = append(failed, t+": "+result.Failed[t])
		}
		return result, models.NewStorageError("sweep", errors.New(strings.Join(failed, "; ")))
	}
	return result, nil
}

func (db *DB) sweepTable(ctx context.Context, table string, horizonDays int) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE recorded_at < now() - make_interval(days => $1)`, ident(table))
	tag, err := db.Pool.Exec(ctx, query, horizonDays)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}
