package social

import (
	"context"
	"fmt"
	"strings"
	"time"

	models "github.com/canopy-network/socialx/pkg/db/models/social"
)

// GetHistory returns the account with its full retained history bucketed by UTC date, newest
// first. Unknown usernames yield *models.NotFoundError.
func (db *DB) GetHistory(ctx context.Context, username string) (*models.AccountHistory, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &models.NotFoundError{Platform: db.Catalog.Platform, Username: username}
	}

	rows, err := db.Query(ctx, db.historySQL(), username)
	if err != nil {
		return nil, models.NewStorageError("get history", err)
	}
	defer rows.Close()

	var (
		account *models.Account
		obs     []models.Observation
	)
	attrs := make([]*string, len(db.Catalog.Attributes))
	for rows.Next() {
		var (
			id         int64
			name       string
			metric     *string
			value      *float64
			recordedAt *time.Time
		)
		dest := make([]any, 0, 5+len(attrs))
		dest = append(dest, &id, &name)
		for i := range attrs {
			dest = append(dest, &attrs[i])
		}
		dest = append(dest, &metric, &value, &recordedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, models.NewStorageError("scan history", err)
		}

		if account == nil {
			account = &models.Account{ID: id, Username: name, Attributes: make([]models.Field, len(attrs))}
			for i, a := range db.Catalog.Attributes {
				account.Attributes[i] = models.Field{Name: a.Name, Value: attrs[i]}
			}
		}
		// the LEFT JOIN yields one all-NULL observation for an account without history
		if metric == nil || recordedAt == nil {
			continue
		}
		obs = append(obs, models.Observation{Metric: models.Metric(*metric), Value: value, RecordedAt: *recordedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("read history", err)
	}
	if account == nil {
		return nil, &models.NotFoundError{Platform: db.Catalog.Platform, Username: username}
	}

	return models.BuildHistory(db.Catalog, *account, obs), nil
}

// historySQL reads the account and every observation in one statement so the result is a
// single snapshot. Rows arrive oldest first so later readings overwrite earlier ones.
func (db *DB) historySQL() string {
	unions := make([]string, 0, len(db.Catalog.Metrics))
	for _, def := range db.Catalog.Metrics {
		unions = append(unions, fmt.Sprintf(
			"SELECT '%s'::text AS metric, id, account_id, value, recorded_at FROM %s",
			def.Metric, ident(db.Catalog.HistoryTable(def.Metric))))
	}
	cols := make([]string, 0, len(db.Catalog.Attributes))
	for _, a := range db.Catalog.Attributes {
		cols = append(cols, "a."+ident(a.Name))
	}

	return fmt.Sprintf(`
		SELECT a.id, a.username, %s, o.metric, o.value, o.recorded_at
		FROM %s a
		LEFT JOIN (
			%s
		) o ON o.account_id = a.id
		WHERE a.username = $1
		ORDER BY o.recorded_at ASC NULLS FIRST, o.id ASC NULLS FIRST
	`, strings.Join(cols, ", "), ident(db.Catalog.AccountTable), strings.Join(unions, "\n\t\t\tUNION ALL\n\t\t\t"))
}
