package social

import (
	"context"
	"fmt"

	models "github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DB is the store of one platform. Several DBs share one postgres.Client; the owner of the client
// closes the pool.
type DB struct {
	*postgres.Client
	Catalog models.Catalog
	Logger  *zap.Logger
}

// New binds a platform catalog to an open client.
func New(client *postgres.Client, logger *zap.Logger, platform models.Platform) (*DB, error) {
	catalog, ok := models.Lookup(string(platform))
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
	return &DB{
		Client:  client,
		Catalog: catalog,
		Logger:  logger.With(zap.String("platform", string(platform))),
	}, nil
}

// Platform returns the platform this store serves.
func (db *DB) Platform() models.Platform {
	return db.Catalog.Platform
}

// Ping checks the shared pool.
func (db *DB) Ping(ctx context.Context) error {
	return db.Client.Ping(ctx)
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
