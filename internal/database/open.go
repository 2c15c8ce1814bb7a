package database

import (
	"context"
	"fmt"

	"github.com/nao1215/scanpipe/internal/config"
	"github.com/nao1215/scanpipe/internal/database/postgres"
	"github.com/nao1215/scanpipe/internal/findings"
	"github.com/nao1215/scanpipe/internal/status"
)

// Store is everything the service needs from its database.
type Store interface {
	status.Store
	findings.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*StatusDB)(nil)
	_ Store = (*MemoryDB)(nil)
	_ Store = (*postgres.Store)(nil)
)

// OpenStore opens the store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return Open(cfg.Dir, DefaultOptions())
	case config.DriverPostgres:
		return postgres.Connect(ctx, cfg.URL,
			postgres.WithPassword(cfg.Password),
			postgres.WithMaxConns(cfg.MaxConns),
		)
	case config.DriverMemory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnsupportedDriver, cfg.Driver)
	}
}
