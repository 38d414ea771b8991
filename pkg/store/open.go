package store

import (
	"context"
	"fmt"

	"github.com/mcclellann/lendbook/pkg/config"
)

// Open connects the Storage selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Storage, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.Path)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
