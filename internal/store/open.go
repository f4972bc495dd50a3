package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/config"
)

// Open creates the backend selected by cfg.Driver. The returned store is not
// initialized yet.
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Driver {
	case config.DriverMemory:
		s = NewMemory()
	case config.DriverFile, "":
		s = NewFile(cfg.Path)
	case config.DriverRedis:
		s = NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	case config.DriverPostgres:
		s, err = NewPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
	case config.DriverS3:
		s, err = NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Str("driver", cfg.Driver).Msg("Store opened")
	return s, nil
}
