package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Postgres keeps all collections in one table keyed by (collection, key).
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres opens a connection pool for dsn.
func NewPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("store: invalid table name %q", table)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: postgres connect: %w", err)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// Initialize creates the table. Concurrent callers racing on CREATE TABLE
// may see a unique or duplicate-table violation, which is treated as success.
func (p *Postgres) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection text NOT NULL,
	key text NOT NULL,
	value jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, key)
)`, p.table)

	if _, err := p.pool.Exec(ctx, query); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "42P07") {
			return nil
		}
		return fmt.Errorf("store: postgres init: %w", unavailable(err))
	}
	return nil
}

// Get selects one row.
func (p *Postgres) Get(ctx context.Context, c Collection, key string) ([]byte, error) {
	if err := check(c, key); err != nil {
		return nil, err
	}

	var data []byte
	query := fmt.Sprintf(`SELECT value FROM %s WHERE collection = $1 AND key = $2`, p.table)
	err := p.pool.QueryRow(ctx, query, string(c), key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: postgres get %s/%s: %w", c, key, unavailable(err))
	}
	return data, nil
}

// GetAll selects every row of the collection ordered by key.
func (p *Postgres) GetAll(ctx context.Context, c Collection) ([][]byte, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT value FROM %s WHERE collection = $1 ORDER BY key`, p.table)
	rows, err := p.pool.Query(ctx, query, string(c))
	if err != nil {
		return nil, fmt.Errorf("store: postgres list %s: %w", c, unavailable(err))
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]byte, error) {
		var data []byte
		err := row.Scan(&data)
		return data, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: postgres list %s: %w", c, unavailable(err))
	}
	return out, nil
}

// Put upserts one row.
func (p *Postgres) Put(ctx context.Context, c Collection, key string, value []byte) error {
	if err := check(c, key); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (collection, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (collection, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, p.table)

	if _, err := p.pool.Exec(ctx, query, string(c), key, value); err != nil {
		return fmt.Errorf("store: postgres put %s/%s: %w", c, key, unavailable(err))
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
