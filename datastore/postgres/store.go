// Package postgres implements the datastore interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/quay/zlog"
	"github.com/remind101/migrate"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/datastore"
	"github.com/srctrace/srctrace/datastore/postgres/migrations"
)

// DefaultRetryLimit is the retry count after which a task is
// dead-lettered.
const DefaultRetryLimit = 5

// Store implements datastore.Store.
type Store struct {
	pool       *pgxpool.Pool
	retryLimit int
}

var _ datastore.Store = (*Store)(nil)

// Option configures the Store constructor.
type Option func(*Store) error

// WithRetryLimit overrides DefaultRetryLimit.
func WithRetryLimit(n int) Option {
	return func(s *Store) error {
		if n < 1 {
			return fmt.Errorf("retry limit must be positive, got %d", n)
		}
		s.retryLimit = n
		return nil
	}
}

// New connects a pool, runs pending migrations and returns the Store.
func New(ctx context.Context, connString string, opts ...Option) (*Store, error) {
	const op = `datastore/postgres/New`
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, &srctrace.Error{
			Op:      op,
			Kind:    srctrace.ErrInvalid,
			Message: "failed to parse connection string",
			Inner:   err,
		}
	}
	const appnameKey = `application_name`
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params[appnameKey]; !ok {
		params[appnameKey] = "srctrace"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &srctrace.Error{
			Op:      op,
			Kind:    srctrace.ErrPrecondition,
			Message: "failed to create connection pool",
			Inner:   err,
		}
	}

	if err := migrateDB(ctx, cfg); err != nil {
		pool.Close()
		return nil, &srctrace.Error{
			Op:      op,
			Kind:    srctrace.ErrPrecondition,
			Message: "failed to run migrations",
			Inner:   err,
		}
	}
	zlog.Debug(ctx).Msg("database migrations done")

	s := &Store{
		pool:       pool,
		retryLimit: DefaultRetryLimit,
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// MigrateDB runs migrations over a stdlib handle; the migration
// machinery predates pgx-native migrations and wants database/sql.
func migrateDB(_ context.Context, cfg *pgxpool.Config) error {
	db := sql.OpenDB(stdlib.GetConnector(*cfg.ConnConfig))
	defer db.Close()
	migrator := migrate.NewPostgresMigrator(db)
	migrator.Table = migrations.MigrationTable
	if err := migrator.Exec(migrate.Up, migrations.Migrations...); err != nil {
		return err
	}
	return nil
}

// Pool exposes the underlying pool for tests and diagnostics.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close implements datastore.Store.
func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

// digestArg renders a possibly-unset digest into its column value.
// Unresolved ref checksums are stored as the empty string.
func digestArg(d srctrace.Digest) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

// scanDigest parses a column value back into a Digest; the empty
// string stays a zero Digest.
func scanDigest(s string) (srctrace.Digest, error) {
	if s == "" {
		return srctrace.Digest{}, nil
	}
	return srctrace.ParseDigest(s)
}
