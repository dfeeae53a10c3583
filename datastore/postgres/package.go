package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/srctrace/srctrace"
)

// InsertPackage implements datastore.PackageStore.
func (s *Store) InsertPackage(ctx context.Context, pkg *srctrace.Package) error {
	const query = `
	INSERT INTO packages (vendor, package, version)
	VALUES ($1, $2, $3)
	ON CONFLICT (vendor, package, version) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, pkg.Vendor, pkg.Package, pkg.Version); err != nil {
		return fmt.Errorf("failed to insert package: %w", err)
	}
	return nil
}

// GetPackage implements datastore.PackageStore.
func (s *Store) GetPackage(ctx context.Context, vendor, pkg, version string) (*srctrace.Package, error) {
	const query = `
	SELECT vendor, package, version
	FROM packages
	WHERE vendor = $1 AND package = $2 AND version = $3;
	`
	var p srctrace.Package
	err := s.pool.QueryRow(ctx, query, vendor, pkg, version).
		Scan(&p.Vendor, &p.Package, &p.Version)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: fmt.Sprintf("no package for %s/%s %s", vendor, pkg, version),
		}
	default:
		return nil, fmt.Errorf("failed to query package: %w", err)
	}
	return &p, nil
}
