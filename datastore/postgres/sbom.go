package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/srctrace/srctrace"
)

// PutSBOM implements datastore.SBOMStore.
func (s *Store) PutSBOM(ctx context.Context, sbom *srctrace.SBOM) error {
	const query = `
	INSERT INTO sboms (chksum, strain, data)
	VALUES ($1, $2, $3)
	ON CONFLICT (chksum, strain) DO NOTHING;
	`
	if sbom.Chksum.IsZero() || sbom.Strain == "" {
		return &srctrace.Error{
			Kind:    srctrace.ErrInvalid,
			Message: "sbom needs a checksum and a strain",
		}
	}
	if _, err := s.pool.Exec(ctx, query, sbom.Chksum.String(), sbom.Strain, sbom.Data); err != nil {
		return fmt.Errorf("failed to insert sbom: %w", err)
	}
	return nil
}

// GetSBOM implements datastore.SBOMStore.
func (s *Store) GetSBOM(ctx context.Context, chksum srctrace.Digest, strain string) (*srctrace.SBOM, error) {
	const query = `
	SELECT chksum, strain, data
	FROM sboms
	WHERE chksum = $1 AND ($2 = '' OR strain = $2)
	LIMIT 1;
	`
	var (
		doc srctrace.SBOM
		cs  string
	)
	err := s.pool.QueryRow(ctx, query, chksum.String(), strain).
		Scan(&cs, &doc.Strain, &doc.Data)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: fmt.Sprintf("no sbom for %v", chksum),
		}
	default:
		return nil, fmt.Errorf("failed to query sbom: %w", err)
	}
	if doc.Chksum, err = srctrace.ParseDigest(cs); err != nil {
		return nil, fmt.Errorf("malformed checksum in database: %w", err)
	}
	return &doc, nil
}

// PutSBOMRef implements datastore.SBOMStore.
func (s *Store) PutSBOMRef(ctx context.Context, ref *srctrace.SBOMRef) error {
	const query = `
	INSERT INTO sbom_refs (from_archive, sbom_strain, sbom_chksum, path)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (from_archive, path, sbom_chksum) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query,
		ref.FromArchive.String(), ref.Strain, ref.Chksum.String(), ref.Path)
	if err != nil {
		return fmt.Errorf("failed to insert sbom ref: %w", err)
	}
	return nil
}

// SBOMRefsForArchive implements datastore.SBOMStore.
func (s *Store) SBOMRefsForArchive(ctx context.Context, archive srctrace.Digest) ([]srctrace.SBOMRef, error) {
	const query = `
	SELECT from_archive, sbom_strain, sbom_chksum, path
	FROM sbom_refs
	WHERE from_archive = $1
	ORDER BY path;
	`
	return s.querySBOMRefs(ctx, query, archive.String())
}

// SBOMRefsForSBOM implements datastore.SBOMStore.
func (s *Store) SBOMRefsForSBOM(ctx context.Context, strain string, chksum srctrace.Digest) ([]srctrace.SBOMRef, error) {
	const query = `
	SELECT from_archive, sbom_strain, sbom_chksum, path
	FROM sbom_refs
	WHERE sbom_strain = $1 AND sbom_chksum = $2
	ORDER BY from_archive, path;
	`
	return s.querySBOMRefs(ctx, query, strain, chksum.String())
}

func (s *Store) querySBOMRefs(ctx context.Context, query string, args ...any) ([]srctrace.SBOMRef, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sbom refs: %w", err)
	}
	defer rows.Close()
	var out []srctrace.SBOMRef
	for rows.Next() {
		var (
			r        srctrace.SBOMRef
			from, cs string
		)
		if err := rows.Scan(&from, &r.Strain, &cs, &r.Path); err != nil {
			return nil, err
		}
		if r.FromArchive, err = srctrace.ParseDigest(from); err != nil {
			return nil, fmt.Errorf("malformed checksum in database: %w", err)
		}
		if r.Chksum, err = srctrace.ParseDigest(cs); err != nil {
			return nil, fmt.Errorf("malformed checksum in database: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
