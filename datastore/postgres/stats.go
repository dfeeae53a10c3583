package postgres

import (
	"context"
	"fmt"

	"github.com/srctrace/srctrace"
)

// VendorRefCounts implements datastore.StatsQuerier.
func (s *Store) VendorRefCounts(ctx context.Context) (map[string]int64, error) {
	const query = `
	SELECT vendor, count(*)
	FROM refs
	GROUP BY vendor
	ORDER BY vendor;
	`
	return s.tally(ctx, query)
}

// StrainCounts implements datastore.StatsQuerier.
func (s *Store) StrainCounts(ctx context.Context) (map[string]int64, error) {
	const query = `
	SELECT strain, count(*)
	FROM sboms
	GROUP BY strain
	ORDER BY strain;
	`
	return s.tally(ctx, query)
}

// PendingTaskCounts implements datastore.StatsQuerier.
//
// Tasks group by the prefix of their key, the segment before the first
// colon, which mirrors the task kind.
func (s *Store) PendingTaskCounts(ctx context.Context) (map[string]int64, error) {
	const query = `
	SELECT split_part(key, ':', 1), count(*)
	FROM tasks
	WHERE retries < $1
	GROUP BY 1
	ORDER BY 1;
	`
	return s.tally(ctx, query, s.retryLimit)
}

// AliasReasonCounts implements datastore.StatsQuerier.
//
// Alias edges and checksum spellings tally together; both record why
// an equivalence exists.
func (s *Store) AliasReasonCounts(ctx context.Context) (map[string]int64, error) {
	const query = `
	SELECT COALESCE(reason, ''), count(*)
	FROM (
		SELECT reason FROM aliases
		UNION ALL
		SELECT reason FROM checksums
	) t
	GROUP BY 1
	ORDER BY 1;
	`
	return s.tally(ctx, query)
}

func (s *Store) tally(ctx context.Context, query string, args ...any) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tallies: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			k string
			n int64
		)
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

// ArchiveStats implements datastore.StatsQuerier.
func (s *Store) ArchiveStats(ctx context.Context) (count, compressed, uncompressed int64, err error) {
	const query = `
	SELECT count(*), COALESCE(sum(compressed_size), 0), COALESCE(sum(uncompressed_size), 0)
	FROM bucket;
	`
	err = s.pool.QueryRow(ctx, query).Scan(&count, &compressed, &uncompressed)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to query archive stats: %w", err)
	}
	return count, compressed, uncompressed, nil
}

// DanglingArtifacts implements datastore.StatsQuerier.
//
// An artifact dangles when no ref names its checksum, nor any alias or
// spelling redirecting to it.
func (s *Store) DanglingArtifacts(ctx context.Context) ([]srctrace.Digest, error) {
	const query = `
	SELECT a.chksum
	FROM artifacts a
	WHERE NOT EXISTS (
		SELECT 1 FROM refs r WHERE r.chksum = a.chksum
	)
	AND NOT EXISTS (
		SELECT 1 FROM refs r
		JOIN aliases x ON x.alias_from = r.chksum
		WHERE x.alias_to = a.chksum
	)
	AND NOT EXISTS (
		SELECT 1 FROM refs r
		JOIN checksums c ON c.chksum = r.chksum
		WHERE c.canonical = a.chksum
	)
	ORDER BY a.chksum;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dangling artifacts: %w", err)
	}
	defer rows.Close()
	var out []srctrace.Digest
	for rows.Next() {
		var cs string
		if err := rows.Scan(&cs); err != nil {
			return nil, err
		}
		d, err := srctrace.ParseDigest(cs)
		if err != nil {
			return nil, fmt.Errorf("malformed checksum in database: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
