package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
)

var (
	putArtifactCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srctrace",
			Subsystem: "datastore",
			Name:      "putartifact_total",
			Help:      "Total number of database queries issued in the PutArtifact method.",
		},
		[]string{"outcome"},
	)

	putArtifactDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "srctrace",
			Subsystem: "datastore",
			Name:      "putartifact_duration_seconds",
			Help:      "The duration of all queries issued in the PutArtifact method.",
		},
		[]string{"outcome"},
	)
)

// PutArtifact implements datastore.ArtifactStore.
//
// The insert is the atomic commit point of ingestion: an artifact row
// is either absent or carries its full file listing. Re-puts of a known
// checksum only refresh last_imported.
func (s *Store) PutArtifact(ctx context.Context, chksum srctrace.Digest, files []srctrace.FileEntry) error {
	// The xmax system column is 0 only on freshly inserted tuples,
	// which distinguishes a first put from an idempotent re-put.
	const query = `
	INSERT INTO artifacts (chksum, files)
	VALUES ($1, $2)
	ON CONFLICT (chksum) DO UPDATE SET
	last_imported = now()
	RETURNING (xmax = 0) AS inserted;
	`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/PutArtifact")
	if chksum.Algorithm() != srctrace.SHA256 {
		return &srctrace.Error{
			Kind:    srctrace.ErrInvalid,
			Message: fmt.Sprintf("artifact checksum must be canonical sha256, got %q", chksum.Algorithm()),
		}
	}
	b, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to encode file listing: %w", err)
	}

	start := time.Now()
	var inserted bool
	if err := s.pool.QueryRow(ctx, query, chksum.String(), b).Scan(&inserted); err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	outcome := "insert"
	if !inserted {
		outcome = "noop"
	}
	putArtifactCounter.WithLabelValues(outcome).Add(1)
	putArtifactDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	zlog.Debug(ctx).
		Str("chksum", chksum.String()).
		Int("files", len(files)).
		Msg("artifact stored")
	return nil
}

// GetArtifact implements datastore.ArtifactStore.
func (s *Store) GetArtifact(ctx context.Context, chksum srctrace.Digest) (*srctrace.Artifact, error) {
	const query = `
	SELECT chksum, first_seen, last_imported, files
	FROM artifacts
	WHERE chksum = $1;
	`
	return s.getArtifact(ctx, query, chksum)
}

// ResolveArtifact implements datastore.ArtifactStore.
//
// At most one hop: the schema forbids chains, so a JOIN per table
// covers every reachable equivalence. A checksum can carry its own
// artifact row alongside an outgoing alias after a structural merge;
// the legs are ordered so the redirect wins and every name resolves
// to the canonical row.
func (s *Store) ResolveArtifact(ctx context.Context, chksum srctrace.Digest) (*srctrace.Artifact, error) {
	const query = `
	SELECT a.chksum, a.first_seen, a.last_imported, a.files
	FROM (
		SELECT a.chksum, a.first_seen, a.last_imported, a.files, 0 AS leg
		FROM artifacts a
		JOIN aliases x ON x.alias_to = a.chksum
		WHERE x.alias_from = $1
		UNION ALL
		SELECT a.chksum, a.first_seen, a.last_imported, a.files, 1 AS leg
		FROM artifacts a
		JOIN checksums c ON c.canonical = a.chksum
		WHERE c.chksum = $1
		UNION ALL
		SELECT a.chksum, a.first_seen, a.last_imported, a.files, 2 AS leg
		FROM artifacts a
		WHERE a.chksum = $1
	) a
	ORDER BY a.leg
	LIMIT 1;
	`
	return s.getArtifact(ctx, query, chksum)
}

func (s *Store) getArtifact(ctx context.Context, query string, chksum srctrace.Digest) (*srctrace.Artifact, error) {
	var (
		a   srctrace.Artifact
		cs  string
		doc []byte
	)
	err := s.pool.QueryRow(ctx, query, chksum.String()).
		Scan(&cs, &a.FirstSeen, &a.LastImported, &doc)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: fmt.Sprintf("no artifact for %v", chksum),
		}
	default:
		return nil, fmt.Errorf("failed to query artifact: %w", err)
	}
	if a.Chksum, err = srctrace.ParseDigest(cs); err != nil {
		return nil, fmt.Errorf("malformed checksum in database: %w", err)
	}
	if err := json.Unmarshal(doc, &a.Files); err != nil {
		return nil, fmt.Errorf("malformed file listing in database: %w", err)
	}
	return &a, nil
}

// ArtifactsByAge implements datastore.ArtifactStore.
func (s *Store) ArtifactsByAge(ctx context.Context, fn func(*srctrace.Artifact) error) error {
	const query = `
	SELECT chksum, first_seen, last_imported, files
	FROM artifacts
	ORDER BY last_imported ASC;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a   srctrace.Artifact
			cs  string
			doc []byte
		)
		if err := rows.Scan(&cs, &a.FirstSeen, &a.LastImported, &doc); err != nil {
			return err
		}
		if a.Chksum, err = srctrace.ParseDigest(cs); err != nil {
			return fmt.Errorf("malformed checksum in database: %w", err)
		}
		if err := json.Unmarshal(doc, &a.Files); err != nil {
			return fmt.Errorf("malformed file listing in database: %w", err)
		}
		if err := fn(&a); err != nil {
			return err
		}
	}
	return rows.Err()
}
