package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/microbatch"
)

var (
	upsertRefsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srctrace",
			Subsystem: "datastore",
			Name:      "upsertrefs_total",
			Help:      "Total number of database queries issued in the UpsertRefs method.",
		},
		[]string{"query"},
	)

	upsertRefsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "srctrace",
			Subsystem: "datastore",
			Name:      "upsertrefs_duration_seconds",
			Help:      "The duration of all queries issued in the UpsertRefs method.",
		},
		[]string{"query"},
	)
)

// upsertRef is shared by the single and batched paths. A re-observed
// row refreshes last_seen and fills in columns that were unknown when
// the row was first written.
const upsertRef = `
INSERT INTO refs (chksum, vendor, package, version, filename, protocol, host)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (chksum, vendor, package, version) DO UPDATE SET
	last_seen = now(),
	filename = COALESCE(refs.filename, excluded.filename),
	protocol = COALESCE(refs.protocol, excluded.protocol),
	host = COALESCE(refs.host, excluded.host);
`

// UpsertRef implements datastore.RefStore.
func (s *Store) UpsertRef(ctx context.Context, ref *srctrace.Ref) error {
	_, err := s.pool.Exec(ctx, upsertRef,
		digestArg(ref.Chksum), ref.Vendor, ref.Package, ref.Version,
		nullStr(ref.Filename), nullStr(ref.Protocol), nullStr(ref.Host))
	if err != nil {
		return fmt.Errorf("failed to upsert ref: %w", err)
	}
	return nil
}

// UpsertRefs implements datastore.RefStore.
//
// The whole batch lands in one transaction: a sync run either
// contributes all of its refs or none of them.
func (s *Store) UpsertRefs(ctx context.Context, refs []*srctrace.Ref) error {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/UpsertRefs")
	if len(refs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	mBatcher := microbatch.NewInsert(tx, 500, time.Minute)
	for _, ref := range refs {
		err := mBatcher.Queue(ctx, upsertRef,
			digestArg(ref.Chksum), ref.Vendor, ref.Package, ref.Version,
			nullStr(ref.Filename), nullStr(ref.Protocol), nullStr(ref.Host))
		if err != nil {
			return fmt.Errorf("batch insert failed for ref %s/%s: %w", ref.Vendor, ref.Package, err)
		}
	}
	if err := mBatcher.Done(ctx); err != nil {
		return fmt.Errorf("final batch insert failed: %w", err)
	}
	upsertRefsCounter.WithLabelValues("upsertref_batch").Add(1)
	upsertRefsDuration.WithLabelValues("upsertref_batch").Observe(time.Since(start).Seconds())

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	zlog.Debug(ctx).Int("refs", len(refs)).Msg("refs upserted")
	return nil
}

// ResolveRef implements datastore.RefStore.
//
// Unresolved rows for the identity are folded into one resolved row.
// Their filename survives the fold when the caller has none.
func (s *Store) ResolveRef(ctx context.Context, dl srctrace.DownloadRef, filename string, chksum srctrace.Digest) error {
	const fold = `
	DELETE FROM refs
	WHERE chksum = '' AND vendor = $1 AND package = $2 AND version = $3
	RETURNING filename, protocol, host, first_seen;
	`
	const insert = `
	INSERT INTO refs (chksum, vendor, package, version, filename, protocol, host, first_seen)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	ON CONFLICT (chksum, vendor, package, version) DO UPDATE SET
		last_seen = now(),
		filename = COALESCE(refs.filename, excluded.filename),
		protocol = COALESCE(refs.protocol, excluded.protocol),
		host = COALESCE(refs.host, excluded.host);
	`
	if chksum.IsZero() {
		return &srctrace.Error{
			Kind:    srctrace.ErrInvalid,
			Message: "resolving a ref needs a checksum",
		}
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		prevFilename, prevProtocol, prevHost sql.NullString
		prevFirstSeen                        *time.Time
	)
	rows, err := tx.Query(ctx, fold, dl.Vendor, dl.Package, dl.Version)
	if err != nil {
		return fmt.Errorf("failed to fold unresolved refs: %w", err)
	}
	for rows.Next() {
		var (
			f, p, h sql.NullString
			fs      time.Time
		)
		if err := rows.Scan(&f, &p, &h, &fs); err != nil {
			rows.Close()
			return err
		}
		if !prevFilename.Valid {
			prevFilename = f
		}
		if !prevProtocol.Valid {
			prevProtocol = p
		}
		if !prevHost.Valid {
			prevHost = h
		}
		if prevFirstSeen == nil || fs.Before(*prevFirstSeen) {
			t := fs
			prevFirstSeen = &t
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to fold unresolved refs: %w", err)
	}

	if filename != "" {
		prevFilename = sql.NullString{String: filename, Valid: true}
	}
	_, err = tx.Exec(ctx, insert,
		chksum.String(), dl.Vendor, dl.Package, dl.Version,
		prevFilename, prevProtocol, prevHost, prevFirstSeen)
	if err != nil {
		return fmt.Errorf("failed to insert resolved ref: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const refColumns = `chksum, vendor, package, version,
COALESCE(filename, ''), COALESCE(protocol, ''), COALESCE(host, ''),
first_seen, last_seen`

// GetRef implements datastore.RefStore.
func (s *Store) GetRef(ctx context.Context, chksum srctrace.Digest, vendor, pkg, version string) (*srctrace.Ref, error) {
	query := `
	SELECT ` + refColumns + `
	FROM refs
	WHERE chksum = $1 AND vendor = $2 AND package = $3 AND version = $4;
	`
	r, err := scanRef(s.pool.QueryRow(ctx, query, digestArg(chksum), vendor, pkg, version))
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: fmt.Sprintf("no ref for %s/%s %s", vendor, pkg, version),
		}
	default:
		return nil, fmt.Errorf("failed to query ref: %w", err)
	}
	return r, nil
}

// GetNamedRef implements datastore.RefStore.
func (s *Store) GetNamedRef(ctx context.Context, vendor, pkg, version string) (*srctrace.Ref, error) {
	query := `
	SELECT ` + refColumns + `
	FROM refs
	WHERE vendor = $1 AND package = $2 AND version = $3
	ORDER BY id DESC
	LIMIT 1;
	`
	r, err := scanRef(s.pool.QueryRow(ctx, query, vendor, pkg, version))
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: fmt.Sprintf("no ref for %s/%s %s", vendor, pkg, version),
		}
	default:
		return nil, fmt.Errorf("failed to query ref: %w", err)
	}
	return r, nil
}

// BumpNamedRefs implements datastore.RefStore.
func (s *Store) BumpNamedRefs(ctx context.Context, vendor, pkg, version string) error {
	const query = `
	UPDATE refs SET last_seen = now()
	WHERE vendor = $1 AND package = $2 AND version = $3;
	`
	if _, err := s.pool.Exec(ctx, query, vendor, pkg, version); err != nil {
		return fmt.Errorf("failed to bump refs: %w", err)
	}
	return nil
}

// RefsByChksum implements datastore.RefStore.
//
// The argument is first normalized to its canonical checksum, then
// every name of that canonical is gathered, so the caller can pass
// the canonical itself, an alias source or any registered spelling.
func (s *Store) RefsByChksum(ctx context.Context, chksum srctrace.Digest) ([]srctrace.Ref, error) {
	query := `
	WITH canon AS (
		SELECT COALESCE(
			(SELECT alias_to FROM aliases WHERE alias_from = $1),
			(SELECT canonical FROM checksums WHERE chksum = $1),
			$1) AS chksum
	)
	SELECT ` + refColumns + `
	FROM refs
	WHERE chksum IN (
		SELECT chksum FROM canon
		UNION
		SELECT alias_from FROM aliases WHERE alias_to = (SELECT chksum FROM canon)
		UNION
		SELECT chksum FROM checksums WHERE canonical = (SELECT chksum FROM canon)
	)
	ORDER BY id DESC;
	`
	rows, err := s.pool.Query(ctx, query, chksum.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query refs: %w", err)
	}
	defer rows.Close()
	var out []srctrace.Ref
	for rows.Next() {
		r, err := scanRef(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRef(row pgx.Row) (*srctrace.Ref, error) {
	var (
		r  srctrace.Ref
		cs string
	)
	err := row.Scan(&cs, &r.Vendor, &r.Package, &r.Version,
		&r.Filename, &r.Protocol, &r.Host, &r.FirstSeen, &r.LastSeen)
	if err != nil {
		return nil, err
	}
	if r.Chksum, err = scanDigest(cs); err != nil {
		return nil, fmt.Errorf("malformed checksum in database: %w", err)
	}
	return &r, nil
}

// nullStr maps the empty string to NULL so COALESCE-based column
// backfills work.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
