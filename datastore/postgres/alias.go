package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/chksum"
)

var (
	mergeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srctrace",
			Subsystem: "datastore",
			Name:      "merge_total",
			Help:      "Total number of alias merge attempts.",
		},
		[]string{"outcome"},
	)

	mergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "srctrace",
			Subsystem: "datastore",
			Name:      "merge_duration_seconds",
			Help:      "The duration of alias merge transactions.",
		},
		[]string{"outcome"},
	)
)

// uniqueViolation is the postgres error code raised on constraint
// collisions; the insert races below rely on it.
const uniqueViolation = "23505"

// Merge implements datastore.AliasStore.
//
// The checks run inside one transaction so that concurrent merges
// cannot observe a half-installed edge. Every rejection is a
// srctrace.ErrConflict and leaves the alias table untouched.
func (s *Store) Merge(ctx context.Context, from, to srctrace.Digest, reason string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Merge")
	if from.IsZero() || to.IsZero() {
		return &srctrace.Error{
			Kind:    srctrace.ErrInvalid,
			Message: "merge needs both checksums",
		}
	}
	if from.Equal(to) {
		return &srctrace.Error{
			Kind:    srctrace.ErrInvalid,
			Message: "refusing self-alias " + from.String(),
		}
	}

	start := time.Now()
	outcome := "conflict"
	defer func() {
		mergeCounter.WithLabelValues(outcome).Add(1)
		mergeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.checkMerge(ctx, tx, from, to); err != nil {
		var domain *srctrace.Error
		if errors.As(err, &domain) && domain.Kind == srctrace.ErrConflict {
			outcome = "conflict"
		} else {
			outcome = "error"
		}
		return err
	}

	const insert = `
	INSERT INTO aliases (alias_from, alias_to, reason)
	VALUES ($1, $2, $3)
	ON CONFLICT (alias_from) DO UPDATE SET
	reason = excluded.reason
	WHERE aliases.alias_to = excluded.alias_to;
	`
	tag, err := tx.Exec(ctx, insert, from.String(), to.String(), reason)
	switch {
	case err == nil && tag.RowsAffected() == 0:
		// The DO UPDATE predicate rejected a retarget that raced past
		// checkMerge.
		return &srctrace.Error{
			Kind:    srctrace.ErrConflict,
			Message: fmt.Sprintf("%v is already aliased elsewhere", from),
		}
	case isUniqueViolation(err):
		// alias_to UNIQUE: a second incoming edge on the target.
		return &srctrace.Error{
			Kind:    srctrace.ErrConflict,
			Message: fmt.Sprintf("%v already has an incoming alias", to),
			Inner:   err,
		}
	case err != nil:
		outcome = "error"
		return fmt.Errorf("failed to insert alias: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		outcome = "error"
		return fmt.Errorf("failed to commit alias: %w", err)
	}
	outcome = "merged"
	zlog.Debug(ctx).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", reason).
		Msg("alias merged")
	return nil
}

// checkMerge enforces the forest shape and the structural-equality
// requirement before the edge is written.
func (s *Store) checkMerge(ctx context.Context, tx pgx.Tx, from, to srctrace.Digest) error {
	const probe = `
	SELECT
		EXISTS (SELECT 1 FROM artifacts WHERE chksum = $2),
		EXISTS (SELECT 1 FROM aliases WHERE alias_from = $2),
		(SELECT alias_to FROM aliases WHERE alias_from = $1),
		EXISTS (SELECT 1 FROM aliases WHERE alias_to = $2 AND alias_from <> $1),
		(SELECT a1.files = a2.files
		 FROM artifacts a1, artifacts a2
		 WHERE a1.chksum = $1 AND a2.chksum = $2);
	`
	var (
		toExists      bool
		toIsAlias     bool
		prevTarget    *string
		otherIncoming bool
		sameListing   *bool
	)
	err := tx.QueryRow(ctx, probe, from.String(), to.String()).
		Scan(&toExists, &toIsAlias, &prevTarget, &otherIncoming, &sameListing)
	if err != nil {
		return fmt.Errorf("failed to probe alias graph: %w", err)
	}
	switch {
	case !toExists:
		return &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: fmt.Sprintf("merge target %v has no stored artifact", to),
		}
	case toIsAlias:
		return &srctrace.Error{
			Kind:    srctrace.ErrConflict,
			Message: fmt.Sprintf("merge target %v is itself an alias", to),
		}
	case prevTarget != nil && *prevTarget != to.String():
		return &srctrace.Error{
			Kind:    srctrace.ErrConflict,
			Message: fmt.Sprintf("%v is already aliased to %s", from, *prevTarget),
		}
	case otherIncoming:
		return &srctrace.Error{
			Kind:    srctrace.ErrConflict,
			Message: fmt.Sprintf("%v already has an incoming alias", to),
		}
	case sameListing != nil && !*sameListing:
		return &srctrace.Error{
			Kind:    srctrace.ErrConflict,
			Message: fmt.Sprintf("%v and %v store divergent file listings", from, to),
		}
	}
	return nil
}

// GetAlias implements datastore.AliasStore.
func (s *Store) GetAlias(ctx context.Context, from srctrace.Digest) (*srctrace.Alias, error) {
	const query = `
	SELECT alias_from, alias_to, COALESCE(reason, '')
	FROM aliases
	WHERE alias_from = $1;
	`
	var (
		a      srctrace.Alias
		fs, ts string
	)
	err := s.pool.QueryRow(ctx, query, from.String()).Scan(&fs, &ts, &a.Reason)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: fmt.Sprintf("no alias for %v", from),
		}
	default:
		return nil, fmt.Errorf("failed to query alias: %w", err)
	}
	if a.From, err = srctrace.ParseDigest(fs); err != nil {
		return nil, fmt.Errorf("malformed checksum in database: %w", err)
	}
	if a.To, err = srctrace.ParseDigest(ts); err != nil {
		return nil, fmt.Errorf("malformed checksum in database: %w", err)
	}
	return &a, nil
}

// RegisterChecksums implements datastore.AliasStore.
//
// One hashed stream yields up to three spellings: its sha512 and
// blake2b digests always, and its sha256 digest when the stream is not
// the canonical one (an outer compression layer). Spellings live in
// their own table, outside the alias forest, so registering several
// digests of one artifact never trips the single-target constraint.
// Rows that already exist are refreshed, so re-ingesting is safe.
func (s *Store) RegisterChecksums(ctx context.Context, cs chksum.Checksums, canonical srctrace.Digest, label string) error {
	// The DO UPDATE predicate refuses to retarget a spelling that
	// already names a different canonical checksum.
	const upsert = `
	INSERT INTO checksums (chksum, canonical, reason)
	VALUES ($1, $2, $3)
	ON CONFLICT (chksum) DO UPDATE SET
	reason = excluded.reason
	WHERE checksums.canonical = excluded.canonical;
	`
	type spelling struct {
		from   srctrace.Digest
		reason string
	}
	spellings := []spelling{
		{cs.SHA512, "sha512(" + label + ")"},
		{cs.BLAKE2b, "blake2b(" + label + ")"},
	}
	if !cs.SHA256.Equal(canonical) {
		spellings = append(spellings, spelling{cs.SHA256, label})
	}
	for _, sp := range spellings {
		if sp.from.IsZero() || sp.from.Equal(canonical) {
			continue
		}
		tag, err := s.pool.Exec(ctx, upsert, sp.from.String(), canonical.String(), sp.reason)
		switch {
		case err != nil:
			return fmt.Errorf("failed to register %s checksum: %w", sp.reason, err)
		case tag.RowsAffected() == 0:
			return &srctrace.Error{
				Kind:    srctrace.ErrConflict,
				Message: fmt.Sprintf("%v already spells a different artifact", sp.from),
			}
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
