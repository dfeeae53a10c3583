package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"

	"github.com/srctrace/srctrace"
)

// buildSearchQuery creates one leg of the ref search statement,
// newest rows first.
func buildSearchQuery(where goqu.Expression, limit int) (string, error) {
	psql := goqu.Dialect("postgres")
	query := psql.Select(
		"chksum",
		"vendor",
		"package",
		"version",
		goqu.COALESCE(goqu.C("filename"), "").As("filename"),
		goqu.COALESCE(goqu.C("protocol"), "").As("protocol"),
		goqu.COALESCE(goqu.C("host"), "").As("host"),
		"first_seen",
		"last_seen",
	).From("refs").
		Where(where).
		Order(goqu.C("id").Desc()).
		Limit(uint(limit))

	sql, _, err := query.ToSQL()
	if err != nil {
		return "", err
	}
	return sql, nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied terms.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchRefs implements datastore.RefStore.
//
// Two legs: exact package-name matches first, then prefix matches,
// until the limit is filled.
func (s *Store) SearchRefs(ctx context.Context, term string, limit int) ([]srctrace.Ref, error) {
	if term == "" {
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrInvalid,
			Message: "empty search term",
		}
	}
	if limit <= 0 || limit > 250 {
		limit = 250
	}

	out, err := s.searchLeg(ctx, goqu.C("package").Eq(term), limit)
	if err != nil {
		return nil, err
	}
	if rest := limit - len(out); rest > 0 {
		prefix := goqu.And(
			goqu.C("package").Like(escapeLike(term)+"%"),
			goqu.C("package").Neq(term),
		)
		more, err := s.searchLeg(ctx, prefix, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}

func (s *Store) searchLeg(ctx context.Context, where goqu.Expression, limit int) ([]srctrace.Ref, error) {
	query, err := buildSearchQuery(where, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search refs: %w", err)
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
