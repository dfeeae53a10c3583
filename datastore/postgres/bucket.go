package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/srctrace/srctrace"
)

// InsertBucketObject implements datastore.BucketStore.
func (s *Store) InsertBucketObject(ctx context.Context, key string, compressedSize, uncompressedSize int64) error {
	const query = `
	INSERT INTO bucket (key, compressed_size, uncompressed_size)
	VALUES ($1, $2, $3)
	ON CONFLICT (key) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, key, compressedSize, uncompressedSize); err != nil {
		return fmt.Errorf("failed to insert bucket object: %w", err)
	}
	return nil
}

// GetBucketObject implements datastore.BucketStore.
func (s *Store) GetBucketObject(ctx context.Context, key string) (*srctrace.BucketObject, error) {
	const query = `
	SELECT key, compressed_size, uncompressed_size, created_at
	FROM bucket
	WHERE key = $1;
	`
	var o srctrace.BucketObject
	err := s.pool.QueryRow(ctx, query, key).
		Scan(&o.Key, &o.CompressedSize, &o.UncompressedSize, &o.CreatedAt)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: fmt.Sprintf("no bucket object for %q", key),
		}
	default:
		return nil, fmt.Errorf("failed to query bucket object: %w", err)
	}
	return &o, nil
}
