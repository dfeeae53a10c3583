package postgres

import (
	"context"
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
	enqueueCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srctrace",
			Subsystem: "datastore",
			Name:      "enqueue_total",
			Help:      "Total number of task enqueue attempts.",
		},
		[]string{"kind", "outcome"},
	)

	claimCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srctrace",
			Subsystem: "datastore",
			Name:      "claim_total",
			Help:      "Total number of task claim attempts.",
		},
		[]string{"outcome"},
	)
)

// Enqueue implements datastore.TaskQueue.
//
// The key column dedupes: enqueueing a task whose key is already
// queued is a no-op, which keeps sync runs free to re-announce work.
func (s *Store) Enqueue(ctx context.Context, task *srctrace.Task) error {
	const query = `
	INSERT INTO tasks (key, kind, data)
	VALUES ($1, $2, $3)
	ON CONFLICT (key) DO NOTHING;
	`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Enqueue")
	tag, err := s.pool.Exec(ctx, query, task.Key, string(task.Kind), []byte(task.Data))
	if err != nil {
		enqueueCounter.WithLabelValues(string(task.Kind), "error").Add(1)
		return fmt.Errorf("failed to enqueue task %q: %w", task.Key, err)
	}
	outcome := "queued"
	if tag.RowsAffected() == 0 {
		outcome = "duplicate"
	}
	enqueueCounter.WithLabelValues(string(task.Kind), outcome).Add(1)
	zlog.Debug(ctx).
		Str("key", task.Key).
		Str("outcome", outcome).
		Msg("task enqueued")
	return nil
}

// Claim implements datastore.TaskQueue.
//
// SKIP LOCKED makes concurrent claimers pick disjoint rows without
// serializing on each other. A claimed row stays invisible until its
// lease lapses, so a crashed worker's task resurfaces on its own.
func (s *Store) Claim(ctx context.Context, lease time.Duration) (*srctrace.Task, error) {
	const query = `
	WITH due AS (
		SELECT id FROM tasks
		WHERE not_before <= now()
		  AND (claimed_until IS NULL OR claimed_until < now())
		  AND retries < $2
		ORDER BY not_before
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	)
	UPDATE tasks SET claimed_until = $1
	FROM due
	WHERE tasks.id = due.id
	RETURNING tasks.id, tasks.key, tasks.kind, tasks.data,
		tasks.retries, COALESCE(tasks.error, ''), tasks.not_before, tasks.created_at;
	`
	var (
		t    srctrace.Task
		kind string
	)
	err := s.pool.QueryRow(ctx, query, time.Now().Add(lease), s.retryLimit).
		Scan(&t.ID, &t.Key, &kind, &t.Data, &t.Retries, &t.Error, &t.NotBefore, &t.CreatedAt)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, pgx.ErrNoRows):
		claimCounter.WithLabelValues("empty").Add(1)
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrNotFound,
			Message: "no task due",
		}
	default:
		claimCounter.WithLabelValues("error").Add(1)
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	t.Kind = srctrace.TaskKind(kind)
	claimCounter.WithLabelValues("claimed").Add(1)
	return &t, nil
}

// Complete implements datastore.TaskQueue.
func (s *Store) Complete(ctx context.Context, task *srctrace.Task) error {
	const query = `DELETE FROM tasks WHERE id = $1;`
	if _, err := s.pool.Exec(ctx, query, task.ID); err != nil {
		return fmt.Errorf("failed to delete task %q: %w", task.Key, err)
	}
	return nil
}

// Fail implements datastore.TaskQueue.
//
// The lease is released along with the retry bump so a re-claim does
// not have to wait the lease out, only until notBefore.
func (s *Store) Fail(ctx context.Context, task *srctrace.Task, taskErr error, notBefore time.Time) error {
	const query = `
	UPDATE tasks SET
		retries = retries + 1,
		error = $2,
		not_before = $3,
		claimed_until = NULL
	WHERE id = $1
	RETURNING retries;
	`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Fail")
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}
	var retries int
	if err := s.pool.QueryRow(ctx, query, task.ID, msg, notBefore).Scan(&retries); err != nil {
		return fmt.Errorf("failed to record task failure: %w", err)
	}
	task.Retries = retries
	task.Error = msg
	task.NotBefore = notBefore
	ev := zlog.Info(ctx)
	if retries >= s.retryLimit {
		ev = zlog.Warn(ctx)
	}
	ev.Str("key", task.Key).
		Int("retries", retries).
		Str("error", msg).
		Msg("task failed")
	return nil
}

// Bury implements datastore.TaskQueue.
//
// The retry counter jumps straight past the limit, so the row is
// excluded from claiming but stays visible to DeadLetters.
func (s *Store) Bury(ctx context.Context, task *srctrace.Task, taskErr error) error {
	const query = `
	UPDATE tasks SET
		retries = GREATEST(retries + 1, $2),
		error = $3,
		claimed_until = NULL
	WHERE id = $1;
	`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Bury")
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}
	if _, err := s.pool.Exec(ctx, query, task.ID, s.retryLimit, msg); err != nil {
		return fmt.Errorf("failed to bury task %q: %w", task.Key, err)
	}
	task.Retries = s.retryLimit
	task.Error = msg
	zlog.Warn(ctx).
		Str("key", task.Key).
		Str("error", msg).
		Msg("task dead-lettered")
	return nil
}

// DeadLetters implements datastore.TaskQueue.
func (s *Store) DeadLetters(ctx context.Context, limit int) ([]srctrace.Task, error) {
	const query = `
	SELECT id, key, kind, data, retries, COALESCE(error, ''), not_before, created_at
	FROM tasks
	WHERE retries >= $1
	ORDER BY not_before DESC
	LIMIT $2;
	`
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, query, s.retryLimit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()
	var out []srctrace.Task
	for rows.Next() {
		var (
			t    srctrace.Task
			kind string
		)
		if err := rows.Scan(&t.ID, &t.Key, &kind, &t.Data, &t.Retries, &t.Error, &t.NotBefore, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = srctrace.TaskKind(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}
