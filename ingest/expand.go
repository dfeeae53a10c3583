package ingest

import (
	"context"
	"fmt"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
)

// expandArtifact enqueues a sub-task per nested archive found during
// the walk. Recursion is bounded two ways: a hard depth limit, and a
// stop on already-stored artifacts, whose children were enqueued when
// they were first seen.
func expandArtifact(ctx context.Context, c *Controller) (State, error) {
	if len(c.summary.Nested) == 0 || c.Archive == nil {
		return Done, nil
	}
	if c.known {
		zlog.Debug(ctx).Msg("artifact already stored, skipping expansion")
		return Done, nil
	}
	depth := 0
	if c.expand != nil {
		depth = c.expand.Depth
	}
	if depth+1 > c.maxDepth() {
		zlog.Info(ctx).
			Int("depth", depth).
			Int("nested", len(c.summary.Nested)).
			Msg("depth limit reached, not expanding")
		return Done, nil
	}

	inner := c.summary.Inner.SHA256
	for _, path := range c.summary.Nested {
		task, err := srctrace.NewExpandTask(inner, path, depth+1)
		if err != nil {
			return Terminal, err
		}
		if err := c.Store.Enqueue(ctx, task); err != nil {
			return Terminal, fmt.Errorf("ingest: enqueueing expand of %q: %w", path, err)
		}
	}
	zlog.Info(ctx).
		Int("nested", len(c.summary.Nested)).
		Int("depth", depth+1).
		Msg("enqueued nested archives")
	return Done, nil
}
