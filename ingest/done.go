package ingest

import (
	"context"

	"github.com/quay/zlog"
)

// ingestFinished is the last state; it only reports.
func ingestFinished(ctx context.Context, c *Controller) (State, error) {
	s := c.summary
	zlog.Info(ctx).
		Str("chksum", s.Inner.SHA256.String()).
		Int64("size", s.Inner.Size).
		Int("files", len(s.Files)).
		Bool("known", c.known).
		Msg("ingest finished")
	return Terminal, nil
}
