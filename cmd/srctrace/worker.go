package main

import (
	"net/http"
	"time"

	"github.com/quay/zlog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/srctrace/srctrace/datastore/postgres"
	"github.com/srctrace/srctrace/ingest"
	"github.com/srctrace/srctrace/objstore"
)

func newWorkerCommand() *cobra.Command {
	var (
		workers  int
		maxDepth int
		reqRate  float64
		spoolDir string
		poll     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Drain the ingest task queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := configFromEnv()
			if err != nil {
				return err
			}

			store, err := postgres.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			fopts := []ingest.FetcherOption{
				ingest.WithSpoolDir(spoolDir),
			}
			if reqRate > 0 {
				fopts = append(fopts, ingest.WithRateLimit(rate.Limit(reqRate), 1))
			}

			opts := &ingest.Options{
				Store:    store,
				Fetcher:  ingest.NewFetcher(http.DefaultClient, fopts...),
				MaxDepth: maxDepth,
			}
			if cfg.S3.Bucket != "" {
				archive, err := objstore.New(ctx, cfg.S3)
				if err != nil {
					return err
				}
				opts.Archive = archive
			} else {
				zlog.Warn(ctx).Msg("no S3 bucket configured; archiving and nested expansion disabled")
			}

			wopts := []ingest.WorkerOption{ingest.WithPollInterval(poll)}
			if workers > 0 {
				wopts = append(wopts, ingest.WithWorkers(workers))
			}
			return ingest.NewWorker(store, opts, wopts...).Run(ctx)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Pool size; 0 means GOMAXPROCS")
	cmd.Flags().IntVar(&maxDepth, "max-depth", ingest.DefaultMaxDepth, "Nested archive recursion bound")
	cmd.Flags().Float64Var(&reqRate, "rate", 0, "Upstream requests per second; 0 means unlimited")
	cmd.Flags().StringVar(&spoolDir, "spool-dir", "", "Directory downloads spool into; empty uses the system temp dir")
	cmd.Flags().DurationVar(&poll, "poll", time.Minute, "Idle wait between queue polls")
	return cmd
}
