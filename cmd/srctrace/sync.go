package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srctrace/srctrace/datastore/postgres"
	"github.com/srctrace/srctrace/sync"
	"github.com/srctrace/srctrace/sync/driver"

	// Vendor adapters register themselves at init.
	_ "github.com/srctrace/srctrace/sync/alpine"
	_ "github.com/srctrace/srctrace/sync/debian"
	_ "github.com/srctrace/srctrace/sync/gentoo"
	_ "github.com/srctrace/srctrace/sync/guix"
	_ "github.com/srctrace/srctrace/sync/homebrew"
	_ "github.com/srctrace/srctrace/sync/pacman"
	_ "github.com/srctrace/srctrace/sync/rpm"
	_ "github.com/srctrace/srctrace/sync/stagex"
	_ "github.com/srctrace/srctrace/sync/void"
	_ "github.com/srctrace/srctrace/sync/yocto"
)

func newSyncCommand() *cobra.Command {
	var (
		interval  time.Duration
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "sync [vendor...]",
		Short: "Run vendor index syncers; no arguments runs all of them",
		Long: "Run vendor index syncers; no arguments runs all of them.\n\nRegistered: " +
			strings.Join(driver.Registered(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromEnv()
			if err != nil {
				return err
			}
			for _, name := range args {
				if _, ok := driver.Factory(name); !ok {
					return fmt.Errorf("no syncer registered as %q", name)
				}
			}

			store, err := postgres.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			opts := []sync.ManagerOption{sync.WithSyncers(args...)}
			if batchSize > 0 {
				opts = append(opts, sync.WithBatchSize(batchSize))
			}
			if interval > 0 {
				opts = append(opts, sync.WithInterval(interval))
			}
			m, err := sync.NewManager(ctx, store, nil, opts...)
			if err != nil {
				return err
			}
			if interval > 0 {
				return m.Start(ctx)
			}
			return m.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Keep running at this interval; 0 runs once and exits")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Max in-flight syncers; 0 means GOMAXPROCS")
	return cmd
}
