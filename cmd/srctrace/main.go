// Command srctrace wires the sync, worker and reporting surfaces
// together. Configuration comes from the environment; flags only tune
// per-invocation behavior.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/quay/zlog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/srctrace/srctrace/objstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:           "srctrace",
		Short:         "Source archive provenance importer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("bad log level %q: %w", logLevel, err)
			}
			l := zerolog.New(os.Stderr).
				Level(lvl).
				With().
				Timestamp().
				Logger()
			zlog.Set(&l)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	cmd.AddCommand(newWorkerCommand())
	cmd.AddCommand(newSyncCommand())
	cmd.AddCommand(newAdminCommand())
	return cmd
}

// config is the environment-driven part of the setup.
type config struct {
	// Database is the DATABASE_URL connection string.
	Database string
	// S3 settings; an empty bucket disables archiving and with it
	// nested-archive expansion.
	S3 objstore.Config
}

func configFromEnv() (*config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	pathStyle, _ := strconv.ParseBool(os.Getenv("S3_FORCE_PATH_STYLE"))
	return &config{
		Database: dsn,
		S3: objstore.Config{
			Endpoint:  os.Getenv("S3_ENDPOINT_URL"),
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    os.Getenv("S3_REGION"),
			AccessKey: os.Getenv("S3_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			PathStyle: pathStyle,
		},
	}, nil
}
