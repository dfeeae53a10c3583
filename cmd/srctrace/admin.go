package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/datastore/postgres"
	"github.com/srctrace/srctrace/objstore"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Reporting and maintenance operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newDeadLettersCommand())
	cmd.AddCommand(newPresignCommand())
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print ref, sbom, task and archive tallies",
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

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			defer w.Flush()

			vendors, err := store.VendorRefCounts(ctx)
			if err != nil {
				return err
			}
			printCounts(w, "refs by vendor", vendors)

			strains, err := store.StrainCounts(ctx)
			if err != nil {
				return err
			}
			printCounts(w, "sboms by strain", strains)

			pending, err := store.PendingTaskCounts(ctx)
			if err != nil {
				return err
			}
			printCounts(w, "pending tasks", pending)

			reasons, err := store.AliasReasonCounts(ctx)
			if err != nil {
				return err
			}
			printCounts(w, "aliases by reason", reasons)

			count, compressed, uncompressed, err := store.ArchiveStats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "archive")
			fmt.Fprintf(w, "\tobjects\t%d\n", count)
			fmt.Fprintf(w, "\tcompressed bytes\t%d\n", compressed)
			fmt.Fprintf(w, "\tuncompressed bytes\t%d\n", uncompressed)
			return nil
		},
	}
}

func printCounts(w *tabwriter.Writer, title string, counts map[string]int64) {
	fmt.Fprintln(w, title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "\t%s\t%d\n", k, counts[k])
	}
}

func newDeadLettersCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List tasks that exhausted their retries",
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

			tasks, err := store.DeadLetters(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "KEY\tRETRIES\tCREATED\tERROR")
			for i := range tasks {
				t := &tasks[i]
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					t.Key, t.Retries, t.CreatedAt.Format(time.RFC3339), t.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Max rows to list")
	return cmd
}

func newPresignCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "presign <digest>",
		Short: "Emit a presigned GET URL for an archived artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromEnv()
			if err != nil {
				return err
			}
			if cfg.S3.Bucket == "" {
				return fmt.Errorf("S3_BUCKET is not set")
			}
			d, err := srctrace.ParseDigest(args[0])
			if err != nil {
				return err
			}
			archive, err := objstore.New(ctx, cfg.S3)
			if err != nil {
				return err
			}
			url, err := archive.PresignGet(ctx, d, ttl)
			if err != nil {
				return err
			}
			fmt.Println(url)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "How long the URL stays valid")
	return cmd
}
