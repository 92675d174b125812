package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ContentPipeline/internal/app"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/usecase"
)

var (
	authorsFile   string
	ingestOnce    bool
	ingestBatch   string
	submitLimit   int
	imagesLimit   int
	publishLimit  int
	outlineDays   int
	outlinePerDay int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			if err := a.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		})
	},
}

var seedAuthorsCmd = &cobra.Command{
	Use:   "seed-authors",
	Short: "Load author personas from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			n, err := a.SeedAuthors(ctx, authorsFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d authors\n", n)
			return nil
		})
	},
}

var outlinesCmd = &cobra.Command{
	Use:   "outlines",
	Short: "Generate outlines for upcoming planned records",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrideInt(cmd, "days", &cfg.Outlines.Days, outlineDays)
		overrideInt(cmd, "per-day", &cfg.Outlines.PerDay, outlinePerDay)
		return runSummary(cmd, func(ctx context.Context, a *app.Application) (usecase.Summary, error) {
			return a.Outlines(ctx)
		})
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit planned records as one drafting batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrideInt(cmd, "limit", &cfg.Submit.Limit, submitLimit)
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			res, err := a.Submit(ctx)
			if err != nil {
				return err
			}
			if res.BatchID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to submit")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "batch %s: %d records\n", res.BatchID, len(res.RecordIDs))
			return nil
		})
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Wait for a submitted batch and write drafts back",
	Long: `Resolves the batch from --batch-id, the marker file, or the oldest
pending batch job, then polls until it ends and ingests every result.
With --once the status is checked a single time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSummary(cmd, func(ctx context.Context, a *app.Application) (usecase.Summary, error) {
			return a.Ingest(ctx, usecase.IngestOptions{BatchID: ingestBatch, Once: ingestOnce})
		})
	},
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Generate featured images for records that need one",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrideInt(cmd, "limit", &cfg.Images.Limit, imagesLimit)
		return runSummary(cmd, func(ctx context.Context, a *app.Application) (usecase.Summary, error) {
			return a.Images(ctx)
		})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish ready records to the CMS",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrideInt(cmd, "limit", &cfg.Publish.Limit, publishLimit)
		return runSummary(cmd, func(ctx context.Context, a *app.Application) (usecase.Summary, error) {
			return a.Publish(ctx)
		})
	},
}

var footersCmd = &cobra.Command{
	Use:   "footers",
	Short: "Rebuild related-links and author-bio footers where the byline is missing",
	Long: `Strips the footer of every unpublished body that lacks an author byline
and appends a fresh one from the current related articles and author bio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSummary(cmd, func(ctx context.Context, a *app.Application) (usecase.Summary, error) {
			return a.Footers(ctx)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			counts, err := a.Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range domain.AllStatuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d\n", s, counts[s])
			}
			return nil
		})
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run every stage on its cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return a.Run(ctx)
		})
	},
}

func init() {
	seedAuthorsCmd.Flags().StringVar(&authorsFile, "file", "", "authors YAML file (defaults to authorsFile from config)")
	ingestCmd.Flags().StringVar(&ingestBatch, "batch-id", "", "batch to ingest")
	ingestCmd.Flags().BoolVar(&ingestOnce, "once", false, "check status once instead of waiting")
	submitCmd.Flags().IntVar(&submitLimit, "limit", 0, "max records to submit (overrides submit.limit)")
	imagesCmd.Flags().IntVar(&imagesLimit, "limit", 0, "max images to generate (overrides images.limit)")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "max records to publish (overrides publish.limit)")
	outlinesCmd.Flags().IntVar(&outlineDays, "days", 0, "publish days to cover (overrides outlines.days)")
	outlinesCmd.Flags().IntVar(&outlinePerDay, "per-day", 0, "max records per day (overrides outlines.perDay)")
}

// overrideInt replaces *dst with v when the flag was given explicitly.
func overrideInt(cmd *cobra.Command, flag string, dst *int, v int) {
	if cmd.Flags().Changed(flag) {
		*dst = v
	}
}

func runSummary(cmd *cobra.Command, fn func(context.Context, *app.Application) (usecase.Summary, error)) error {
	return withApp(cmd, func(ctx context.Context, a *app.Application) error {
		summary, err := fn(ctx, a)
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())
		return err
	})
}
