// Command notifyhub runs the event notification pipeline: the HTTP ingestion
// API, the queue workers, and operator tooling for migrations, reconciliation
// and dead letters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "notifyhub:", err)
		cancel()
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "notifyhub",
		Usage:   "Event to notification orchestration pipeline",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the HTTP ingestion API",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return run(ctx, runHTTP)
				},
			},
			{
				Name:  "work",
				Usage: "Start the orchestration and dispatch workers and the reconcile scheduler",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return run(ctx, runWorkers)
				},
			},
			{
				Name:  "all",
				Usage: "Run the HTTP API and the workers in one process",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return run(ctx, runHTTP, runWorkers)
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply the Postgres schema",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runMigrate(ctx)
				},
			},
			{
				Name:  "reconcile",
				Usage: "Re-enqueue events stranded before orchestration",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Report stranded events without enqueueing"},
					&cli.BoolFlag{Name: "retry-failed", Usage: "Also re-enqueue FAILED events"},
					&cli.DurationFlag{Name: "after", Value: 0, Usage: "Minimum event age, overrides RECONCILE_AFTER"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runReconcile(ctx, cmd.Root().Writer, reconcileFlags{
						dryRun:      cmd.Bool("dry-run"),
						retryFailed: cmd.Bool("retry-failed"),
						after:       cmd.Duration("after"),
					})
				},
			},
			{
				Name:  "dlq",
				Usage: "Inspect and export dead-lettered notifications",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "Print recent dead letters",
						Flags: dlqFlags(
							&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20},
							&cli.BoolFlag{Name: "json", Usage: "Print JSON lines"},
						),
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return runDLQList(ctx, cmd.Root().Writer, dlqFilter(cmd, cmd.Int("limit")), cmd.Bool("json"))
						},
					},
					{
						Name:  "export",
						Usage: "Upload dead letters to S3 as JSON lines",
						Flags: dlqFlags(
							&cli.StringFlag{Name: "bucket", Usage: "Overrides DLQ_S3_BUCKET"},
							&cli.IntFlag{Name: "limit", Value: 1000},
						),
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return runDLQExport(ctx, cmd.Root().Writer, cmd.String("bucket"), dlqFilter(cmd, cmd.Int("limit")))
						},
					},
				},
			},
		},
	}
}

func dlqFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{Name: "channel", Usage: "EMAIL or IN_APP"},
		&cli.DurationFlag{Name: "since", Usage: "Only records that failed within this window", Value: 0},
	}, extra...)
}

func sinceTime(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-d)
}
