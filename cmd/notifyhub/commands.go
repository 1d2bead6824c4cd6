package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifyhub/internal/app"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/requestid"
	"github.com/dmitrymomot/notifyhub/svc/notify"
)

// component runs until ctx is done.
type component func(ctx context.Context, a *app.App) error

func setup(ctx context.Context) (*app.App, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(
		logger.WithEnvironment(cfg.AppEnv, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)
	return app.New(ctx, cfg, log)
}

func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		a.Logger.Error("failed to close backends", logger.Error(err))
	}
}

func run(ctx context.Context, components ...component) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	a.Logger.InfoContext(ctx, "starting",
		slog.String("version", version),
		slog.String("store", a.Config.StoreDriver),
		slog.String("queue", a.Config.QueueDriver),
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range components {
		g.Go(func() error { return c(ctx, a) })
	}
	err = g.Wait()
	a.Logger.Info("stopped")
	return err
}

func runHTTP(ctx context.Context, a *app.App) error {
	h, err := a.Handler()
	if err != nil {
		return err
	}
	return a.Server().Run(ctx, h)
}

func runWorkers(ctx context.Context, a *app.App) error {
	w, err := a.Worker()
	if err != nil {
		return err
	}
	s, err := a.Scheduler()
	if err != nil {
		return err
	}
	a.LogQueueStats(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(w.Run(ctx))
	g.Go(s.Run(ctx))
	return g.Wait()
}

func runMigrate(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)
	if err := a.Migrate(ctx); err != nil {
		return err
	}
	a.Logger.InfoContext(ctx, "migrations applied")
	return nil
}

type reconcileFlags struct {
	dryRun      bool
	retryFailed bool
	after       time.Duration
}

func runReconcile(ctx context.Context, out io.Writer, f reconcileFlags) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	after := a.Config.ReconcileAfter
	if f.after > 0 {
		after = f.after
	}
	r := notify.NewReconciler(a.Store, a.Enqueuer,
		notify.WithReconcileAfter(after),
		notify.WithRetryFailed(f.retryFailed || a.Config.ReconcileRetryFailed),
		notify.WithDryRun(f.dryRun),
		notify.WithReconcileAttempts(a.Config.Queue.MaxAttempts),
		notify.WithReconcilerLogger(a.Logger),
	)
	res, err := r.Sweep(ctx)
	if err != nil {
		return err
	}
	return printSweep(out, res)
}

func printSweep(out io.Writer, res notify.SweepResult) error {
	verb := "requeued"
	if res.DryRun {
		verb = "would requeue"
	}
	if _, err := fmt.Fprintf(out, "scanned %d, %s %d, failed %d\n", res.Scanned, verb, res.Requeued, res.Failed); err != nil {
		return err
	}
	for _, id := range res.EventIDs {
		if _, err := fmt.Fprintln(out, id); err != nil {
			return err
		}
	}
	return nil
}

func dlqFilter(cmd *cli.Command, limit int) notify.DeadLetterFilter {
	return notify.DeadLetterFilter{
		Channel: notify.Channel(strings.ToUpper(cmd.String("channel"))),
		Since:   sinceTime(cmd.Duration("since")),
		Limit:   limit,
	}
}

func runDLQList(ctx context.Context, out io.Writer, filter notify.DeadLetterFilter, asJSON bool) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	records, err := a.Store.ListDeadLetters(ctx, filter)
	if err != nil {
		return err
	}
	return printDeadLetters(out, records, asJSON)
}

func printDeadLetters(out io.Writer, records []*notify.DeadLetterRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FAILED AT\tEVENT\tCHANNEL\tRECIPIENT\tATTEMPTS\tREASON")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.FailedAt.UTC().Format(time.RFC3339), r.EventID, r.Channel, r.Recipient, r.Attempts, r.ErrorReason)
	}
	return tw.Flush()
}

func runDLQExport(ctx context.Context, out io.Writer, bucket string, filter notify.DeadLetterFilter) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if bucket != "" {
		a.Config.DLQ.Bucket = bucket
	}
	arch, err := a.Archiver(ctx)
	if err != nil {
		return err
	}
	res, err := arch.Export(ctx, a.Store, filter)
	if err != nil {
		return err
	}
	if res.Count == 0 {
		_, err = fmt.Fprintln(out, "no dead letters to export")
		return err
	}
	_, err = fmt.Fprintf(out, "exported %d records to s3://%s/%s\n", res.Count, res.Bucket, res.Key)
	return err
}
