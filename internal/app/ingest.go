package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"moex-bond-screener/internal/bond"
	"moex-bond-screener/internal/pipeline"
	"moex-bond-screener/internal/storage"
)

// Ingest runs one pass outside the scheduler: a full cycle, or just the
// listed bonds when SecIDs is set. DryRun enriches and scores without writing.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	var writer storage.BondWriter

	if opts.DryRun {
		a.Logger.Warn().Msg("ingest dry-run: nothing will be written to the database")
	} else {
		store, closeStore, err := a.requireStore(ctx, "ingest")
		if err != nil {
			return err
		}
		defer closeStore()
		writer = store
	}

	if len(opts.SecIDs) > 0 {
		return a.ingestSecIDs(ctx, opts.SecIDs, writer)
	}

	orch := pipeline.New(a.pipelineOptions(), nil, a.newSources(), writer, a.newNotifier(), a.Logger)
	report, err := orch.RunCycle(ctx)
	if report.Skipped {
		fmt.Fprintln(a.Out, "cycle skipped: another ingestion holds the lock")
		return nil
	}
	fmt.Fprintf(a.Out, "run %s: %d listed on %d pages, %d new, %d updated, %d dropped, %d failed, %d not stored\n",
		report.RunID, report.Listed, report.Pages, report.Inserted, report.Updated,
		report.DroppedTotal(), report.Failed, report.PersistFailed)
	return err
}

func (a *App) ingestSecIDs(ctx context.Context, secids []string, writer storage.BondWriter) error {
	opts := a.pipelineOptions()
	opts.AlertsEnabled = false
	orch := pipeline.New(opts, nil, a.newSources(), writer, nil, a.Logger)

	records := make([]bond.Record, 0, len(secids))
	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SecID\tOutcome\tYear%\tDetail")

	failed := 0
	for _, secid := range secids {
		if err := ctx.Err(); err != nil {
			return err
		}

		out := orch.Enrich(ctx, secid)
		switch {
		case out.IsFailed():
			failed++
			fmt.Fprintf(tw, "%s\tfailed\t\t%s\n", secid, sanitizeInline(out.Err.Error()))
		case out.IsDropped():
			fmt.Fprintf(tw, "%s\tdropped\t\t%s\n", secid, out.Reason)
		default:
			records = append(records, out.Value)
			fmt.Fprintf(tw, "%s\tok\t%s\t%s\n", secid, out.Value.YearPercent.StringFixed(2), out.Value.ShortName)
		}
	}
	tw.Flush()

	if writer != nil && len(records) > 0 {
		result, err := writer.UpsertBatch(ctx, records)
		if err != nil {
			return err
		}
		for _, f := range result.Failures {
			a.Logger.Error().Err(f.Err).Str("secid", f.SecID).Msg("failed to upsert bond")
		}
		failed += len(result.Failures)
		a.Logger.Info().Int("inserted", result.Inserted).Int("updated", result.Updated).Msg("bonds stored")
	}

	if failed > 0 {
		return errors.New("some bonds could not be ingested, check the log")
	}
	return nil
}
