package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"moex-bond-screener/internal/screening"
)

// Screen prints the bonds matching the query as a table.
func (a *App) Screen(ctx context.Context, opts ScreenOptions) error {
	store, closeStore, err := a.requireStore(ctx, "screen bonds")
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := screening.NewEngine(store, a.Logger).Select(ctx, opts.Query)
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		fmt.Fprintln(a.Out, "no bonds match the filters")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		fmt.Fprintln(writer, strings.Join(formatRow(row), "\t"))
	}
	writer.Flush()
	return nil
}

// Runs prints the latest ingestion ledger entries.
func (a *App) Runs(ctx context.Context, opts RunsOptions) error {
	store, closeStore, err := a.requireStore(ctx, "list runs")
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.Out, "no runs recorded")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tTook\tStatus\tListed\tNew\tUpdated\tDropped\tFailed\tNot stored\tError")
	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
			run.Status,
			run.Listed,
			run.Inserted,
			run.Updated,
			run.Dropped,
			run.Failed,
			run.PersistFailed,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func formatRow(row []any) []string {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = formatCell(v)
	}
	return cells
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return sanitizeInline(val)
	default:
		return fmt.Sprint(val)
	}
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
