package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	"moex-bond-screener/internal/screening"
)

// chartMaxBars caps the bar chart; rows arrive sorted by yield so the best are kept.
const chartMaxBars = 40

// xlsxSheet names the worksheet of spreadsheet exports.
const xlsxSheet = "Bonds"

// Export renders screening results as CSV, XLSX and/or a PNG bar chart of yields.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.XLSXPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv, --xlsx or --png must be provided")
	}

	q := opts.Query
	q.Limit = a.Config.ResolveMaxRows(opts.MaxRows)
	if opts.PNGPath != "" {
		q.Fields = ensureFields(q.Fields, "secid", "year_percent")
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := screening.NewEngine(store, a.Logger).Select(ctx, q)
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		a.Logger.Info().Msg("no bonds match the export filters")
		return nil
	}
	a.Logger.Info().Int("rows", len(result.Rows)).Msg("exporting screening result")

	if opts.CSVPath != "" {
		if err := writeResultCSV(opts.CSVPath, result); err != nil {
			return err
		}
	}

	if opts.XLSXPath != "" {
		if err := writeResultXLSX(opts.XLSXPath, result); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writeResultPNG(opts.PNGPath, result); err != nil {
			return err
		}
	}

	return nil
}

func ensureFields(fields []string, required ...string) []string {
	if len(fields) == 0 {
		fields = slices.Clone(screening.DefaultFields)
	} else {
		fields = slices.Clone(fields)
	}
	for _, f := range required {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	return fields
}

func writeResultCSV(path string, result screening.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return encodeCSV(file, result)
}

func encodeCSV(w io.Writer, result screening.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(result.Columns); err != nil {
		return err
	}
	for _, row := range result.Rows {
		if err := writer.Write(formatRow(row)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeResultXLSX(path string, result screening.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return err
	}
	header := make([]any, len(result.Columns))
	for i, c := range result.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range result.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := slices.Clone(row)
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(xlsxSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func (a *App) writeResultPNG(path string, result screening.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	graph, err := yieldChart(result, a.Config.Export.ChartWidth, a.Config.Export.ChartHeight)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// yieldChart builds one bar per bond labelled with its short name when
// available, falling back to the secid.
func yieldChart(result screening.Result, width, height int) (chart.BarChart, error) {
	yieldIdx := slices.Index(result.Columns, "year_percent")
	labelIdx := slices.Index(result.Columns, "shortname")
	if labelIdx < 0 {
		labelIdx = slices.Index(result.Columns, "secid")
	}
	if yieldIdx < 0 || labelIdx < 0 {
		return chart.BarChart{}, errors.New("chart requires secid and year_percent columns")
	}

	rows := result.Rows
	if len(rows) > chartMaxBars {
		rows = rows[:chartMaxBars]
	}

	bars := make([]chart.Value, 0, len(rows))
	lo, hi := 0.0, 0.0
	for _, row := range rows {
		v, ok := row[yieldIdx].(float64)
		if !ok {
			continue
		}
		lo, hi = min(lo, v), max(hi, v)
		bars = append(bars, chart.Value{Value: v, Label: formatCell(row[labelIdx])})
	}
	if len(bars) == 0 {
		return chart.BarChart{}, errors.New("no numeric yields to chart")
	}
	if hi == lo {
		hi = lo + 1
	}

	barWidth := max(4, (width-120)/len(bars)*2/3)
	yieldFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	return chart.BarChart{
		Title:    fmt.Sprintf("Net annual yield, top %d bonds", len(bars)),
		Width:    width,
		Height:   height,
		BarWidth: barWidth,
		XAxis:    chart.Style{TextRotationDegrees: 90},
		YAxis: chart.YAxis{
			Name:           "Yield (%)",
			Range:          &chart.ContinuousRange{Min: lo, Max: hi * 1.1},
			ValueFormatter: yieldFormatter,
		},
		Bars: bars,
	}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
