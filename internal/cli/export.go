package cli

import (
	"github.com/spf13/cobra"

	"moex-bond-screener/internal/app"
)

var (
	exportQuery    queryFlags
	exportPNGPath  string
	exportCSVPath  string
	exportXLSXPath string
	exportMaxRows  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export screening results as CSV, XLSX and/or a PNG yield chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		return a.Export(cmd.Context(), app.ExportOptions{
			Query:    exportQuery.apply(cmd, a.Config.Screening.Query()),
			PNGPath:  exportPNGPath,
			CSVPath:  exportCSVPath,
			XLSXPath: exportXLSXPath,
			MaxRows:  exportMaxRows,
		})
	},
}

func init() {
	exportQuery.register(exportCmd, false)
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write an Excel workbook")
	exportCmd.Flags().IntVar(&exportMaxRows, "max-rows", 0, "Maximum rows to export (defaults to config)")
}
