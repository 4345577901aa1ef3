package cli

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rlops-agent/internal/report"
)

var reportAppend bool

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(trendCmd)
	reportCmd.Flags().BoolVar(&reportAppend, "append", false, "Also append the row to paths.report_csv")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a drift report for the saved policy without learning",
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.LoadPolicy(); err != nil {
		return err
	}
	row := report.GenerateDailyReport(contextOf(cmd), a.Agent, time.Now())
	if reportAppend {
		if err := report.AppendCSV(a.Config.Paths.ReportCSV, row); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), struct {
		report.DailyReport
		Stability string `json:"stability"`
	}{row, string(a.Agent.Stability())})
}

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Analyse drift and reward trends over the report CSV",
	RunE:  runTrend,
}

func runTrend(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := report.LoadCSV(a.Config.Paths.ReportCSV)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report.TrendAnalysis(rows, a.Config.EvalConfig()))
}
