package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/history"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Record today's pattern state in the history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := openPatterns()
		if err != nil {
			return err
		}
		defer ps.Close()

		eng := history.New(cfg.DriftDir(), cfg.HistoryRetention)
		snap, err := eng.CreateSnapshot(ps.All())
		if err != nil {
			return err
		}
		return emit(snap, func() {
			fmt.Printf("snapshot %s: %d patterns, compliance %.2f\n",
				snap.Date, snap.Project.Patterns, snap.Project.ComplianceRate)
		})
	},
}

var flagTrendPeriod string

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Report drift trends over a period",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := history.New(cfg.DriftDir(), cfg.HistoryRetention)
		report, err := eng.TrendSummary(flagTrendPeriod)
		if err != nil {
			return err
		}
		if report == nil {
			fmt.Println("not enough history yet; run snapshot for a few days first")
			return nil
		}
		return emit(report, func() {
			fmt.Printf("%s (%s -> %s): project %s, health delta %+.2f\n",
				report.Period, report.From, report.To, report.ProjectTrend, report.HealthDelta)
			fmt.Printf("%d regressions, %d improvements, %d stable\n",
				len(report.Regressions), len(report.Improvements), report.Stable)
			for _, t := range report.Regressions {
				fmt.Printf("  [%s] %s %s: %.2f -> %.2f\n",
					t.Severity, t.PatternName, t.Metric, t.Before, t.After)
			}
		})
	},
}

func init() {
	trendsCmd.Flags().StringVar(&flagTrendPeriod, "period", "30d", "lookback window: 7d, 30d, or 90d")
	rootCmd.AddCommand(snapshotCmd, trendsCmd)
}
