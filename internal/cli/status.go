package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
	"github.com/mehmetkoksal-w/driftwatch/internal/store"
	"github.com/mehmetkoksal-w/driftwatch/internal/unified"
)

// statusReport is the combined health view emitted by `driftwatch status`.
type statusReport struct {
	Patterns  store.Stats         `json:"patterns"`
	Contracts store.Stats         `json:"contracts"`
	Database  *unified.StoreStats `json:"database"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize stores and the unified database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := openPatterns()
		if err != nil {
			return err
		}
		defer ps.Close()
		cs, err := openContracts()
		if err != nil {
			return err
		}
		defer cs.Close()
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()

		dbStats, err := us.GetStats()
		if err != nil {
			return err
		}
		report := statusReport{
			Patterns:  ps.Stats(),
			Contracts: cs.Stats(),
			Database:  dbStats,
		}
		return emit(report, func() {
			fmt.Printf("patterns:  %d (avg confidence %.2f)\n", report.Patterns.Total, report.Patterns.AvgConfidence)
			printByStatus(report.Patterns)
			fmt.Printf("contracts: %d\n", report.Contracts.Total)
			printByStatus(report.Contracts)
			fmt.Printf("database:  %s (%d bytes)\n", us.Path(), report.Database.FileSize)
			if !report.Database.LastRunAt.IsZero() {
				fmt.Printf("last run:  %s\n", report.Database.LastRunAt.Format("2006-01-02 15:04:05"))
			}
		})
	},
}

func printByStatus(s store.Stats) {
	keys := make([]string, 0, len(s.ByStatus))
	for k := range s.ByStatus {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-11s %d\n", k, s.ByStatus[drift.Status(k)])
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
