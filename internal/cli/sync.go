package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/syncer"
)

var flagSyncDomains []string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile legacy outputs into the unified database",
	RunE: func(cmd *cobra.Command, args []string) error {
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()

		domains := flagSyncDomains
		if len(domains) == 0 {
			domains = cfg.SyncDomains
		}
		res := syncer.New(cfg.DriftDir(), us).SyncAll(domains...)
		return emit(res, func() {
			for _, d := range res.Domains {
				line := fmt.Sprintf("%-12s %d synced", d.Domain, d.Synced)
				if d.Skipped > 0 {
					line += fmt.Sprintf(", %d skipped", d.Skipped)
				}
				if d.Error != "" {
					line += " (failed: " + d.Error + ")"
				}
				fmt.Println(line)
			}
			fmt.Printf("total: %d synced, %d skipped\n", res.Synced, res.Skipped)
		})
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&flagSyncDomains, "domains", nil, "restrict to a subset of sync domains")
	rootCmd.AddCommand(syncCmd)
}
