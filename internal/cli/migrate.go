package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
	"github.com/mehmetkoksal-w/driftwatch/internal/migrate"
	"github.com/mehmetkoksal-w/driftwatch/internal/unified"
)

var (
	flagMigrateDryRun bool
	flagMigrateDelete bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move legacy JSON trees into the unified database",
	RunE: func(cmd *cobra.Command, args []string) error {
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()

		eng := migrate.New(cfg.DriftDir(), us, migrate.Options{
			DryRun:       flagMigrateDryRun,
			DeleteLegacy: flagMigrateDelete,
		})
		res, err := eng.Run()
		if err != nil {
			return err
		}
		if !flagMigrateDryRun {
			_ = us.Audit.Record(unified.AuditRecord{
				ID:      drift.NewID("audit"),
				Kind:    "migrate",
				Records: res.Total(),
				Errors:  len(res.Errors),
			})
		}
		return emit(res, func() {
			fmt.Printf("patterns    %d\n", res.Patterns)
			fmt.Printf("contracts   %d\n", res.Contracts)
			fmt.Printf("constraints %d\n", res.Constraints)
			fmt.Printf("boundaries  %d\n", res.Boundaries)
			fmt.Printf("environment %d\n", res.Environment)
			for _, w := range res.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
			for _, e := range res.Errors {
				fmt.Printf("error: %s\n", e)
			}
			if res.BackupDir != "" {
				fmt.Printf("legacy trees backed up to %s\n", res.BackupDir)
			}
			if flagMigrateDryRun {
				fmt.Println("dry run: nothing was written")
			}
		})
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&flagMigrateDryRun, "dry-run", false, "read and count without writing")
	migrateCmd.Flags().BoolVar(&flagMigrateDelete, "delete-legacy", false, "back up and remove legacy trees after migration")
	rootCmd.AddCommand(migrateCmd)
}
