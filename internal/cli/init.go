package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .drift layout and the unified database",
	RunE: func(cmd *cobra.Command, args []string) error {
		driftDir, err := config.EnsureLayout(cfg.Project)
		if err != nil {
			return err
		}
		s, err := openUnified()
		if err != nil {
			return err
		}
		defer s.Close()
		fmt.Printf("initialized %s (db: %s)\n", driftDir, s.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
