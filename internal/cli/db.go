package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var flagFormat string

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the unified database to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()

		var data []byte
		switch flagFormat {
		case "json":
			data, err = us.ExportJSON()
		case "sqlite":
			data, err = us.ExportSQLite()
		default:
			return fmt.Errorf("unknown format %q (want json or sqlite)", flagFormat)
		}
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return err
		}
		fmt.Printf("exported %d bytes to %s\n", len(data), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a previously exported database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()

		switch flagFormat {
		case "json":
			err = us.ImportJSON(data)
		case "sqlite":
			err = us.ImportSQLite(data)
		default:
			return fmt.Errorf("unknown format %q (want json or sqlite)", flagFormat)
		}
		if err != nil {
			return err
		}
		fmt.Printf("imported %s\n", args[0])
		return nil
	},
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Unified database maintenance",
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Reclaim unused space",
	RunE: func(cmd *cobra.Command, args []string) error {
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()
		return us.Vacuum()
	},
}

var dbCheckpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Truncate the write-ahead log",
	RunE: func(cmd *cobra.Command, args []string) error {
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()
		return us.Checkpoint()
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Row counts and file size",
	RunE: func(cmd *cobra.Command, args []string) error {
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()
		stats, err := us.GetStats()
		if err != nil {
			return err
		}
		return emit(stats, func() {
			tables := make([]string, 0, len(stats.Tables))
			for t := range stats.Tables {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				fmt.Printf("%-24s %d\n", t, stats.Tables[t])
			}
			fmt.Printf("file size: %d bytes\n", stats.FileSize)
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagFormat, "format", "json", "export format: json or sqlite")
	importCmd.Flags().StringVar(&flagFormat, "format", "json", "import format: json or sqlite")
	dbCmd.AddCommand(dbVacuumCmd, dbCheckpointCmd, dbStatsCmd)
	rootCmd.AddCommand(exportCmd, importCmd, dbCmd)
}
