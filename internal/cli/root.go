// Package cli wires the storage engines into the driftwatch command.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/config"
	"github.com/mehmetkoksal-w/driftwatch/internal/store"
	"github.com/mehmetkoksal-w/driftwatch/internal/unified"
)

var (
	flagProject string
	flagJSON    bool
)

// cfg is loaded once per invocation by the root PersistentPreRunE.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "driftwatch",
	Short:         "driftwatch tracks architectural drift in a codebase",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root := flagProject
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			root = wd
		}
		loaded, err := config.Load(root)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON")
}

// Execute runs the CLI and returns a process exit code.
func Execute(args []string) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "driftwatch: %v\n", err)
		return 1
	}
	return 0
}

// openUnified initializes the unified store for the configured project.
func openUnified() (*unified.UnifiedStore, error) {
	s := unified.New(cfg.DriftDir()).WithDBFileName(cfg.DBFileName)
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// reportErrors surfaces background save failures, which otherwise have no
// caller to return to.
var reportErrors = store.ObserverFunc(func(ev store.Event) {
	if ev.Type == store.EventError && ev.Err != nil {
		fmt.Fprintf(os.Stderr, "driftwatch: store: %v\n", ev.Err)
	}
})

// openPatterns loads the pattern file store.
func openPatterns() (*store.PatternStore, error) {
	ps := store.NewPatternStore(cfg.DriftDir())
	ps.Tune(cfg.Backups, cfg.Debounce())
	ps.Subscribe(reportErrors)
	if err := ps.Load(); err != nil {
		return nil, err
	}
	return ps, nil
}

// openContracts loads the contract file store.
func openContracts() (*store.ContractStore, error) {
	cs := store.NewContractStore(cfg.DriftDir())
	cs.Tune(cfg.Backups, cfg.Debounce())
	cs.Subscribe(reportErrors)
	if err := cs.Load(); err != nil {
		return nil, err
	}
	return cs, nil
}

// emit prints v as indented JSON when --json is set, otherwise calls
// the human formatter.
func emit(v any, human func()) error {
	if flagJSON {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	human()
	return nil
}
