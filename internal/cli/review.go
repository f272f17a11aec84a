package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

var flagReviewer string

var approveCmd = &cobra.Command{
	Use:   "approve <pattern-id>",
	Short: "Approve a discovered pattern for enforcement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := openPatterns()
		if err != nil {
			return err
		}
		defer ps.Close()
		p, err := ps.Approve(args[0], flagReviewer)
		if err != nil {
			return err
		}
		fmt.Printf("approved %s (%s)\n", p.ID, p.Name)
		return nil
	},
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore <pattern-id>",
	Short: "Ignore a pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := openPatterns()
		if err != nil {
			return err
		}
		defer ps.Close()
		p, err := ps.Ignore(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("ignored %s (%s)\n", p.ID, p.Name)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <contract-id>",
	Short: "Mark a contract as verified against both sides",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := openContracts()
		if err != nil {
			return err
		}
		defer cs.Close()
		c, err := cs.Verify(args[0], flagReviewer)
		if err != nil {
			return err
		}
		fmt.Printf("verified %s (%s %s)\n", c.ID, c.Method, c.Endpoint)
		return nil
	},
}

var mismatchCmd = &cobra.Command{
	Use:   "mismatch <contract-id>",
	Short: "Mark a contract's sides as disagreeing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := openContracts()
		if err != nil {
			return err
		}
		defer cs.Close()
		c, err := cs.MarkMismatch(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("marked mismatch %s (%s %s)\n", c.ID, c.Method, c.Endpoint)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <pattern-id>",
	Short: "Delete a pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := openPatterns()
		if err != nil {
			return err
		}
		defer ps.Close()
		if !ps.Delete(args[0]) {
			return fmt.Errorf("pattern %s: %w", args[0], drift.ErrNotFound)
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	approveCmd.Flags().StringVar(&flagReviewer, "by", "", "reviewer recorded on the approval")
	verifyCmd.Flags().StringVar(&flagReviewer, "by", "", "reviewer recorded on the verification")
	rootCmd.AddCommand(approveCmd, ignoreCmd, verifyCmd, mismatchCmd, deleteCmd)
}
