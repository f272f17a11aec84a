package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/unified"
)

var flagCallsOut bool

var callsCmd = &cobra.Command{
	Use:   "calls <function>",
	Short: "Show callers of a function from the synced call graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		us, err := openUnified()
		if err != nil {
			return err
		}
		defer us.Close()

		var sites []unified.CallSite
		if flagCallsOut {
			sites, err = us.CallGraph.OutgoingCalls(args[0])
		} else {
			sites, err = us.CallGraph.IncomingCalls(args[0])
		}
		if err != nil {
			return err
		}
		return emit(sites, func() {
			if len(sites) == 0 {
				fmt.Println("no calls recorded; run sync first")
				return
			}
			for _, s := range sites {
				if flagCallsOut {
					fmt.Printf("-> %s (%s:%d)\n", s.Callee, s.File, s.Line)
				} else {
					fmt.Printf("<- %s (%s:%d)\n", s.CallerName, s.File, s.Line)
				}
			}
		})
	},
}

func init() {
	callsCmd.Flags().BoolVar(&flagCallsOut, "out", false, "show outgoing calls instead of callers")
	rootCmd.AddCommand(callsCmd)
}
