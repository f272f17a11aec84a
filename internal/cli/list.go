package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
	"github.com/mehmetkoksal-w/driftwatch/internal/store"
)

var (
	flagListStatus     string
	flagListCategory   string
	flagListText       string
	flagListMinConf    float64
	flagListSort       string
	flagListDesc       bool
	flagListLimit      int
	flagListOffset     int
	flagListMismatches bool
)

func listQuery() store.Query {
	q := store.Query{
		Filter: store.Filter{
			Text:          flagListText,
			MinConfidence: flagListMinConf,
			HasMismatches: flagListMismatches,
		},
		Sort: store.Sort{Field: flagListSort, Desc: flagListDesc},
		Page: store.Page{Offset: flagListOffset, Limit: flagListLimit},
	}
	if flagListStatus != "" {
		q.Filter.Statuses = []drift.Status{drift.Status(flagListStatus)}
	}
	if flagListCategory != "" {
		q.Filter.Categories = []drift.Category{drift.Category(flagListCategory)}
	}
	return q
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := openPatterns()
		if err != nil {
			return err
		}
		defer ps.Close()
		res := ps.Query(listQuery())
		return emit(res, func() {
			for _, p := range res.Items {
				fmt.Printf("%-20s %-11s %-12s %.2f  %s\n",
					p.ID, p.Status, p.Category, p.Confidence.Score, p.Name)
			}
			fmt.Printf("%d of %d\n", len(res.Items), res.Total)
			if res.HasMore {
				fmt.Println("(more available, use --offset)")
			}
		})
	},
}

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := openContracts()
		if err != nil {
			return err
		}
		defer cs.Close()
		res := cs.Query(listQuery())
		return emit(res, func() {
			for _, c := range res.Items {
				fmt.Printf("%-20s %-11s %-6s %-30s %d mismatches\n",
					c.ID, c.Status, c.Method, c.Endpoint, len(c.Mismatches))
			}
			fmt.Printf("%d of %d\n", len(res.Items), res.Total)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{patternsCmd, contractsCmd} {
		cmd.Flags().StringVar(&flagListStatus, "status", "", "filter by status")
		cmd.Flags().StringVar(&flagListCategory, "category", "", "filter by category")
		cmd.Flags().StringVar(&flagListText, "text", "", "substring match on name/endpoint")
		cmd.Flags().Float64Var(&flagListMinConf, "min-confidence", 0, "minimum confidence score")
		cmd.Flags().StringVar(&flagListSort, "sort", "", "sort field (name, category, confidence, lastSeen)")
		cmd.Flags().BoolVar(&flagListDesc, "desc", false, "sort descending")
		cmd.Flags().IntVar(&flagListLimit, "limit", 50, "page size")
		cmd.Flags().IntVar(&flagListOffset, "offset", 0, "page offset")
	}
	contractsCmd.Flags().BoolVar(&flagListMismatches, "mismatches", false, "only contracts with mismatches")
	rootCmd.AddCommand(patternsCmd, contractsCmd)
}
