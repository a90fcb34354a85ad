package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/internal/valuation"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and reset surfaced-deal memory",
	Long:  "The planner skips deals surfaced on earlier hunts. These commands show and clear that memory.",
}

// -- memory list --

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List surfaced deals feeding the planner memory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := readyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")

		deals, err := st.ListSurfacedDeals(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "memory list")
		}
		if len(deals) == 0 {
			fmt.Fprintln(os.Stderr, "No surfaced deals.")
			return nil
		}

		formatDealsList(os.Stdout, deals)
		return nil
	},
}

// -- memory clear --

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all surfaced deals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := readyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ClearSurfacedDeals(ctx)
		if err != nil {
			return eris.Wrap(err, "memory clear")
		}

		fmt.Printf("Cleared %d surfaced deal(s).\n", n)
		return nil
	},
}

func init() {
	memoryListCmd.Flags().Int("limit", 50, "max number of deals to display")

	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryClearCmd)
	rootCmd.AddCommand(memoryCmd)
}

// formatDealsList writes a tabular list of surfaced deals to w.
func formatDealsList(out io.Writer, deals []model.SurfacedDeal) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tDESCRIPTION\tPRICE\tESTIMATE\tDISCOUNT\tSURFACED\tURL")
	_, _ = fmt.Fprintln(w, "---\t-----------\t-----\t--------\t--------\t--------\t---")

	for _, d := range deals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(d.RunID),
			clip(d.Deal.Description, 40),
			valuation.FormatUSD(d.Deal.Price),
			valuation.FormatUSD(d.Estimate),
			valuation.FormatUSD(d.Discount),
			d.SurfacedAt.Format("2006-01-02 15:04"),
			d.Deal.URL,
		)
	}
	_ = w.Flush()
}
