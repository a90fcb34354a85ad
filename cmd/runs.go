package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/internal/store"
	"github.com/bargainlabs/dealhound/internal/valuation"
)

// statsScanLimit caps how much history the stats command pulls in one go.
const statsScanLimit = 10000

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect hunt run history",
	Long:  "Commands for listing, viewing, summarizing, and exporting hunt runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent hunts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := readyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, listFilter(cmd))
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No hunts recorded yet.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Dump one run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := readyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize hunts over a time window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := readyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.RunFilter{Limit: statsScanLimit}
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := readyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out, _ := cmd.Flags().GetString("out")

		runs, err := st.ListRuns(ctx, listFilter(cmd))
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "Nothing to export.")
			return nil
		}

		if err := writeRunsXLSX(runs, out); err != nil {
			return err
		}

		zap.L().Info("runs exported",
			zap.Int("count", len(runs)),
			zap.String("file", out),
		)
		return nil
	},
}

// listFilter reads the status and limit flags shared by list and export.
func listFilter(cmd *cobra.Command) store.RunFilter {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	return store.RunFilter{
		Status: model.RunStatus(status),
		Limit:  limit,
	}
}

func init() {
	runsListCmd.Flags().String("status", "", "only show runs in this state (queued, planning, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "how many runs to show")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "window to summarize, e.g. 24h or 168h")

	runsExportCmd.Flags().String("status", "", "only export runs in this state")
	runsExportCmd.Flags().Int("limit", 1000, "how many runs to export")
	runsExportCmd.Flags().String("out", "runs.xlsx", "workbook path to write")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats is the rollup printed by the stats command.
type runStats struct {
	Total        int
	Complete     int
	Failed       int
	Other        int
	Surfaced     int
	InputTokens  int
	OutputTokens int
	TotalCost    float64
	AvgDurSecs   float64
}

// computeRunStats rolls a window of runs up into counts, spend, and the
// mean wall time of the hunts that finished cleanly.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	var completeDur time.Duration

	s.Total = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			completeDur += r.UpdatedAt.Sub(r.CreatedAt)
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Other++
		}
		if r.Opportunity != nil {
			s.Surfaced++
		}
		s.InputTokens += r.Usage.InputTokens
		s.OutputTokens += r.Usage.OutputTokens
		s.TotalCost += r.Usage.Cost
	}

	if s.Complete > 0 {
		s.AvgDurSecs = completeDur.Seconds() / float64(s.Complete)
	}
	return s
}

// formatRunsList renders one row per hunt. Failed hunts show their error
// in the summary column.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSUMMARY\tTOKENS\tCOST\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t------\t----\t-------\t--------")

	for _, r := range runs {
		summary := r.Summary
		if r.Status == model.RunStatusFailed && r.Error != "" {
			summary = r.Error
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			clip(summary, 48),
			r.Usage.InputTokens+r.Usage.OutputTokens,
			valuation.FormatUSD(r.Usage.Cost),
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second),
		)
	}
	_ = w.Flush()
}

// formatRunStats renders the stats rollup as a label/value table.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "In flight:\t%d\n", s.Other)
	_, _ = fmt.Fprintf(w, "Deals surfaced:\t%d\n", s.Surfaced)
	_, _ = fmt.Fprintf(w, "Tokens:\t%d in / %d out\n", s.InputTokens, s.OutputTokens)
	_, _ = fmt.Fprintf(w, "Total cost:\t%s\n", valuation.FormatUSD(s.TotalCost))
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg hunt time:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first block for table display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// clip shortens s to at most max characters, marking the cut with an
// ellipsis.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// writeRunsXLSX writes runs to an XLSX workbook at path.
func writeRunsXLSX(runs []model.Run, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("runs")
	if err != nil {
		return eris.Wrap(err, "runs export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"ID", "STATUS", "SUMMARY", "DEAL_URL", "DEAL_PRICE", "ESTIMATE",
		"DISCOUNT", "INPUT_TOKENS", "OUTPUT_TOKENS", "COST_USD", "CREATED_AT", "DURATION_SECS",
	} {
		header.AddCell().SetString(h)
	}

	for _, r := range runs {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(string(r.Status))
		row.AddCell().SetString(r.Summary)
		if r.Opportunity != nil {
			row.AddCell().SetString(r.Opportunity.Deal.URL)
			row.AddCell().SetFloat(r.Opportunity.Deal.Price)
			row.AddCell().SetFloat(r.Opportunity.Estimate)
			row.AddCell().SetFloat(r.Opportunity.Discount)
		} else {
			for i := 0; i < 4; i++ {
				row.AddCell()
			}
		}
		row.AddCell().SetInt(r.Usage.InputTokens)
		row.AddCell().SetInt(r.Usage.OutputTokens)
		row.AddCell().SetFloat(r.Usage.Cost)
		row.AddCell().SetString(r.CreatedAt.Format(time.RFC3339))
		row.AddCell().SetFloat(r.UpdatedAt.Sub(r.CreatedAt).Seconds())
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "runs export: save workbook")
	}
	return nil
}
