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

	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/store"
	"github.com/sells-group/profile-finder/internal/tabular"
)

var runsCmd = &cobra.Command{
	Use:         "runs",
	Short:       "Inspect batch history",
	Long:        "Commands for listing, viewing, exporting and summarizing persisted batches.",
	Annotations: map[string]string{configModeKey: "store"},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		batches, err := st.ListBatches(ctx, store.BatchFilter{
			Status: model.BatchStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(batches) == 0 {
			fmt.Fprintln(os.Stderr, "No batches found.")
			return nil
		}

		formatBatchList(os.Stdout, batches)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show a batch summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetBatch(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export <batch-id>",
	Short: "Export a batch's results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetBatch(ctx, args[0]); err != nil {
			return eris.Wrap(err, "runs export")
		}
		results, err := st.ListResults(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs export")
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return tabular.WriteResultsCSV(os.Stdout, results)
		}
		if err := tabular.WriteResultsFile(output, results); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d results to %s\n", len(results), output)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate batch statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		batches, err := st.ListBatches(ctx, store.BatchFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		formatBatchStats(os.Stdout, computeBatchStats(batches, cutoff))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by batch status (running, complete, stopped)")
	runsListCmd.Flags().Int("limit", 50, "max number of batches to display")

	runsExportCmd.Flags().StringP("output", "o", "", "results file (.csv, .xlsx or .json); stdout CSV when empty")

	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h); 0 for all")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// batchStats holds aggregate statistics computed from a set of batches.
type batchStats struct {
	Batches    int
	Complete   int
	Stopped    int
	Running    int
	People     int
	Resolved   int
	Matches    int
	Errors     int
	AvgDurSecs float64
}

// MatchRate is the share of resolved people with a profile.
func (s batchStats) MatchRate() float64 {
	if s.Resolved == 0 {
		return 0
	}
	return float64(s.Matches) / float64(s.Resolved) * 100
}

// computeBatchStats aggregates batches started at or after cutoff.
func computeBatchStats(batches []model.BatchRecord, cutoff time.Time) batchStats {
	var s batchStats

	var totalDur time.Duration
	var durCount int

	for _, b := range batches {
		if !cutoff.IsZero() && b.StartedAt.Before(cutoff) {
			continue
		}
		s.Batches++
		s.People += b.Total
		s.Resolved += b.Completed
		s.Matches += b.MatchCount
		s.Errors += b.ErrorCount

		switch b.Status {
		case model.BatchStatusComplete:
			s.Complete++
		case model.BatchStatusStopped:
			s.Stopped++
		default:
			s.Running++
		}
		if b.FinishedAt != nil {
			totalDur += b.FinishedAt.Sub(b.StartedAt)
			durCount++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatBatchList writes a tabular list of batches to w.
func formatBatchList(out io.Writer, batches []model.BatchRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tMATCHES\tERRORS\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t--------\t-------\t------\t-------\t--------")

	for _, b := range batches {
		dur := ""
		if b.FinishedAt != nil {
			dur = b.FinishedAt.Sub(b.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%d\t%s\t%s\n",
			b.ID,
			b.Status,
			b.Completed, b.Total,
			b.MatchCount,
			b.ErrorCount,
			b.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatBatchStats writes aggregate stats to w.
func formatBatchStats(out io.Writer, s batchStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total batches:\t%d\n", s.Batches)
	_, _ = fmt.Fprintf(w, "  Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "  Stopped:\t%d\n", s.Stopped)
	_, _ = fmt.Fprintf(w, "  Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "People:\t%d\n", s.People)
	_, _ = fmt.Fprintf(w, "Resolved:\t%d\n", s.Resolved)
	_, _ = fmt.Fprintf(w, "Matches:\t%d (%.1f%%)\n", s.Matches, s.MatchRate())
	_, _ = fmt.Fprintf(w, "Errors:\t%d\n", s.Errors)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
