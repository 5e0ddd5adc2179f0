package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/profile-finder/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:         "dlq",
	Short:       "Inspect people whose lookups failed for good",
	Annotations: map[string]string{configModeKey: "store"},
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batchID, _ := cmd.Flags().GetString("batch")
		errType, _ := cmd.Flags().GetString("error-type")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListDeadLetters(ctx, resilience.DeadLetterFilter{
			BatchID:   batchID,
			ErrorType: errType,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead letter queue is empty.")
			return nil
		}
		formatDeadLetters(os.Stdout, entries)
		return nil
	},
}

var dlqRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove dead letters after handling them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, id := range args {
			if err := st.RemoveDeadLetter(ctx, id); err != nil {
				return eris.Wrapf(err, "dlq remove %s", id)
			}
		}
		fmt.Fprintf(os.Stderr, "Removed %d dead letter(s).\n", len(args))
		return nil
	},
}

var dlqCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count dead letters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.CountDeadLetters(ctx)
		if err != nil {
			return eris.Wrap(err, "dlq count")
		}
		fmt.Fprintln(os.Stdout, n)
		return nil
	},
}

func init() {
	dlqListCmd.Flags().String("batch", "", "filter by batch ID")
	dlqListCmd.Flags().String("error-type", "", "filter by error type (transient, permanent)")
	dlqListCmd.Flags().Int("limit", 50, "max number of entries to display")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRemoveCmd)
	dlqCmd.AddCommand(dlqCountCmd)
	rootCmd.AddCommand(dlqCmd)
}

// formatDeadLetters writes a tabular list of dead letters to w.
func formatDeadLetters(out io.Writer, entries []resilience.DeadLetter) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tBATCH\tPERSON\tAFFILIATION\tTYPE\tATTEMPTS\tCREATED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-----------\t----\t--------\t-------\t-----")

	for _, d := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			d.ID,
			truncateID(d.BatchID),
			truncate(d.Query.FullName(), 30),
			truncate(d.Query.Affiliation, 30),
			d.ErrorType,
			d.Attempts,
			d.CreatedAt.Format("2006-01-02 15:04"),
			truncate(d.Error, 60),
		)
	}
	_ = w.Flush()
}
