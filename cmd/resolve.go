package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/cost"
	"github.com/sells-group/profile-finder/internal/engine"
	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/store"
	"github.com/sells-group/profile-finder/internal/tabular"
)

var (
	resolveInput      string
	resolveOutput     string
	resolveLimit      int
	resolveSerpAPIKey string
	resolveCosine     float64
	resolveFuzzy      float64
	resolvePersist    bool
	resolveQuiet      bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a roster of people to professional profiles",
	Long: `Reads people from a CSV or XLSX file, searches for each person's profile
through the configured provider chain and writes the scored results to a
CSV, XLSX or JSON file (by extension) or to stdout as CSV.`,
	Annotations: map[string]string{configModeKey: "resolve"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		people, err := tabular.ReadPeopleFile(resolveInput)
		if err != nil {
			return eris.Wrap(err, "read input")
		}

		th := cfg.Scoring.Thresholds()
		if resolveCosine > 0 {
			th.Cosine = resolveCosine
		}
		if resolveFuzzy > 0 {
			th.Fuzzy = resolveFuzzy
		}

		var (
			st   store.Store
			opts []engine.Option
		)
		if resolvePersist {
			if err := cfg.Validate("store"); err != nil {
				return err
			}
			st, err = initStore(ctx, cfg)
			if err != nil {
				return err
			}
			opts = append(opts, (&batchRecorder{st: st}).options()...)
		}
		if !resolveQuiet {
			opts = append(opts, engine.WithOnResult(progressPrinter(os.Stderr)))
		}

		env, err := initEnv(cfg, st, opts...)
		if err != nil {
			if st != nil {
				_ = st.Close()
			}
			return err
		}
		defer env.Close()

		if err := runResolve(ctx, env.Orchestrator, engine.Batch{
			People:     people,
			Thresholds: th,
			Credential: resolveSerpAPIKey,
			Limit:      resolveLimit,
			MaxResults: cfg.Search.MaxResults,
		}, resolveOutput); err != nil {
			return err
		}
		printUsage(os.Stderr, env.Usage())
		return nil
	},
}

// batchRunner is the orchestrator surface runResolve needs.
type batchRunner interface {
	Start(ctx context.Context, b engine.Batch) (string, error)
	Stop() int
	Wait(ctx context.Context) error
	State() engine.BatchState
}

// runResolve runs one batch to completion and writes its results. An
// interrupt stops the batch and still writes what was resolved.
func runResolve(ctx context.Context, orch batchRunner, b engine.Batch, output string) error {
	id, err := orch.Start(ctx, b)
	if err != nil {
		return eris.Wrap(err, "start batch")
	}

	if err := orch.Wait(ctx); err != nil {
		cancelled := orch.Stop()
		zap.L().Warn("interrupted, stopping batch",
			zap.String("batch_id", id),
			zap.Int("cancelled", cancelled),
		)
		waitCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := orch.Wait(waitCtx); err != nil {
			return eris.Wrap(err, "wait for in-flight lookups")
		}
	}

	state := orch.State()
	if output == "" {
		if err := tabular.WriteResultsCSV(os.Stdout, state.CompletedResults); err != nil {
			return err
		}
	} else if err := tabular.WriteResultsFile(output, state.CompletedResults); err != nil {
		return err
	}

	printSummary(os.Stderr, state, output)
	return nil
}

func progressPrinter(w io.Writer) func(model.MatchResult, engine.Progress) {
	return func(r model.MatchResult, p engine.Progress) {
		eta := "-"
		if p.ETASeconds > 0 {
			eta = p.ETA().Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "[%d/%d %3.0f%%] %-30s %-11s eta %s\n",
			p.Completed, p.Total, p.Percent, truncate(r.FirstName+" "+r.LastName, 30), r.Status, eta)
	}
}

func printSummary(w io.Writer, s engine.BatchState, output string) {
	rec := s.Record()
	dest := output
	if dest == "" {
		dest = "stdout"
	}
	_, _ = fmt.Fprintf(w, "\nBatch %s %s: %s of %s resolved, %s matched, %s errors (started %s) -> %s\n",
		truncateID(rec.ID),
		rec.Status,
		humanize.Comma(int64(rec.Completed)),
		humanize.Comma(int64(rec.Total)),
		humanize.Comma(int64(rec.MatchCount)),
		humanize.Comma(int64(rec.ErrorCount)),
		humanize.Time(rec.StartedAt),
		dest,
	)
}

// printUsage reports billable calls and their estimated cost.
func printUsage(w io.Writer, r cost.Report) {
	if r.TotalRequests() == 0 && len(r.Models) == 0 {
		return
	}
	for _, s := range r.Searches {
		_, _ = fmt.Fprintf(w, "  %-10s %s requests  $%.4f\n", s.Provider, humanize.Comma(int64(s.Requests)), s.CostUSD)
	}
	for _, m := range r.Models {
		_, _ = fmt.Fprintf(w, "  %-10s %s in / %s out tokens  $%.4f\n",
			m.Model, humanize.Comma(m.InputTokens), humanize.Comma(m.OutputTokens), m.CostUSD)
	}
	_, _ = fmt.Fprintf(w, "Estimated cost: $%.2f\n", r.TotalUSD)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveInput, "input", "i", "", "roster file (.csv or .xlsx)")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "", "results file (.csv, .xlsx or .json); stdout when empty")
	resolveCmd.Flags().IntVar(&resolveLimit, "limit", 0, "resolve at most this many people (0 = all)")
	resolveCmd.Flags().StringVar(&resolveSerpAPIKey, "serpapi-key", "", "SerpAPI key for this run (overrides SERPAPI_KEY)")
	resolveCmd.Flags().Float64Var(&resolveCosine, "cosine-threshold", 0, "cosine acceptance threshold (default from config)")
	resolveCmd.Flags().Float64Var(&resolveFuzzy, "fuzzy-threshold", 0, "fuzzy acceptance threshold (default from config)")
	resolveCmd.Flags().BoolVar(&resolvePersist, "persist", false, "record the batch, results and dead letters in the store")
	resolveCmd.Flags().BoolVarP(&resolveQuiet, "quiet", "q", false, "suppress per-person progress lines")
	_ = resolveCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(resolveCmd)
}
