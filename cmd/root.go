package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/config"
)

// configModeKey is the command annotation naming the config.Validate mode a
// command needs. Subcommands inherit their parent's mode.
const configModeKey = "config_mode"

var cfg *config.Config

var (
	rootLogLevel  string
	rootLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "profile-finder",
	Short: "Batch professional profile resolution",
	Long: `Resolves a roster of people (name plus affiliation) to public professional
profiles. Each person is searched through a SerpAPI, Bing and Jina provider
chain, candidates are scored by semantic and fuzzy name similarity, and
matches are exported with title, location and an income estimate.

Configuration comes from ./config.yaml and PROFILE_* environment variables.
"resolve" needs search settings, "serve" needs search and store settings,
and "runs" and "dlq" need only the store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyLogFlags(cmd, &c.Log)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if mode := configMode(cmd); mode != "" {
			if err := cfg.Validate(mode); err != nil {
				return err
			}
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("mode", configMode(cmd)),
			zap.String("store", cfg.Store.Driver),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// configMode returns the nearest config mode annotation on cmd or its
// parents.
func configMode(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if mode, ok := c.Annotations[configModeKey]; ok {
			return mode
		}
	}
	return ""
}

// applyLogFlags overrides the configured log settings with explicit flags.
func applyLogFlags(cmd *cobra.Command, lc *config.LogConfig) {
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		lc.Level = rootLogLevel
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		lc.Format = rootLogFormat
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "", "log format override (json or console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
