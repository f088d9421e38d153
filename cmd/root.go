package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/lexiz/internal/config"
	"github.com/abhisek/lexiz/internal/logging"
	"github.com/abhisek/lexiz/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "lexiz",
	Short: "Streaming language-practice evaluations over a protected LLM",
	Long: "lexiz streams sentence evaluations and example sentences from a language model as\n" +
		"newline-delimited JSON frames, behind a shared rate limiter and circuit breaker.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overrides LEXIZ_CONFIG env var)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides LEXIZ_DB env var)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(circuitCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads configuration, letting --db win over file and env.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Store.Path = p
	}
	return cfg, nil
}

// newLogger builds the process logger. Interactive commands pass a level
// floor so info lines do not interleave with their output.
func newLogger(cfg *config.Config, floor string) (*slog.Logger, error) {
	lc := cfg.Logging
	if floor != "" {
		if want, _ := logging.ParseLevel(floor); want > mustLevel(lc.Level) {
			lc.Level = floor
		}
	}
	logger, err := logging.New(lc, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, nil
}

func mustLevel(s string) slog.Level {
	l, _ := logging.ParseLevel(s)
	return l
}

// openStore resolves the database path and opens it.
func openStore(cfg *config.Config) (*store.Store, error) {
	path := cfg.Store.Path
	if path != "" {
		if err := store.EnsureDir(path); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	} else {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
