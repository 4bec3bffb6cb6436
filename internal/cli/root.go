package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/policy-radar/internal/bootstrap"
	"github.com/kirillkom/policy-radar/internal/config"
	"github.com/kirillkom/policy-radar/internal/observability/logging"
)

var (
	cfgFile  string
	logLevel string
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:   "policyrag",
	Short: "Policy Radar - question answering over policy documents",
	Long: `policyrag builds and queries the Policy Radar vector index.

Example usage:
  policyrag index --input "data/*.jsonl"     # Rebuild the index from JSONL exports
  policyrag import --input "data/*.jsonl"    # Load JSONL exports into Postgres
  policyrag query -q "hydrogen strategy"     # Answer a question with sources
  policyrag search -q "carbon pricing" -k 5  # Show raw retrieval results
  policyrag mcp                              # Serve the index as MCP tools on stdio`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		path := cfgFile
		if path == "" {
			path = os.Getenv("POLICY_RADAR_CONFIG")
		}
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded

		// stdout carries command output (and the MCP stream), so logs go to stderr.
		slog.SetDefault(logging.NewTextLogger(os.Stderr, cfg.LogLevel))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $POLICY_RADAR_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// openApp wires the application for a one-shot command. With load set the
// persisted index must load, otherwise the command fails.
func openApp(ctx context.Context, opts bootstrap.Options, load bool) (*bootstrap.App, error) {
	app, err := bootstrap.New(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	if load {
		if err := app.Service.Reload(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to load index from %s: %w", cfg.IndexPath, err)
		}
	}
	return app, nil
}
