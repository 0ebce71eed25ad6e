package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joelkehle/trendsim/internal/config"
	"github.com/joelkehle/trendsim/internal/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "trendsim",
	Short: "Deterministic what-if simulator for trend-driven campaigns",
	Long: `trendsim projects growth, ROI and risk ranges for a proposed campaign on a
social trend and turns them into a recommended posture (scale, test_small,
monitor or avoid) with guardrails.

Examples:
  trendsim simulate --input scenario.json --fixture trends.yaml
  trendsim serve --config trendsim.yaml
  trendsim agent --config trendsim.yaml
  trendsim scenarios list --trend-id trend-123
  trendsim report launch-a --format pdf --output launch-a.pdf`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		cfg = loaded
		logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
