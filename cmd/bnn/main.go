// Command bnn trains Bayesian neural networks and measures their uncertainty,
// robustness and calibration.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/bnn/internal/config"
)

const version = "v0.1.0"

var (
	configPath string
	logLevel   string
	device     string
	checkpoint string
)

var rootCmd = &cobra.Command{
	Use:   "bnn",
	Short: "Bayesian neural network training and uncertainty harness",
	Long: `bnn trains Bayesian or deterministic networks described by a YAML topology and
evaluates how their predictive uncertainty reacts to perturbed inputs.

Examples:
  bnn train --config experiment.yaml
  bnn robustness --config experiment.yaml --checkpoint model.born
  bnn calibrate --config experiment.yaml
  bnn runs list --store ./runs`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML or JSON experiment file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&device, "device", "cpu",
		"Compute device: cpu, or gpu on windows")

	for _, cmd := range []*cobra.Command{robustnessCmd, calibrateCmd} {
		cmd.Flags().StringVar(&checkpoint, "checkpoint", "",
			"Load weights from a checkpoint instead of training")
	}

	rootCmd.AddCommand(trainCmd, robustnessCmd, calibrateCmd, runsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the experiment file and installs the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.Output.LogLevel = logLevel
	}

	opts := &slog.HandlerOptions{Level: cfg.Output.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Output.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bnn %s\n", version)
	},
}
