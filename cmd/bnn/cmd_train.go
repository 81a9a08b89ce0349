package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a network and report test accuracy",
	Long: `Train the configured network for the configured number of epochs, evaluating
on the held-out split after every epoch. The weights are written to
training.checkpoint when set and the run report to output.store_path.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	s, release, err := openSession("train", cfg, logger)
	if err != nil {
		return err
	}
	defer release()
	defer s.serveMetrics()()

	if err := s.prepare(""); err != nil {
		return err
	}
	report := s.result()
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: test accuracy %.4f after %d epochs\n",
		report.ID, report.Accuracy, len(report.Epochs))
	return s.save(cmd.Context())
}
