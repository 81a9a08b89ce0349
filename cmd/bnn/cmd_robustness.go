package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/born-ml/bnn/internal/wrapper"
)

var robustnessCmd = &cobra.Command{
	Use:   "robustness",
	Short: "Measure uncertainty under pixel shuffling, white noise and FGSM",
	Long: `Train the configured network (or load --checkpoint) and sweep the perturbation
levels of evaluation.sweeps. For every level the accuracy and -log(mean
determinant score) are printed; the full per-example scores are stored in the
run report.`,
	Args: cobra.NoArgs,
	RunE: runRobustness,
}

func runRobustness(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	s, release, err := openSession("robustness", cfg, logger)
	if err != nil {
		return err
	}
	defer release()
	defer s.serveMetrics()()

	if err := s.prepare(checkpoint); err != nil {
		return err
	}

	sweeps := cfg.Evaluation.Sweeps
	samples := cfg.Evaluation.Samples
	results := make(map[string][]wrapper.SweepResult, 3)

	if results["shuffle"], err = s.ShuffleTest(sweeps.ShufflePercentages, samples); err != nil {
		return err
	}
	if results["noise"], err = s.WhiteNoiseTest(sweeps.NoiseLevels, samples); err != nil {
		return err
	}
	if results["fgsm"], err = s.FGSMTest(sweeps.Epsilons, samples); err != nil {
		return err
	}
	s.result().Robustness = results

	out := cmd.OutOrStdout()
	for _, test := range []string{"shuffle", "noise", "fgsm"} {
		printSweep(out, test, results[test])
	}
	return s.save(cmd.Context())
}

func printSweep(out io.Writer, test string, results []wrapper.SweepResult) {
	fmt.Fprintf(out, "\n%s\n", test)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "level\taccuracy\t-log(mean score)\tcorrect\twrong")
	for _, r := range results {
		fmt.Fprintf(tw, "%g\t%.4f\t%.4f\t%d\t%d\n", r.Level, r.Accuracy, r.LogMeanScore, len(r.Correct), len(r.Wrong))
	}
	_ = tw.Flush()
}
