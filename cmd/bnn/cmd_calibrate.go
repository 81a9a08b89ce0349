package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Reliability diagram, temperature scaling and total variance",
	Long: `Train the configured network (or load --checkpoint), bucket the test-set
confidences into evaluation.bins buckets, fit a temperature and report the mean
total predictive covariance.`,
	Args: cobra.NoArgs,
	RunE: runCalibrate,
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	s, release, err := openSession("calibrate", cfg, logger)
	if err != nil {
		return err
	}
	defer release()
	defer s.serveMetrics()()

	if err := s.prepare(checkpoint); err != nil {
		return err
	}

	samples, bins := cfg.Evaluation.Samples, cfg.Evaluation.Bins
	reliability, err := s.ReliabilityDiagram(samples, bins, 1)
	if err != nil {
		return err
	}
	temperature, err := s.TemperatureScaling(samples, bins)
	if err != nil {
		return err
	}
	variance, err := s.TotalVariance(samples)
	if err != nil {
		return err
	}

	report := s.result()
	report.Reliability = &reliability
	report.Temperature = &temperature
	report.TotalVariance = rows(variance)

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "bucket\tconfidence\taccuracy")
	for b := range reliability.Confidence {
		fmt.Fprintf(tw, "%d\t%.4f\t%.4f\n", b+1, reliability.Confidence[b], reliability.Accuracy[b])
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "\nECE %.4f  MCE %.4f  NLL %.4f\n", reliability.ECE, reliability.MCE, reliability.NLL)
	fmt.Fprintf(out, "temperature %.4f  ECE %.4f -> %.4f  (%d steps)\n",
		temperature.Temperature, temperature.InitialECE, temperature.ECE, temperature.Steps)
	fmt.Fprintf(out, "total variance\n%v\n", mat.Formatted(variance, mat.Prefix(""), mat.Squeeze()))
	return s.save(cmd.Context())
}

func rows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
