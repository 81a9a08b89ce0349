package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/born-ml/bnn/internal/store"
)

var storePath string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored run reports",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a stored run report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsCmd.PersistentFlags().StringVar(&storePath, "store", "",
		"Report store directory (defaults to output.store_path)")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
}

func openStore() (*store.Store, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := storePath
	if path == "" {
		path = cfg.Output.StorePath
	}
	if path == "" {
		return nil, fmt.Errorf("no report store configured, pass --store or set output.store_path")
	}
	return store.Open(path, logger)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	reports, err := s.List(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tcreated\tcommand\tepochs\taccuracy")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.4f\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Command, len(r.Epochs), r.Accuracy)
	}
	return tw.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
