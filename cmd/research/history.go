package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/research"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/store"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent research runs, or print the report of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b := openBackends(cmd.Context(), cfg)
			defer b.Close()
			runs, err := requireHistory(b)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				rec, err := runs.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printStoredReport(cmd.OutOrStdout(), rec)
			}
			list, err := runs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}

func printRuns(w io.Writer, runs []store.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No research runs recorded yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tCONFIDENCE\tRESULTS\tQUERY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\n",
			r.RunID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Confidence, r.Results, r.Query)
	}
	return tw.Flush()
}

func printStoredReport(w io.Writer, rec *store.RunRecord) error {
	var out research.Outcome
	if err := json.Unmarshal(rec.Outcome, &out); err != nil {
		return fmt.Errorf("decoding stored run %s: %w", rec.RunID, err)
	}
	if out.Report == "" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	_, err := io.WriteString(w, out.Report)
	return err
}
