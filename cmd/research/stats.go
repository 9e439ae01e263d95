package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/service"
)

func statsCmd() *cobra.Command {
	var (
		dir    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the files a research run over a directory would index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, err := service.New(cfg)
			if err != nil {
				return err
			}
			stats, err := svc.Stats(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintf(out, "Files: %d\nTotal size: %d bytes\n\n", stats.TotalFiles, stats.TotalSize)
			exts := make([]string, 0, len(stats.CountsByExtension))
			for ext := range stats.CountsByExtension {
				exts = append(exts, ext)
			}
			sort.Slice(exts, func(i, j int) bool {
				ci, cj := stats.CountsByExtension[exts[i]], stats.CountsByExtension[exts[j]]
				if ci != cj {
					return ci > cj
				}
				return exts[i] < exts[j]
			})
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EXTENSION\tFILES")
			for _, ext := range exts {
				fmt.Fprintf(tw, "%s\t%d\n", ext, stats.CountsByExtension[ext])
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to inspect")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the statistics as JSON")
	return cmd
}
