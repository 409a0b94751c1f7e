package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/calibkit/calib/internal/ga"
	"github.com/calibkit/calib/internal/param"
)

var traceDir string

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Print the generation trace of a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := ga.ReadTrace(filepath.Clean(traceDir))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "gen %-4d best %-14s median %-14s runs %s\n",
				e.Generation,
				param.Scientific(e.Best, 6),
				param.Scientific(e.Median, 6),
				humanize.Comma(int64(e.Evals)))
		}
		if n := len(entries); n > 0 {
			first, last := entries[0], entries[n-1]
			fmt.Fprintf(out, "%d generations, best %s -> %s over %s\n",
				n, param.Scientific(first.Best, 6), param.Scientific(last.Best, 6),
				humanize.RelTime(first.Timestamp, last.Timestamp, "", ""))
		}
		return nil
	},
}

func init() {
	traceCmd.Flags().StringVar(&traceDir, "dir", ".", "Run directory holding trace.jsonl")
	rootCmd.AddCommand(traceCmd)
}
