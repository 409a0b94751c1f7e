package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/calibkit/calib/internal/config"
	"github.com/calibkit/calib/internal/model"
	"github.com/calibkit/calib/internal/param"
)

var bestConfigPath string

var bestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the best evaluation in the run logs",
	Long: `Scans the OstModel logs next to the input file and prints the lowest
objective recorded, with its parameter values. Works on finished and
on still-running calibrations.`,
	RunE: showBest,
}

func init() {
	bestCmd.Flags().StringVar(&bestConfigPath, "config", "calib.in", "Calibration input file")
	rootCmd.AddCommand(bestCmd)
}

func showBest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(bestConfigPath)
	if err != nil {
		return err
	}
	root := filepath.Dir(bestConfigPath)

	nparam := len(cfg.Params) + len(cfg.Combos)
	ws, err := model.ScanWarmStart(root, nparam)
	if err != nil {
		return err
	}
	if ws == nil {
		return fmt.Errorf("no evaluation logs found in %s", root)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model runs: %d\n", ws.Runs)
	fmt.Fprintf(out, "objective:  %s\n", param.Scientific(ws.Objective, cfg.NumDigits))
	names := paramNames(cfg)
	for i, v := range ws.Best {
		fmt.Fprintf(out, "  %-20s %s\n", names[i], param.Scientific(v, cfg.NumDigits))
	}
	return nil
}

func paramNames(cfg *config.File) []string {
	names := make([]string, 0, len(cfg.Params)+len(cfg.Combos))
	for _, p := range cfg.Params {
		names = append(names, p.Name)
	}
	for _, c := range cfg.Combos {
		names = append(names, c.Name)
	}
	return names
}
