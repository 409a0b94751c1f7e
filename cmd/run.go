package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/calibkit/calib/internal/archive"
	"github.com/calibkit/calib/internal/config"
	"github.com/calibkit/calib/internal/ga"
	"github.com/calibkit/calib/internal/param"
)

var (
	configPath  string
	workers     int
	seedFlag    int64
	archivePath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a calibration",
	Long: `Runs the genetic algorithm against the model described by the input
file. Templates, extra files and the evaluation logs live in the input
file's directory; each worker evaluates in its own subdirectory.`,
	RunE: runCalibration,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "calib.in", "Calibration input file")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Evaluation workers (1 = serial)")
	runCmd.Flags().Int64Var(&seedFlag, "seed", 0, "Random seed override (0 = from input file)")
	runCmd.Flags().StringVar(&archivePath, "archive", "", "Sqlite archive for per-generation bests (optional)")
	rootCmd.AddCommand(runCmd)
}

func runCalibration(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if seedFlag != 0 {
		cfg.GA.Seed = seedFlag
	}
	root, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return err
	}

	slog.Info("starting calibration",
		"config", configPath, "workers", workers,
		"population", cfg.GA.PopulationSize, "generations", cfg.GA.NumGenerations,
		"seed", cfg.GA.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := ga.NewDriver(cfg, root, workers)
	if err != nil {
		return err
	}

	if archivePath != "" {
		store := archive.NewStore(archivePath)
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer store.Close()
		driver.SetArchive(store)
	}

	res, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	printResult(cmd, driver, res)
	return nil
}

func printResult(cmd *cobra.Command, driver *ga.Driver, res *ga.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "stopped:     %s\n", res.Stopped)
	fmt.Fprintf(out, "generations: %d\n", res.Generations)
	fmt.Fprintf(out, "model runs:  %s\n", humanize.Comma(int64(res.Evals)))
	if res.CacheHits > 0 {
		fmt.Fprintf(out, "cache hits:  %s\n", humanize.Comma(int64(res.CacheHits)))
	}
	fmt.Fprintf(out, "elapsed:     %s\n", res.Elapsed.Round(res.Elapsed/100+1))

	if res.BestVals == nil {
		fmt.Fprintln(out, "no evaluations completed")
		return
	}
	master := driver.Master()
	fmt.Fprintf(out, "objective:   %s\n", param.Scientific(res.Best, 6))
	for _, p := range master.Params.Params() {
		fmt.Fprintf(out, "  %-20s %s\n", p.Name(), param.Scientific(p.ConvertOut(), 6))
	}
	fmt.Fprintf(out, "session:     %s\n", master.Session())
}
