package model

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/calibkit/calib/internal/param"
)

// WarmStart is what a previous run left behind: the best parameter
// vector seen (output frame), its objective, and the number of runs
// already spent.
type WarmStart struct {
	Best      []float64
	Objective float64
	Runs      int
}

// ScanWarmStart reads every OstModel*.txt log under dir and returns
// the best recorded evaluation. A nil result means no usable log was
// found and the run starts cold.
func ScanWarmStart(dir string, nparam int) (*WarmStart, error) {
	logs, err := filepath.Glob(filepath.Join(dir, "OstModel*.txt"))
	if err != nil {
		return nil, err
	}
	var ws *WarmStart
	for _, path := range logs {
		w, err := scanLog(path, nparam)
		if err != nil {
			return nil, fmt.Errorf("failed to read previous log %s: %w", path, err)
		}
		if w == nil {
			continue
		}
		if ws == nil {
			ws = w
			continue
		}
		ws.Runs += w.Runs
		if w.Objective < ws.Objective {
			ws.Objective = w.Objective
			ws.Best = w.Best
		}
	}
	if ws != nil {
		slog.Info("warm start from previous logs",
			"runs", ws.Runs, "objective", ws.Objective)
	}
	return ws, nil
}

func scanLog(path string, nparam int) (*WarmStart, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var w *WarmStart
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2+nparam {
			continue
		}
		run, err := strconv.Atoi(fields[0])
		if err != nil {
			continue // header or trailing garbage
		}
		obj, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		vals := make([]float64, nparam)
		ok := true
		for i := 0; i < nparam; i++ {
			if vals[i], err = strconv.ParseFloat(fields[2+i], 64); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if w == nil {
			w = &WarmStart{Best: vals, Objective: obj, Runs: run}
			continue
		}
		if run > w.Runs {
			w.Runs = run
		}
		if obj < w.Objective {
			w.Objective = obj
			w.Best = vals
		}
	}
	return w, sc.Err()
}

// Restore applies the warm-start vector to the parameter group,
// converting each logged value back into the search frame.
func (w *WarmStart) Restore(g *param.Group) {
	vals := make([]float64, len(w.Best))
	for i, p := range g.Params() {
		vals[i] = p.ConvertIn(w.Best[i])
	}
	if _, err := g.Write(vals); err != nil {
		slog.Warn("warm-start vector does not match current parameters", "err", err)
		return
	}
	g.StoreBest()
}
