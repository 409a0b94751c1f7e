package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/calibkit/calib/internal/obs"
	"github.com/calibkit/calib/internal/param"
)

// LogName returns the per-rank evaluation log file name.
func LogName(rank int) string {
	return fmt.Sprintf("OstModel%d.txt", rank)
}

// Recorder appends one line per completed evaluation to the rank's
// log. The log survives crashes line by line, which is what warm
// starts read back.
type Recorder struct {
	f       *os.File
	ndigits int
	params  *param.Group
	obs     *obs.Group
}

// NewRecorder opens the rank's evaluation log under dir in append mode.
// The log is append-only across runs: a fresh log gets the header (the
// run counter, the objective, one column per parameter, then one per
// augmented observation), an existing one is extended in place so warm
// starts and log-seeded caches keep their history.
func NewRecorder(dir string, rank int, params *param.Group, og *obs.Group, ndigits int) (*Recorder, error) {
	path := filepath.Join(dir, LogName(rank))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open evaluation log: %w", err)
	}
	r := &Recorder{f: f, ndigits: ndigits, params: params, obs: og}

	if fi, err := f.Stat(); err == nil && fi.Size() > 0 {
		return r, nil
	}
	header := "Run  obj.function"
	for _, name := range paramNames(params) {
		header += "  " + name
	}
	for _, o := range og.All() {
		if o.Augmented {
			header += "  " + o.Name
		}
	}
	if _, err := fmt.Fprintln(f, header); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Append logs one evaluation. Parameter values are written in the
// output frame so a later warm start can reload them.
func (r *Recorder) Append(run int, objective float64) error {
	line := fmt.Sprintf("%d  %s", run, param.Scientific(objective, r.ndigits))
	for _, p := range r.params.Params() {
		line += "  " + param.Scientific(p.ConvertOut(), r.ndigits)
	}
	for _, o := range r.obs.All() {
		if o.Augmented {
			line += "  " + param.Scientific(o.Sim, r.ndigits)
		}
	}
	if _, err := fmt.Fprintln(r.f, line); err != nil {
		return fmt.Errorf("failed to append to evaluation log: %w", err)
	}
	return r.f.Sync()
}

// Close releases the log file.
func (r *Recorder) Close() error { return r.f.Close() }

func paramNames(g *param.Group) []string {
	names := make([]string, 0, g.Len())
	for _, p := range g.Params() {
		names = append(names, p.Name())
	}
	return names
}
