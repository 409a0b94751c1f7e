// Package obs holds the observed values a calibration fits against and
// extracts their simulated counterparts from model output.
package obs

import (
	"log/slog"
	"path/filepath"

	"github.com/calibkit/calib/internal/config"
	"github.com/calibkit/calib/internal/extract"
)

// Observation pairs a measured value with the location of its simulated
// counterpart in the model output.
type Observation struct {
	Name      string
	Value     float64 // measured
	Weight    float64
	File      string
	Keyword   string
	Line      int // newlines to advance past the keyword
	Column    int // 1-indexed
	Sep       byte
	Augmented bool // logged but excluded from the objective
	Group     string

	Sim float64 // last extracted simulated value
}

// Group is the ordered observation set of one calibration problem.
type Group struct {
	obs []*Observation
}

// NewGroup builds the observation group from the parsed input.
// Zero-weight observations carry no information and are dropped unless
// augmented, in which case they are still extracted and logged.
func NewGroup(cfg *config.File) *Group {
	g := &Group{}
	for _, spec := range cfg.Obs {
		if spec.Weight == 0 && !spec.Augmented {
			slog.Warn("dropping zero-weight observation", "obs", spec.Name)
			continue
		}
		g.obs = append(g.obs, &Observation{
			Name:      spec.Name,
			Value:     spec.Value,
			Weight:    spec.Weight,
			File:      spec.File,
			Keyword:   spec.Keyword,
			Line:      spec.Line,
			Column:    spec.Column,
			Sep:       spec.Sep,
			Augmented: spec.Augmented,
			Group:     spec.Group,
		})
	}
	return g
}

// Len is the number of retained observations, augmented ones included.
func (g *Group) Len() int { return len(g.obs) }

// All exposes the observations in input order.
func (g *Group) All() []*Observation { return g.obs }

// Groups lists the distinct group labels in first-appearance order.
func (g *Group) Groups() []string {
	seen := make(map[string]bool)
	var names []string
	for _, o := range g.obs {
		if !seen[o.Group] {
			seen[o.Group] = true
			names = append(names, o.Group)
		}
	}
	return names
}

// Extract reads every simulated value from the model output under dir.
// The extractor caches each output file on first touch, so observations
// sharing a file cost one read. Callers reset the extractor between
// evaluations.
func (g *Group) Extract(ex *extract.Extractor, dir string) error {
	for _, o := range g.obs {
		v, err := ex.Value(filepath.Join(dir, o.File), o.Keyword, o.Line, o.Column, o.Sep)
		if err != nil {
			return err
		}
		o.Sim = v
	}
	return nil
}

// Residuals returns (measured, simulated, weight) triples for the named
// group, skipping augmented observations. An empty name selects every
// group.
func (g *Group) Residuals(group string) (meas, sim, wgt []float64) {
	for _, o := range g.obs {
		if o.Augmented {
			continue
		}
		if group != "" && o.Group != group {
			continue
		}
		meas = append(meas, o.Value)
		sim = append(sim, o.Sim)
		wgt = append(wgt, o.Weight)
	}
	return meas, sim, wgt
}
