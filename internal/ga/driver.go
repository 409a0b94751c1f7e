package ga

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"github.com/calibkit/calib/internal/archive"
	"github.com/calibkit/calib/internal/comm"
	"github.com/calibkit/calib/internal/config"
	"github.com/calibkit/calib/internal/model"
	"github.com/calibkit/calib/internal/objfunc"
	"github.com/calibkit/calib/internal/sample"
)

// Stop reasons reported in Result.
const (
	StopConverged = "converged"
	StopBudget    = "generation budget"
	StopQuit      = "quit requested"
	StopCanceled  = "canceled"
)

// Result is the outcome of a calibration run.
type Result struct {
	// Best is the lowest objective found.
	Best float64

	// BestVals is the winning parameter vector in the search frame.
	BestVals []float64

	// Generations actually completed.
	Generations int

	// Evals is the total number of model runs across all ranks.
	Evals int

	// CacheHits is the number of evaluations served without a run.
	CacheHits int

	// Stopped names why the run ended.
	Stopped string

	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// Driver owns the per-rank evaluators and runs the GA over them.
type Driver struct {
	cfg   *config.File
	root  string
	group *comm.Group

	models []*model.Model
	pool   *Pool
	rng    *rand.Rand
	trace  *TraceWriter
	tele   *Telescope
	arch   *archive.Store

	warm *model.WarmStart

	// global best across all ranks, tracked from gathered objectives
	bestObj  float64
	bestVals []float64
	hasBest  bool
}

// NewDriver stages one evaluator per rank under root and prepares the
// initial population. ranks below 1 collapse to serial.
func NewDriver(cfg *config.File, root string, ranks int) (*Driver, error) {
	if ranks < 1 {
		ranks = 1
	}
	d := &Driver{cfg: cfg, root: root, group: comm.NewGroup(ranks, cfg.GA.PopulationSize+ranks)}

	if cfg.WarmStart {
		warm, err := model.ScanWarmStart(root, len(cfg.Params)+len(cfg.Combos))
		if err != nil {
			return nil, err
		}
		d.warm = warm
	}

	for r := 0; r < ranks; r++ {
		m, err := model.New(cfg, r, root)
		if err != nil {
			return nil, err
		}
		d.models = append(d.models, m)
	}

	master := d.models[0]
	if d.warm != nil {
		d.warm.Restore(master.Params)
		master.SetCounter(d.warm.Runs)
		master.SeedBest(d.warm.Objective)
		d.bestObj = d.warm.Objective
		d.bestVals = master.Params.Read()
		d.hasBest = true
	}

	d.rng = rand.New(rand.NewSource(uint64(cfg.GA.Seed)))
	lower, upper := master.Params.Bounds()
	d.tele = NewTelescope(cfg.Telescope, lower, upper)

	points := d.initialPoints(lower, upper)
	d.pool = NewPool(points, lower, upper, Settings{
		PopulationSize: cfg.GA.PopulationSize,
		Generations:    cfg.GA.NumGenerations,
		MutationRate:   cfg.GA.MutationRate,
		CrossoverRate:  cfg.GA.CrossoverRate,
		Survivors:      cfg.GA.NumSurvivors,
		Convergence:    cfg.GA.ConvergenceVal,
		Adaptive:       cfg.GA.Adaptive,
	}, d.rng)

	var err error
	if d.trace, err = NewTraceWriter(root); err != nil {
		return nil, err
	}
	return d, nil
}

// initialPoints seeds the population: the configured initial estimate
// first, then any explicit start vectors, then sampled fill.
func (d *Driver) initialPoints(lower, upper []float64) [][]float64 {
	n := d.cfg.GA.PopulationSize
	master := d.models[0]

	points := make([][]float64, 0, n)
	points = append(points, master.Params.Read())
	for _, row := range d.cfg.InitParams {
		if len(points) == n {
			break
		}
		if len(row) != master.Params.Len() {
			slog.Warn("skipping start vector with wrong dimension",
				"got", len(row), "want", master.Params.Len())
			continue
		}
		vals := make([]float64, len(row))
		for i, p := range master.Params.Params() {
			vals[i] = p.ConvertIn(row[i])
		}
		points = append(points, vals)
	}

	fill := n - len(points)
	if fill <= 0 {
		return points[:n]
	}
	var sampled [][]float64
	switch d.cfg.GA.InitMethod {
	case "lhs":
		sampled = sample.LatinHypercube(d.rng, lower, upper, fill)
	case "quadtree":
		sampled = sample.QuadTree(lower, upper, fill)
	default:
		sampled = sample.Random(d.rng, lower, upper, fill)
	}
	return append(points, sampled...)
}

// Run executes the calibration until convergence, budget exhaustion,
// cancellation or an OstQuit file.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer d.trace.Close()

	var wg sync.WaitGroup
	for r := 1; r < d.group.Size(); r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			d.worker(r)
		}(r)
	}
	defer func() {
		d.group.Endpoint(0).Broadcast(comm.Message{Tag: comm.TagStopWork})
		wg.Wait()
		for _, m := range d.models {
			m.Close()
		}
	}()

	maxGen := d.cfg.GA.NumGenerations
	stopped := StopBudget
	gen := 0

loop:
	for gen = 1; gen <= maxGen; gen++ {
		switch {
		case ctx.Err() != nil:
			stopped = StopCanceled
			gen--
			break loop
		case model.QuitRequested(d.root):
			stopped = StopQuit
			gen--
			break loop
		}

		if err := d.evaluate(); err != nil {
			return nil, fmt.Errorf("generation %d evaluation failed: %w", gen, err)
		}
		if model.QuitRequested(d.root) {
			stopped = StopQuit
			gen--
			break loop
		}

		bestChrom, _ := d.pool.Best()
		med := d.pool.MedianObjective()
		best := -bestChrom.Fitness()
		if !d.hasBest || best < d.bestObj {
			d.bestObj = best
			d.bestVals = append([]float64(nil), bestChrom.Values()...)
			d.hasBest = true
		}
		if err := d.trace.Write(TraceEntry{
			Generation: gen,
			Best:       best,
			Median:     med,
			Evals:      d.evals(),
			Mutations:  d.pool.Mutations(),
			Timestamp:  time.Now(),
			Params:     bestChrom.Values(),
		}); err != nil {
			return nil, err
		}
		slog.Info("generation complete",
			"generation", gen, "best", best, "median", med, "evals", d.evals())

		if d.arch != nil {
			if err := d.arch.Save(ctx, archive.Evaluation{
				Session:    d.models[0].Session().String(),
				Rank:       0,
				Run:        d.evals(),
				Generation: gen,
				Objective:  best,
				Params:     bestChrom.Values(),
			}); err != nil {
				slog.Warn("failed to archive generation", "generation", gen, "err", err)
			}
		}

		if converged(med, best, d.cfg.GA.ConvergenceVal) {
			stopped = StopConverged
			break
		}
		if gen == maxGen {
			break
		}

		if d.cfg.GA.Adaptive {
			d.pool.Adapt(gen, maxGen)
		}
		if d.tele.Enabled() && d.hasBest {
			lo, hi := d.tele.Revise(d.bestVals, float64(gen)/float64(maxGen))
			d.pool.SetBounds(lo, hi)
		}
		d.pool.Evolve()
	}
	if gen > maxGen {
		gen = maxGen
	}

	res := &Result{Generations: gen, Stopped: stopped, Elapsed: time.Since(start)}
	if d.hasBest {
		res.Best = d.bestObj
		res.BestVals = d.bestVals
		// leave the model files reflecting the winning vector
		if _, err := d.models[0].Execute(d.bestVals); err != nil {
			slog.Warn("final evaluation at the best vector failed", "err", err)
		}
	}
	res.Evals = d.evals()
	for _, m := range d.models {
		_, hits := m.CacheStats()
		res.CacheHits += hits
	}
	return res, nil
}

// evaluate scores the whole population, fanning out across ranks when
// more than one is configured.
func (d *Driver) evaluate() error {
	vecs := d.pool.Vectors()
	objs := make([]float64, len(vecs))

	switch {
	case d.group.Size() == 1:
		for i, v := range vecs {
			objs[i] = d.execute(d.models[0], v)
		}
	case d.cfg.GA.ParallelMethod == "asynchronous":
		d.evalAsync(vecs, objs)
	default:
		d.evalSync(vecs, objs)
	}

	d.pool.SetObjectives(objs)
	return nil
}

// evalSync stripes the population statically: member i goes to rank
// i mod size, rank zero handles its own stripe between dispatch and
// collection.
func (d *Driver) evalSync(vecs [][]float64, objs []float64) {
	ep := d.group.Endpoint(0)
	size := d.group.Size()

	pending := 0
	for i, v := range vecs {
		if r := i % size; r != 0 {
			ep.Send(r, comm.Message{Tag: comm.TagDoWork, Index: i, Data: v})
			pending++
		}
	}
	for i, v := range vecs {
		if i%size == 0 {
			objs[i] = d.execute(d.models[0], v)
		}
	}
	for ; pending > 0; pending-- {
		m := ep.Recv()
		objs[m.Index] = m.Value
	}
}

// evalAsync hands one member to each worker and reassigns on every
// result, so fast evaluations keep slow ranks from gating the
// generation.
func (d *Driver) evalAsync(vecs [][]float64, objs []float64) {
	ep := d.group.Endpoint(0)

	next := 0
	pending := 0
	for r := 1; r < d.group.Size() && next < len(vecs); r++ {
		ep.Send(r, comm.Message{Tag: comm.TagDoWork, Index: next, Data: vecs[next]})
		next++
		pending++
	}
	for pending > 0 {
		m := ep.Recv()
		objs[m.Index] = m.Value
		pending--
		if next < len(vecs) {
			ep.Send(m.From, comm.Message{Tag: comm.TagDoWork, Index: next, Data: vecs[next]})
			next++
			pending++
		}
	}
}

// worker is the receive loop of a non-master rank.
func (d *Driver) worker(rank int) {
	ep := d.group.Endpoint(rank)
	for {
		msg := ep.Recv()
		if msg.Tag == comm.TagStopWork {
			return
		}
		ep.Send(0, comm.Message{
			Tag:   comm.TagResult,
			Index: msg.Index,
			Value: d.execute(d.models[rank], msg.Data),
		})
	}
}

// execute runs one evaluation, mapping failures to the sentinel so a
// crashed model forfeits instead of killing the calibration. The quit
// flag is polled per evaluation so large populations abort mid
// generation instead of draining first.
func (d *Driver) execute(m *model.Model, vals []float64) float64 {
	if model.QuitRequested(d.root) {
		return objfunc.Huge
	}
	obj, err := m.Execute(vals)
	if err != nil {
		slog.Warn("model evaluation failed", "err", err)
		return objfunc.Huge
	}
	return obj
}

func (d *Driver) evals() int {
	n := 0
	for _, m := range d.models {
		n += m.Counter()
	}
	return n
}

// Master exposes the rank-zero evaluator, which carries the canonical
// parameter group and best tracking.
func (d *Driver) Master() *model.Model { return d.models[0] }

// SetArchive directs per-generation bests into the sqlite archive.
// Call before Run.
func (d *Driver) SetArchive(s *archive.Store) { d.arch = s }

// converged checks the relative gap between the median and the best
// objective. A vanishing median falls back to the absolute gap.
func converged(median, best, tol float64) bool {
	if tol <= 0 {
		return false
	}
	gap := math.Abs(median - best)
	if math.Abs(median) < 1e-300 {
		return gap < tol
	}
	return gap/math.Abs(median) < tol
}
