// Package model turns a parameter vector into an objective value by
// driving one model evaluation end to end: corrections, template
// substitution, the model run itself, output extraction, and the
// objective, with caching, per-rank logging and output preservation
// around it.
package model

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/calibkit/calib/internal/config"
	"github.com/calibkit/calib/internal/extract"
	"github.com/calibkit/calib/internal/obs"
	"github.com/calibkit/calib/internal/objfunc"
	"github.com/calibkit/calib/internal/param"
	"github.com/calibkit/calib/internal/tmpl"
)

// QuitFile aborts a run when it appears in the launch directory. The
// driver polls for it between evaluations.
const QuitFile = "OstQuit"

// Model evaluates the objective at a parameter vector. Each rank owns
// one Model with its own working directory, so evaluations on
// different ranks never touch the same files.
type Model struct {
	cfg     *config.File
	Params  *param.Group
	Obs     *obs.Group
	objf    objfunc.Func
	pipes   []*tmpl.Pipe
	ex      *extract.Extractor
	rec     *Recorder
	pres    *Preserver
	cache   *Cache
	routine Routine

	rank    int
	root    string // launch directory
	workdir string // this rank's evaluation directory
	counter int

	session uuid.UUID
	bestVal float64
	hasBest bool
}

// New builds the evaluator for one rank. root is the launch directory
// holding the templates and receiving the OstModel logs; the rank's
// model files are staged into root/mod<rank>.
func New(cfg *config.File, rank int, root string) (*Model, error) {
	params, err := param.NewGroup(cfg)
	if err != nil {
		return nil, err
	}
	og := obs.NewGroup(cfg)

	trans := objfunc.BoxCox{Enabled: cfg.BoxCoxEnabled, Lambda: cfg.BoxCoxLambda}
	objf, err := objfunc.ForConfig(cfg.ObjFunc, trans)
	if err != nil {
		return nil, err
	}

	m := &Model{
		cfg:     cfg,
		Params:  params,
		Obs:     og,
		objf:    objf,
		rank:    rank,
		root:    root,
		workdir: filepath.Join(root, fmt.Sprintf("mod%d", rank)),
		session: uuid.New(),
	}

	policy := extract.Quit
	if !cfg.OnObsErrorQuit {
		policy = extract.Substitute
	}
	m.ex = extract.New(policy, cfg.ObsErrorVal)

	if cfg.Caching {
		m.cache = NewCache(cfg.NumDigits)
		logPath := filepath.Join(root, LogName(rank))
		if err := m.cache.SeedFromLog(logPath, m.Params.Len()); err != nil {
			return nil, fmt.Errorf("failed to seed cache from %s: %w", logPath, err)
		}
	}
	m.pres = &Preserver{Enabled: cfg.PreserveOutput, Command: cfg.PreserveCmd, BestCmd: cfg.PreserveBest}

	if cfg.InProcess {
		if m.routine, err = lookupRoutine(cfg.Executable); err != nil {
			return nil, err
		}
	}

	if err := m.stage(); err != nil {
		return nil, err
	}

	for _, fp := range cfg.FilePairs {
		pipe, err := tmpl.NewPipe(filepath.Join(root, fp.Template), filepath.Join(m.workdir, fp.Target))
		if err != nil {
			return nil, err
		}
		m.pipes = append(m.pipes, pipe)
	}

	if missing := params.MissingTokens(m.pipes); len(missing) > 0 {
		if cfg.CheckSens {
			return nil, &config.SemanticError{
				Msg: fmt.Sprintf("parameters %s appear in no template file", strings.Join(missing, ", ")),
			}
		}
		params.CheckTemplates(m.pipes)
	}

	if m.rec, err = NewRecorder(root, rank, params, og, cfg.NumDigits); err != nil {
		return nil, err
	}

	slog.Info("evaluator ready",
		"rank", rank, "session", m.session, "workdir", m.workdir,
		"params", params.Len(), "obs", og.Len(), "objective", objf.Name())
	return m, nil
}

// stage creates the rank's working directory and copies the extra
// files and directories the model needs alongside its inputs.
func (m *Model) stage() error {
	if err := os.MkdirAll(m.rundir(), 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	for _, name := range m.cfg.ExtraFiles {
		if err := copyFile(filepath.Join(m.root, name), filepath.Join(m.workdir, filepath.Base(name))); err != nil {
			return fmt.Errorf("failed to stage extra file %s: %w", name, err)
		}
	}
	for _, name := range m.cfg.ExtraDirs {
		src := filepath.Join(m.root, name)
		ent, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("failed to stage extra directory %s: %w", name, err)
		}
		if err := copyTree(src, filepath.Join(m.workdir, filepath.Base(name)), dirEntry{ent}); err != nil {
			return fmt.Errorf("failed to stage extra directory %s: %w", name, err)
		}
	}
	return nil
}

func (m *Model) rundir() string {
	return filepath.Join(m.workdir, m.cfg.Subdir)
}

// Execute runs one full evaluation at vals (search frame) and returns
// the objective, bound and correction adjustments included. Cached
// revisits return without touching the model.
func (m *Model) Execute(vals []float64) (float64, error) {
	viol, err := m.Params.Write(vals)
	if err != nil {
		return objfunc.Huge, err
	}
	m.Params.Correct()

	// cache identity is the output-frame rendering, matching the log
	outVals := make([]float64, m.Params.Len())
	for i, p := range m.Params.Params() {
		outVals[i] = p.ConvertOut()
	}
	if m.cache != nil {
		if obj, ok := m.cache.Lookup(outVals); ok {
			return obj, nil
		}
	}

	for _, pipe := range m.pipes {
		if _, err := pipe.Substitute(m.Params.Subs()); err != nil {
			return objfunc.Huge, err
		}
	}

	if err := m.run(); err != nil {
		return objfunc.Huge, err
	}

	m.ex.Reset()
	if m.Obs.Len() > 0 {
		if err := m.Obs.Extract(m.ex, m.rundir()); err != nil {
			return objfunc.Huge, err
		}
	}

	obj, err := m.objf.Calc(m.rundir(), m.Obs)
	if err != nil {
		return obj, err
	}

	// infeasible vectors pay for how far they strayed, scaled so the
	// penalty dominates small objectives too
	if viol > 0 {
		obj += viol * math.Max(1, obj)
	}

	m.counter++
	if m.cache != nil {
		m.cache.Store(outVals, obj)
	}

	best := !m.hasBest || obj < m.bestVal
	if best {
		m.bestVal = obj
		m.hasBest = true
		m.Params.StoreBest()
	}

	if err := m.rec.Append(m.counter, obj); err != nil {
		return obj, err
	}
	m.pres.AfterRun(m.workdir, m.rank, m.counter, best)
	return obj, nil
}

// exeOutLimit caps the captured model output so a chatty simulator
// cannot fill the disk.
const exeOutLimit = 10 << 20

// run launches the model, external or in-process, in the rank's
// directory. A child process has stdout and stderr redirected into
// OstExeOut there, which is also where a self-scoring model reports
// its objective.
func (m *Model) run() error {
	if m.routine != nil {
		if err := m.routine(m.rundir()); err != nil {
			return fmt.Errorf("model routine failed: %w", err)
		}
		return nil
	}
	outPath := filepath.Join(m.rundir(), objfunc.OutputFile)
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to open model output log: %w", err)
	}
	defer out.Close()

	args := strings.Fields(m.cfg.Executable)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = m.rundir()
	lw := &limitWriter{w: out, left: exeOutLimit}
	cmd.Stdout = lw
	cmd.Stderr = lw
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("model execution failed: %w (output in %s)", err, outPath)
	}
	return nil
}

// limitWriter forwards writes until the budget is spent, then swallows
// the rest so the child keeps running.
type limitWriter struct {
	w    *os.File
	left int
}

func (l *limitWriter) Write(p []byte) (int, error) {
	n := len(p)
	if l.left <= 0 {
		return n, nil
	}
	if n > l.left {
		if _, err := l.w.Write(p[:l.left]); err != nil {
			return 0, err
		}
		l.left = 0
		return n, nil
	}
	l.left -= n
	return l.w.Write(p)
}

// Counter is the number of completed (non-cached) evaluations.
func (m *Model) Counter() int { return m.counter }

// SetCounter restores the evaluation count from a warm start.
func (m *Model) SetCounter(n int) { m.counter = n }

// Session identifies this evaluator instance in logs and the archive.
func (m *Model) Session() uuid.UUID { return m.session }

// Best returns the lowest objective seen and its parameter vector.
func (m *Model) Best() (vals []float64, obj float64, ok bool) {
	if !m.hasBest {
		return nil, 0, false
	}
	return m.Params.BestVals(), m.bestVal, true
}

// SeedBest primes the best tracking from a warm start.
func (m *Model) SeedBest(obj float64) {
	m.bestVal = obj
	m.hasBest = true
}

// CacheStats reports cache occupancy and hits, zeros when caching is
// off.
func (m *Model) CacheStats() (entries, hits int) {
	if m.cache == nil {
		return 0, 0
	}
	return m.cache.Len(), m.cache.Hits()
}

// Close flushes and closes the evaluation log.
func (m *Model) Close() error { return m.rec.Close() }

// QuitRequested reports whether the quit file exists in the launch
// directory.
func QuitRequested(root string) bool {
	_, err := os.Stat(filepath.Join(root, QuitFile))
	return err == nil
}

// dirEntry adapts os.FileInfo to the DirEntry surface copyTree wants.
type dirEntry struct{ os.FileInfo }

func (d dirEntry) Type() os.FileMode          { return d.Mode().Type() }
func (d dirEntry) Info() (os.FileInfo, error) { return d.FileInfo, nil }
