// Package config reads the token-delimited calibration input file.
//
// The file format is a sequence of top-level settings (keyword followed by
// its value) and Begin.../End... sections holding one record per line.
// Blank lines and lines starting with '#' are ignored.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParseError reports a malformed line in the input file.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

// SemanticError reports a configuration that parsed but cannot be used
// (e.g. a token-substring violation between two parameters).
type SemanticError struct {
	Msg string
}

func (e *SemanticError) Error() string { return "config: " + e.Msg }

// FilePair names a template file and the model input file generated from it.
type FilePair struct {
	Template string
	Target   string
}

// ParamSpec describes one adjustable parameter as read from the input file.
// Init, Lower and Upper are in model units; the transforms map them into
// the frame the search algorithm works in.
type ParamSpec struct {
	Name     string
	Init     float64
	Lower    float64
	Upper    float64
	TxIn     string
	TxSearch string
	TxOut    string
	Format   string // fixed-width format hint, "free" when absent
}

// ComboSpec describes a combinatorial parameter: the search variable is an
// index into Values (or StrValues for string-valued combos).
type ComboSpec struct {
	Name      string
	Kind      string // "integer", "real" or "string"
	Init      int
	Values    []float64
	StrValues []string
}

// TiedSpec describes a derived parameter computed from regular parameters.
type TiedSpec struct {
	Name    string
	Kind    string // "linear", "ratio", "poly", "table"
	Sources []string
	Coeffs  []float64
}

// ObsSpec describes one observation record.
type ObsSpec struct {
	Name      string
	Value     float64
	Weight    float64
	File      string
	Keyword   string
	Line      int
	Column    int
	Sep       byte
	Augmented bool
	Group     string
}

// GASpec holds the BeginGeneticAlg section.
type GASpec struct {
	PopulationSize int
	NumGenerations int
	MutationRate   float64
	CrossoverRate  float64
	NumSurvivors   int
	ConvergenceVal float64
	InitMethod     string // "random", "quadtree", "lhs"
	ParallelMethod string // "synchronous", "asynchronous"
	Adaptive       bool
	Seed           int64
}

// File is the parsed calibration input.
type File struct {
	Path string

	FilePairs  []FilePair
	Executable string
	InProcess  bool // Executable named a registered routine ("Name()")
	Subdir     string
	ExtraFiles []string
	ExtraDirs  []string

	ObjFunc        string // "wsse", "sawe", "user"
	BoxCoxEnabled  bool
	BoxCoxLambda   float64
	BoxCoxExtract  bool
	NumDigits      int
	Telescope      string // "", "convex-power", "convex", "linear", "concave", "delayed-concave"
	WarmStart      bool
	Caching        bool
	Diskless       bool
	PreserveOutput bool
	PreserveCmd    string // user script replacing the built-in snapshot
	PreserveBest   string // command run whenever a new best is found
	CheckSens      bool
	OnObsErrorQuit bool
	ObsErrorVal    float64

	Params     []ParamSpec
	Combos     []ComboSpec
	Tied       []TiedSpec
	InitParams [][]float64
	Obs        []ObsSpec
	GA         GASpec
}

// Defaults mirror the historical behavior of the input format.
func defaults(path string) *File {
	return &File{
		Path:           path,
		ObjFunc:        "wsse",
		BoxCoxLambda:   1.0,
		NumDigits:      6,
		OnObsErrorQuit: true,
		GA: GASpec{
			PopulationSize: 50,
			NumGenerations: 10,
			MutationRate:   0.05,
			CrossoverRate:  0.90,
			NumSurvivors:   1,
			ConvergenceVal: 1e-4,
			InitMethod:     "random",
			ParallelMethod: "synchronous",
			Seed:           1,
		},
	}
}

// Load parses the calibration input file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg := defaults(path)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	p := &parser{cfg: cfg, sc: sc}
	if err := p.run(); err != nil {
		return nil, err
	}
	if len(cfg.FilePairs) == 0 && !cfg.Diskless {
		return nil, &SemanticError{Msg: "no BeginFilePairs section"}
	}
	if cfg.Executable == "" {
		return nil, &SemanticError{Msg: "ModelExecutable is required"}
	}
	return cfg, nil
}

type parser struct {
	cfg  *File
	sc   *bufio.Scanner
	line int
}

func (p *parser) errf(format string, args ...any) error {
	return &ParseError{Path: p.cfg.Path, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

// next returns the next data line, skipping blanks and comments.
func (p *parser) next() (string, bool) {
	for p.sc.Scan() {
		p.line++
		s := strings.TrimSpace(p.sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		return s, true
	}
	return "", false
}

func (p *parser) run() error {
	for {
		line, ok := p.next()
		if !ok {
			return p.sc.Err()
		}
		key, rest := splitKV(line)

		var err error
		switch key {
		case "BeginFilePairs":
			err = p.section("EndFilePairs", p.filePair)
		case "BeginExtraFiles":
			err = p.section("EndExtraFiles", func(s string) error {
				p.cfg.ExtraFiles = append(p.cfg.ExtraFiles, s)
				return nil
			})
		case "BeginExtraDirs":
			err = p.section("EndExtraDirs", func(s string) error {
				p.cfg.ExtraDirs = append(p.cfg.ExtraDirs, s)
				return nil
			})
		case "BeginParams":
			err = p.section("EndParams", p.param)
		case "BeginIntegerParams":
			err = p.section("EndIntegerParams", p.intParam)
		case "BeginCombinatorialParams":
			err = p.section("EndCombinatorialParams", p.combo)
		case "BeginTiedParams":
			err = p.section("EndTiedParams", p.tied)
		case "BeginInitParams":
			err = p.section("EndInitParams", p.initParams)
		case "BeginObservations":
			err = p.section("EndObservations", p.observation)
		case "BeginGeneticAlg":
			err = p.section("EndGeneticAlg", p.gaSetting)
		case "ModelExecutable":
			cmd := rest
			if strings.HasSuffix(cmd, "()") {
				p.cfg.InProcess = true
				p.cfg.Executable = strings.TrimSuffix(cmd, "()")
			} else {
				p.cfg.Executable = cmd
			}
		case "ModelSubdir", "ModelSubDir":
			p.cfg.Subdir = rest
		case "ObjectiveFunction":
			v := strings.ToLower(rest)
			switch v {
			case "wsse", "sawe", "user":
				p.cfg.ObjFunc = v
			case "pato", "gcop":
				err = &SemanticError{Msg: "objective function " + v + " is not supported"}
			default:
				err = p.errf("unknown objective function %q", rest)
			}
		case "BoxCoxTransformation":
			if strings.EqualFold(rest, "extract") {
				p.cfg.BoxCoxEnabled = true
				p.cfg.BoxCoxExtract = true
			} else {
				p.cfg.BoxCoxEnabled = true
				p.cfg.BoxCoxLambda, err = p.float(rest)
			}
		case "NumDigitsOfPrecision":
			var n int
			n, err = p.int(rest)
			if err == nil && (n < 1 || n > 32) {
				err = p.errf("NumDigitsOfPrecision %d out of range 1..32", n)
			}
			p.cfg.NumDigits = n
		case "TelescopingStrategy":
			v := strings.ToLower(rest)
			switch v {
			case "none":
				p.cfg.Telescope = ""
			case "convex-power", "convex", "linear", "concave", "delayed-concave":
				p.cfg.Telescope = v
			default:
				err = p.errf("unknown telescoping strategy %q", rest)
			}
		case "OstrichWarmStart":
			p.cfg.WarmStart = yes(rest)
		case "OstrichCaching":
			p.cfg.Caching = yes(rest)
		case "DisklessModel":
			p.cfg.Diskless = yes(rest)
		case "PreserveModelOutput":
			switch strings.ToLower(rest) {
			case "yes":
				p.cfg.PreserveOutput = true
			case "no":
				p.cfg.PreserveOutput = false
			default:
				p.cfg.PreserveOutput = true
				p.cfg.PreserveCmd = rest
			}
		case "PreserveBestModel":
			p.cfg.PreserveBest = rest
		case "CheckSensitivities":
			p.cfg.CheckSens = yes(rest)
		case "OnObsError":
			if strings.EqualFold(rest, "quit") {
				p.cfg.OnObsErrorQuit = true
			} else {
				p.cfg.OnObsErrorQuit = false
				p.cfg.ObsErrorVal, err = p.float(rest)
			}
		case "RandomSeed":
			var s int64
			s, err = strconv.ParseInt(rest, 10, 64)
			p.cfg.GA.Seed = s
		default:
			// unknown settings are ignored so that inputs written for
			// richer builds still load
		}
		if err != nil {
			return err
		}
	}
}

// section consumes lines until the end token, handing each to fn.
func (p *parser) section(end string, fn func(string) error) error {
	for {
		line, ok := p.next()
		if !ok {
			return p.errf("missing %s", end)
		}
		if strings.HasPrefix(line, end) {
			return nil
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

func (p *parser) filePair(line string) error {
	// either "template ; target" or whitespace separated
	var tpl, tgt string
	if strings.Contains(line, ";") {
		a, b, _ := strings.Cut(line, ";")
		tpl, tgt = strings.TrimSpace(a), strings.TrimSpace(b)
	} else {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return p.errf("file pair needs template and target: %q", line)
		}
		tpl, tgt = fields[0], fields[1]
	}
	if tpl == "" || tgt == "" {
		return p.errf("incomplete file pair: %q", line)
	}
	p.cfg.FilePairs = append(p.cfg.FilePairs, FilePair{Template: tpl, Target: tgt})
	return nil
}

func (p *parser) param(line string) error {
	f := strings.Fields(line)
	if len(f) < 4 {
		return p.errf("parameter needs name, init, lower, upper: %q", line)
	}
	ps := ParamSpec{Name: f[0], TxIn: "none", TxSearch: "none", TxOut: "none", Format: "free"}
	var err error
	if ps.Init, err = p.float(f[1]); err != nil {
		return err
	}
	if ps.Lower, err = p.float(f[2]); err != nil {
		return err
	}
	if ps.Upper, err = p.float(f[3]); err != nil {
		return err
	}
	if len(f) > 4 {
		ps.TxIn = f[4]
	}
	if len(f) > 5 {
		ps.TxSearch = f[5]
	}
	if len(f) > 6 {
		ps.TxOut = f[6]
	}
	if len(f) > 7 {
		ps.Format = f[7]
	}
	if ps.Lower > ps.Upper {
		return &SemanticError{Msg: fmt.Sprintf("parameter %s: lower bound %g exceeds upper bound %g", ps.Name, ps.Lower, ps.Upper)}
	}
	if ps.Init < ps.Lower || ps.Init > ps.Upper {
		return &SemanticError{Msg: fmt.Sprintf("parameter %s: initial value %g outside [%g, %g]", ps.Name, ps.Init, ps.Lower, ps.Upper)}
	}
	p.cfg.Params = append(p.cfg.Params, ps)
	return nil
}

func (p *parser) intParam(line string) error {
	f := strings.Fields(line)
	if len(f) < 4 {
		return p.errf("integer parameter needs name, init, lower, upper: %q", line)
	}
	ps := ParamSpec{Name: f[0], TxIn: "none", TxSearch: "none", TxOut: "none", Format: "integer"}
	var err error
	if ps.Init, err = p.float(f[1]); err != nil {
		return err
	}
	if ps.Lower, err = p.float(f[2]); err != nil {
		return err
	}
	if ps.Upper, err = p.float(f[3]); err != nil {
		return err
	}
	p.cfg.Params = append(p.cfg.Params, ps)
	return nil
}

func (p *parser) combo(line string) error {
	// name kind init v1 v2 v3 ...
	f := strings.Fields(line)
	if len(f) < 4 {
		return p.errf("combinatorial parameter needs name, kind, init and values: %q", line)
	}
	cs := ComboSpec{Name: f[0], Kind: strings.ToLower(f[1])}
	n, err := p.int(f[2])
	if err != nil {
		return err
	}
	cs.Init = n
	switch cs.Kind {
	case "integer", "real":
		for _, s := range f[3:] {
			v, err := p.float(s)
			if err != nil {
				return err
			}
			cs.Values = append(cs.Values, v)
		}
		if cs.Init < 0 || cs.Init >= len(cs.Values) {
			return &SemanticError{Msg: fmt.Sprintf("combinatorial %s: initial index %d out of range", cs.Name, cs.Init)}
		}
	case "string":
		cs.StrValues = append(cs.StrValues, f[3:]...)
		if cs.Init < 0 || cs.Init >= len(cs.StrValues) {
			return &SemanticError{Msg: fmt.Sprintf("combinatorial %s: initial index %d out of range", cs.Name, cs.Init)}
		}
	default:
		return p.errf("unknown combinatorial kind %q", f[1])
	}
	p.cfg.Combos = append(p.cfg.Combos, cs)
	return nil
}

func (p *parser) tied(line string) error {
	// name kind nsrc src1 [src2 ...] c0 c1 ...
	f := strings.Fields(line)
	if len(f) < 5 {
		return p.errf("tied parameter needs name, kind, source count, sources and coefficients: %q", line)
	}
	ts := TiedSpec{Name: f[0], Kind: strings.ToLower(f[1])}
	nsrc, err := strconv.Atoi(f[2])
	if err != nil || nsrc < 1 {
		return p.errf("tied parameter %s: bad source count %q", ts.Name, f[2])
	}
	switch ts.Kind {
	case "linear":
		if nsrc > 2 {
			return p.errf("tied parameter %s: linear takes 1 or 2 sources, got %d", ts.Name, nsrc)
		}
	case "ratio":
		if nsrc != 2 {
			return p.errf("tied parameter %s: ratio takes 2 sources, got %d", ts.Name, nsrc)
		}
	case "poly", "table":
		if nsrc != 1 {
			return p.errf("tied parameter %s: %s takes 1 source, got %d", ts.Name, ts.Kind, nsrc)
		}
	default:
		return p.errf("unknown tied kind %q", f[1])
	}
	if len(f) < 3+nsrc+1 {
		return p.errf("tied parameter %s: too few fields", ts.Name)
	}
	ts.Sources = f[3 : 3+nsrc]
	for _, s := range f[3+nsrc:] {
		v, err := p.float(s)
		if err != nil {
			return err
		}
		ts.Coeffs = append(ts.Coeffs, v)
	}
	p.cfg.Tied = append(p.cfg.Tied, ts)
	return nil
}

func (p *parser) initParams(line string) error {
	f := strings.Fields(line)
	vals := make([]float64, 0, len(f))
	for _, s := range f {
		v, err := p.float(s)
		if err != nil {
			return err
		}
		vals = append(vals, v)
	}
	p.cfg.InitParams = append(p.cfg.InitParams, vals)
	return nil
}

func (p *parser) observation(line string) error {
	// name value weight file keyword line column 'tok' aug group
	f := strings.Fields(line)
	if len(f) < 8 {
		return p.errf("observation needs at least 8 fields: %q", line)
	}
	os := ObsSpec{Name: f[0], Group: "none"}
	var err error
	if os.Value, err = p.float(f[1]); err != nil {
		return err
	}
	if os.Weight, err = p.float(f[2]); err != nil {
		return err
	}
	os.File = f[3]
	os.Keyword = f[4]
	if os.Line, err = p.int(f[5]); err != nil {
		return err
	}
	if os.Column, err = p.int(f[6]); err != nil {
		return err
	}
	sep := strings.Trim(f[7], "'")
	if sep == "" || sep == "wsp" {
		os.Sep = ' '
	} else {
		os.Sep = sep[0]
	}
	if len(f) > 8 {
		os.Augmented = yes(f[8])
	}
	if len(f) > 9 {
		os.Group = f[9]
	}
	p.cfg.Obs = append(p.cfg.Obs, os)
	return nil
}

func (p *parser) gaSetting(line string) error {
	key, rest := splitKV(line)
	var err error
	switch key {
	case "PopulationSize":
		p.cfg.GA.PopulationSize, err = p.int(rest)
	case "NumGenerations":
		p.cfg.GA.NumGenerations, err = p.int(rest)
	case "MutationRate":
		p.cfg.GA.MutationRate, err = p.float(rest)
	case "CrossoverRate":
		p.cfg.GA.CrossoverRate, err = p.float(rest)
	case "Survivors":
		p.cfg.GA.NumSurvivors, err = p.int(rest)
	case "ConvergenceVal":
		p.cfg.GA.ConvergenceVal, err = p.float(rest)
	case "InitPopulationMethod":
		v := strings.ToLower(rest)
		switch v {
		case "random", "quadtree", "lhs":
			p.cfg.GA.InitMethod = v
		default:
			err = p.errf("unknown init population method %q", rest)
		}
	case "ParallelMethod":
		v := strings.ToLower(rest)
		switch v {
		case "synchronous", "asynchronous":
			p.cfg.GA.ParallelMethod = v
		default:
			p.cfg.GA.ParallelMethod = "synchronous"
		}
	case "AdaptiveGA":
		p.cfg.GA.Adaptive = yes(rest)
	case "RandomSeed":
		p.cfg.GA.Seed, err = strconv.ParseInt(rest, 10, 64)
	default:
		// tolerate settings for other algorithms
	}
	if err != nil {
		return err
	}
	return p.validateGA(key)
}

func (p *parser) validateGA(key string) error {
	ga := &p.cfg.GA
	switch key {
	case "PopulationSize":
		if ga.PopulationSize < 2 {
			return &SemanticError{Msg: "PopulationSize must be at least 2"}
		}
	case "NumGenerations":
		if ga.NumGenerations < 1 {
			return &SemanticError{Msg: "NumGenerations must be at least 1"}
		}
	case "MutationRate":
		if ga.MutationRate < 0 || ga.MutationRate > 1 {
			return &SemanticError{Msg: "MutationRate must be in [0, 1]"}
		}
	}
	return nil
}

func (p *parser) float(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, p.errf("bad number %q", s)
	}
	return v, nil
}

func (p *parser) int(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, p.errf("bad integer %q", s)
	}
	return v, nil
}

func yes(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}

// splitKV splits a setting line into its keyword and the remainder,
// tolerating any run of whitespace between them.
func splitKV(line string) (string, string) {
	i := strings.IndexFunc(line, func(r rune) bool { return r == ' ' || r == '\t' })
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}
