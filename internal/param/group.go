package param

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/calibkit/calib/internal/config"
	"github.com/calibkit/calib/internal/tmpl"
)

// Group owns every parameter of a calibration problem: the adjustable
// ones, the tied ones derived from them, and the correction rules run
// before each model evaluation.
type Group struct {
	params  []*Param
	tied    []*Tied
	rules   []Rule
	ndigits int
}

// NewGroup builds the parameter group from the parsed input. It rejects
// duplicate names and any name that is a substring of another, since
// tokens are replaced by literal text search.
func NewGroup(cfg *config.File) (*Group, error) {
	g := &Group{ndigits: cfg.NumDigits}

	byName := make(map[string]*Param)
	for _, ps := range cfg.Params {
		var p *Param
		if ps.Format == "integer" {
			p = NewInteger(ps.Name, ps.Init, ps.Lower, ps.Upper)
		} else {
			txIn, err := ParseTransform(ps.TxIn)
			if err != nil {
				return nil, &config.SemanticError{Msg: fmt.Sprintf("parameter %s: %v", ps.Name, err)}
			}
			txSearch, err := ParseTransform(ps.TxSearch)
			if err != nil {
				return nil, &config.SemanticError{Msg: fmt.Sprintf("parameter %s: %v", ps.Name, err)}
			}
			txOut, err := ParseTransform(ps.TxOut)
			if err != nil {
				return nil, &config.SemanticError{Msg: fmt.Sprintf("parameter %s: %v", ps.Name, err)}
			}
			p = NewReal(ps.Name, ps.Init, ps.Lower, ps.Upper, txIn, txSearch, txOut, ps.Format)
		}
		if byName[ps.Name] != nil {
			return nil, &config.SemanticError{Msg: fmt.Sprintf("duplicate parameter name %s", ps.Name)}
		}
		byName[ps.Name] = p
		g.params = append(g.params, p)
	}
	for _, cs := range cfg.Combos {
		var p *Param
		switch cs.Kind {
		case "integer":
			p = NewComboInt(cs.Name, cs.Init, cs.Values)
		case "real":
			p = NewComboReal(cs.Name, cs.Init, cs.Values)
		case "string":
			p = NewComboStr(cs.Name, cs.Init, cs.StrValues)
		}
		if byName[cs.Name] != nil {
			return nil, &config.SemanticError{Msg: fmt.Sprintf("duplicate parameter name %s", cs.Name)}
		}
		byName[cs.Name] = p
		g.params = append(g.params, p)
	}
	for _, ts := range cfg.Tied {
		srcs := make([]*Param, 0, len(ts.Sources))
		for _, name := range ts.Sources {
			src := byName[name]
			if src == nil {
				return nil, &config.SemanticError{Msg: fmt.Sprintf("tied parameter %s: unknown source %s", ts.Name, name)}
			}
			srcs = append(srcs, src)
		}
		var kind TiedKind
		switch ts.Kind {
		case "linear":
			kind = TiedLinear
		case "ratio":
			kind = TiedRatio
		case "poly":
			kind = TiedPoly
		case "table":
			kind = TiedTable
		}
		t, err := NewTied(ts.Name, kind, srcs, ts.Coeffs)
		if err != nil {
			return nil, &config.SemanticError{Msg: err.Error()}
		}
		g.tied = append(g.tied, t)
	}

	if err := g.checkTokens(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkTokens rejects any parameter token that is a substring of
// another, across both regular and tied parameters.
func (g *Group) checkTokens() error {
	names := g.Names()
	for i, a := range names {
		for j, b := range names {
			if i == j {
				continue
			}
			if strings.Contains(b, a) {
				return &config.SemanticError{
					Msg: fmt.Sprintf("parameter name %s is a substring of %s; substitution would corrupt templates", a, b),
				}
			}
		}
	}
	return nil
}

// Names lists every token, regular parameters first, then tied.
func (g *Group) Names() []string {
	names := make([]string, 0, len(g.params)+len(g.tied))
	for _, p := range g.params {
		names = append(names, p.name)
	}
	for _, t := range g.tied {
		names = append(names, t.name)
	}
	return names
}

// Len is the dimension of the search space. Tied parameters do not
// count: they carry no degrees of freedom.
func (g *Group) Len() int { return len(g.params) }

// Params exposes the adjustable parameters in canonical order.
func (g *Group) Params() []*Param { return g.params }

// AddRule appends a correction rule to the pipeline.
func (g *Group) AddRule(r Rule) { g.rules = append(g.rules, r) }

// Read copies the current estimates, search frame, canonical order.
func (g *Group) Read() []float64 {
	vals := make([]float64, len(g.params))
	for i, p := range g.params {
		vals[i] = p.est
	}
	return vals
}

// Write assigns the canonical vector, clamping to bounds. The returned
// violation is the sum of clamped amounts over all parameters.
func (g *Group) Write(vals []float64) (viol float64, err error) {
	if len(vals) != len(g.params) {
		return 0, fmt.Errorf("expected %d parameter values, got %d", len(g.params), len(vals))
	}
	for i, p := range g.params {
		viol += p.SetEst(vals[i])
	}
	return viol, nil
}

// Bounds returns the search-frame bounds in canonical order.
func (g *Group) Bounds() (lower, upper []float64) {
	lower = make([]float64, len(g.params))
	upper = make([]float64, len(g.params))
	for i, p := range g.params {
		lower[i], upper[i] = p.lwr, p.upr
	}
	return lower, upper
}

// Correct runs the correction pipeline over the current estimates and
// writes the result back. Rules are pure, so repeated calls settle.
func (g *Group) Correct() {
	if len(g.rules) == 0 {
		return
	}
	vals := g.Read()
	for _, r := range g.rules {
		vals = r.Apply(vals)
	}
	for i, p := range g.params {
		p.est = vals[i]
	}
}

// StoreBest records the current estimates as the best seen.
func (g *Group) StoreBest() {
	for _, p := range g.params {
		p.StoreBest()
	}
}

// BestVals returns the stored best vector in the search frame.
func (g *Group) BestVals() []float64 {
	vals := make([]float64, len(g.params))
	for i, p := range g.params {
		vals[i] = p.Best()
	}
	return vals
}

// Subs renders every token, regular and tied, into substitution pairs
// for the template layer.
func (g *Group) Subs() []tmpl.Sub {
	subs := make([]tmpl.Sub, 0, len(g.params)+len(g.tied))
	for _, p := range g.params {
		subs = append(subs, tmpl.Sub{Token: p.name, Value: p.Render(g.ndigits)})
	}
	for _, t := range g.tied {
		subs = append(subs, tmpl.Sub{Token: t.name, Value: t.Render(g.ndigits)})
	}
	return subs
}

// MissingTokens lists parameter tokens that appear in no template, a
// common sign of a typo in the input file.
func (g *Group) MissingTokens(pipes []*tmpl.Pipe) []string {
	var missing []string
	for _, name := range g.Names() {
		found := false
		for _, pipe := range pipes {
			if pipe.Contains(name) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, name)
		}
	}
	return missing
}

// CheckTemplates warns about tokens that appear in no template.
func (g *Group) CheckTemplates(pipes []*tmpl.Pipe) {
	for _, name := range g.MissingTokens(pipes) {
		slog.Warn("parameter token not found in any template", "param", name)
	}
}
