// Package param models the adjustable, combinatorial and tied parameters
// of a calibration problem, their transforms, and their substitution
// tokens.
//
// Values are stored in the search frame: the frame the optimization
// algorithm sees, with bounds transformed accordingly. Rendering for
// template substitution converts back to model units.
package param

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// Kind tags the parameter variants.
type Kind int

const (
	Real Kind = iota
	Integer
	ComboInt
	ComboReal
	ComboStr
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case ComboInt:
		return "combo-int"
	case ComboReal:
		return "combo-real"
	case ComboStr:
		return "combo-str"
	default:
		return "real"
	}
}

// Param is one adjustable parameter. Its name doubles as the literal
// token replaced in template files. For combinatorial kinds the search
// variable is an index into the permitted-value list and the bounds are
// [0, len-1].
type Param struct {
	name string
	kind Kind

	est  float64 // current estimate, search frame
	init float64 // initial value, search frame
	lwr  float64 // lower bound, search frame
	upr  float64 // upper bound, search frame
	best float64 // stored best, search frame
	has  bool    // best has been stored

	txIn     Transform
	txSearch Transform
	txOut    Transform

	vals    []float64 // ComboInt / ComboReal permitted values
	strVals []string  // ComboStr permitted values

	format string // "free", "integer" or unused width hint
}

// NewReal builds a continuous parameter. The init and bound arguments are
// in model units; they are converted into the search frame here.
func NewReal(name string, init, lower, upper float64, txIn, txSearch, txOut Transform, format string) *Param {
	p := &Param{
		name:     name,
		kind:     Real,
		txIn:     txIn,
		txSearch: txSearch,
		txOut:    txOut,
		format:   format,
	}
	p.lwr = convertIn(lower, txIn, txSearch)
	p.upr = convertIn(upper, txIn, txSearch)
	p.init = convertIn(init, txIn, txSearch)
	p.est = p.init
	return p
}

// NewInteger builds an integer-continuous parameter.
func NewInteger(name string, init, lower, upper float64) *Param {
	p := &Param{name: name, kind: Integer, lwr: lower, upr: upper, init: init, est: init, format: "integer"}
	return p
}

// NewComboInt builds a combinatorial parameter over integer values.
func NewComboInt(name string, init int, values []float64) *Param {
	return newCombo(name, ComboInt, init, values, nil)
}

// NewComboReal builds a combinatorial parameter over real values.
func NewComboReal(name string, init int, values []float64) *Param {
	return newCombo(name, ComboReal, init, values, nil)
}

// NewComboStr builds a combinatorial parameter over string values.
func NewComboStr(name string, init int, values []string) *Param {
	return newCombo(name, ComboStr, init, nil, values)
}

func newCombo(name string, kind Kind, init int, vals []float64, strVals []string) *Param {
	n := len(vals)
	if kind == ComboStr {
		n = len(strVals)
	}
	return &Param{
		name:    name,
		kind:    kind,
		lwr:     0,
		upr:     float64(n - 1),
		init:    float64(init),
		est:     float64(init),
		vals:    vals,
		strVals: strVals,
	}
}

// Name returns the parameter name, which is also its template token.
func (p *Param) Name() string { return p.name }

// Kind returns the parameter variant tag.
func (p *Param) Kind() Kind { return p.kind }

// Est returns the current estimate in the search frame.
func (p *Param) Est() float64 { return p.est }

// Bounds returns the bounds in the search frame.
func (p *Param) Bounds() (lower, upper float64) { return p.lwr, p.upr }

// SetEst assigns the estimate, clamping to the bounds. The returned
// violation is the clamped amount, zero when the value was feasible.
// Integer and combinatorial kinds round to the nearest permitted index.
func (p *Param) SetEst(v float64) (viol float64) {
	if v < p.lwr {
		viol = p.lwr - v
		slog.Warn("parameter below lower bound", "param", p.name, "value", v, "lower", p.lwr)
		v = p.lwr
	}
	if v > p.upr {
		viol = v - p.upr
		slog.Warn("parameter above upper bound", "param", p.name, "value", v, "upper", p.upr)
		v = p.upr
	}
	if p.kind != Real {
		v = math.Round(v)
	}
	p.est = v
	return viol
}

// StoreBest records the current estimate as the best seen.
func (p *Param) StoreBest() {
	p.best = p.est
	p.has = true
}

// Best returns the stored best, falling back to the current estimate.
func (p *Param) Best() float64 {
	if p.has {
		return p.best
	}
	return p.est
}

// ConvertIn maps a raw logged value into the search frame.
func (p *Param) ConvertIn(v float64) float64 {
	if p.kind != Real {
		return math.Round(v)
	}
	return convertIn(v, p.txIn, p.txSearch)
}

// ConvertOut maps the current estimate into the output (log) frame.
func (p *Param) ConvertOut() float64 {
	switch p.kind {
	case Real:
		return convertOut(p.est, p.txSearch, p.txOut)
	case ComboInt, ComboReal:
		return p.vals[p.index()]
	case ComboStr:
		return p.est // logged as the index
	default:
		return p.est
	}
}

// ModelValue returns the value in model units, the frame substituted
// into template files.
func (p *Param) ModelValue() float64 {
	switch p.kind {
	case Real:
		return invertTx(p.est, p.txSearch)
	case ComboInt, ComboReal:
		return p.vals[p.index()]
	default:
		return p.est
	}
}

func (p *Param) index() int {
	n := len(p.vals)
	if p.kind == ComboStr {
		n = len(p.strVals)
	}
	i := int(math.Round(p.est))
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	return i
}

// Render produces the fixed-width substitution string for this
// parameter at ndigits significant digits. The width equals the token
// width so the surrounding layout is preserved.
func (p *Param) Render(ndigits int) string {
	switch p.kind {
	case ComboStr:
		return p.strVals[p.index()]
	case Integer, ComboInt:
		return pad(strconv.Itoa(int(math.Round(p.ModelValue()))), len(p.name))
	default:
		return FixedWidth(p.ModelValue(), ndigits, len(p.name))
	}
}

func pad(s string, width int) string {
	for len(s) < width {
		s = " " + s
	}
	return s
}

// String implements fmt.Stringer for diagnostics.
func (p *Param) String() string {
	return fmt.Sprintf("%s[%s est=%g bounds=(%g,%g)]", p.name, p.kind, p.est, p.lwr, p.upr)
}
