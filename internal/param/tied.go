package param

import "fmt"

// TiedKind selects the functional form of a tied parameter.
type TiedKind int

const (
	TiedLinear TiedKind = iota // c1*x + c0, or c5*x*y + c4*x + c3*y + c2... for two sources
	TiedRatio                  // (c2*x + c1) / (c4*y + c3) style rational form
	TiedPoly                   // polynomial in one source, coefficients low to high
	TiedTable                  // piecewise-linear lookup over (x, y) pairs
)

func (k TiedKind) String() string {
	switch k {
	case TiedRatio:
		return "ratio"
	case TiedPoly:
		return "poly"
	case TiedTable:
		return "table"
	default:
		return "linear"
	}
}

// Tied is a parameter computed from one or more regular parameters
// instead of adjusted directly. Its name is still a template token.
type Tied struct {
	name    string
	kind    TiedKind
	sources []*Param
	coeffs  []float64
}

// NewTied wires a tied parameter to its source parameters. The
// coefficient layout depends on the kind:
//
//	linear, 1 source:  c0 + c1*x
//	linear, 2 sources: c0 + c1*x + c2*y + c3*x*y
//	ratio, 2 sources:  (c0 + c1*x + c2*y + c3*x*y) / (c4 + c5*x + c6*y + c7*x*y)
//	poly, 1 source:    c0 + c1*x + c2*x^2 + ...
//	table, 1 source:   x1 y1 x2 y2 ... with x ascending
func NewTied(name string, kind TiedKind, sources []*Param, coeffs []float64) (*Tied, error) {
	t := &Tied{name: name, kind: kind, sources: sources, coeffs: coeffs}
	switch kind {
	case TiedLinear:
		switch len(sources) {
		case 1:
			if len(coeffs) != 2 {
				return nil, fmt.Errorf("tied parameter %s: linear with one source needs 2 coefficients, got %d", name, len(coeffs))
			}
		case 2:
			if len(coeffs) != 4 {
				return nil, fmt.Errorf("tied parameter %s: linear with two sources needs 4 coefficients, got %d", name, len(coeffs))
			}
		default:
			return nil, fmt.Errorf("tied parameter %s: linear supports 1 or 2 sources, got %d", name, len(sources))
		}
	case TiedRatio:
		if len(sources) != 2 || len(coeffs) != 8 {
			return nil, fmt.Errorf("tied parameter %s: ratio needs 2 sources and 8 coefficients", name)
		}
	case TiedPoly:
		if len(sources) != 1 || len(coeffs) < 1 {
			return nil, fmt.Errorf("tied parameter %s: poly needs 1 source and at least 1 coefficient", name)
		}
	case TiedTable:
		if len(sources) != 1 || len(coeffs) < 4 || len(coeffs)%2 != 0 {
			return nil, fmt.Errorf("tied parameter %s: table needs 1 source and an even number (>=4) of values", name)
		}
		for i := 2; i < len(coeffs); i += 2 {
			if coeffs[i] <= coeffs[i-2] {
				return nil, fmt.Errorf("tied parameter %s: table abscissae must be strictly ascending", name)
			}
		}
	default:
		return nil, fmt.Errorf("tied parameter %s: unknown kind", name)
	}
	return t, nil
}

// Name returns the tied parameter's template token.
func (t *Tied) Name() string { return t.name }

// Value computes the tied value from the current source estimates, in
// model units.
func (t *Tied) Value() float64 {
	x := t.sources[0].ModelValue()
	switch t.kind {
	case TiedLinear:
		if len(t.sources) == 1 {
			return t.coeffs[0] + t.coeffs[1]*x
		}
		y := t.sources[1].ModelValue()
		return t.coeffs[0] + t.coeffs[1]*x + t.coeffs[2]*y + t.coeffs[3]*x*y
	case TiedRatio:
		y := t.sources[1].ModelValue()
		num := t.coeffs[0] + t.coeffs[1]*x + t.coeffs[2]*y + t.coeffs[3]*x*y
		den := t.coeffs[4] + t.coeffs[5]*x + t.coeffs[6]*y + t.coeffs[7]*x*y
		return num / den
	case TiedPoly:
		v, pow := 0.0, 1.0
		for _, c := range t.coeffs {
			v += c * pow
			pow *= x
		}
		return v
	case TiedTable:
		return t.lookup(x)
	}
	return 0
}

func (t *Tied) lookup(x float64) float64 {
	n := len(t.coeffs) / 2
	if x <= t.coeffs[0] {
		return t.coeffs[1]
	}
	last := 2 * (n - 1)
	if x >= t.coeffs[last] {
		return t.coeffs[last+1]
	}
	for i := 1; i < n; i++ {
		x0, y0 := t.coeffs[2*(i-1)], t.coeffs[2*(i-1)+1]
		x1, y1 := t.coeffs[2*i], t.coeffs[2*i+1]
		if x <= x1 {
			return y0 + (y1-y0)*(x-x0)/(x1-x0)
		}
	}
	return t.coeffs[last+1]
}

// Render produces the fixed-width substitution string for the tied
// parameter at the current source estimates.
func (t *Tied) Render(ndigits int) string {
	return FixedWidth(t.Value(), ndigits, len(t.name))
}
