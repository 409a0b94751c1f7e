package ga

import "math"

// Telescope shrinks the search box toward the incumbent best as the
// run progresses. The strategy names select how fast the box width
// decays from the full range to about one percent of it.
type Telescope struct {
	strategy string
	lower    []float64 // original bounds
	upper    []float64
}

// NewTelescope captures the original box. An empty strategy disables
// telescoping and Revise returns the original bounds untouched.
func NewTelescope(strategy string, lower, upper []float64) *Telescope {
	lo := make([]float64, len(lower))
	hi := make([]float64, len(upper))
	copy(lo, lower)
	copy(hi, upper)
	return &Telescope{strategy: strategy, lower: lo, upper: hi}
}

// Enabled reports whether a strategy is configured.
func (t *Telescope) Enabled() bool { return t.strategy != "" }

// factor maps run progress a in [0, 1] to the width multiplier.
func (t *Telescope) factor(a float64) float64 {
	switch t.strategy {
	case "linear":
		return 1 - 0.99*a
	case "convex-power":
		return math.Pow(10, -2*a)
	case "convex":
		return 0.01 + 0.99*math.Sin(math.Pi/2*(1-a))
	case "concave":
		return 1 - 0.99*a*a
	case "delayed-concave":
		if a <= 0.2 {
			return 1
		}
		b := (a - 0.2) / 0.8
		return 1 - 0.99*b*b
	}
	return 1
}

// Revise centers the shrunken box on best, shifting it inward where it
// would spill past the original bounds. a is run progress in [0, 1].
func (t *Telescope) Revise(best []float64, a float64) (lower, upper []float64) {
	f := t.factor(a)
	lower = make([]float64, len(t.lower))
	upper = make([]float64, len(t.upper))
	for d := range t.lower {
		w := f * (t.upper[d] - t.lower[d])
		lo := best[d] - w/2
		hi := best[d] + w/2
		if lo < t.lower[d] {
			hi += t.lower[d] - lo
			lo = t.lower[d]
		}
		if hi > t.upper[d] {
			lo -= hi - t.upper[d]
			hi = t.upper[d]
			if lo < t.lower[d] {
				lo = t.lower[d]
			}
		}
		lower[d], upper[d] = lo, hi
	}
	return lower, upper
}
