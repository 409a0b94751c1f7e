package param

// Rule adjusts the canonical parameter vector before each model run.
// Rules must be pure and idempotent: applying a rule twice to its own
// output yields the same vector.
type Rule interface {
	Apply(vals []float64) []float64
}

// Threshold snaps the parameter at index To to Snap whenever the
// parameter at index When falls at or below Cut. Values are in the
// search frame.
type Threshold struct {
	When int
	Cut  float64
	To   int
	Snap float64
}

// Apply implements Rule.
func (t Threshold) Apply(vals []float64) []float64 {
	if t.When < len(vals) && t.To < len(vals) && vals[t.When] <= t.Cut {
		vals[t.To] = t.Snap
	}
	return vals
}

// Order keeps the parameter at index Upper no smaller than the one at
// index Lower, snapping Upper up when violated.
type Order struct {
	Lower int
	Upper int
}

// Apply implements Rule.
func (o Order) Apply(vals []float64) []float64 {
	if o.Lower < len(vals) && o.Upper < len(vals) && vals[o.Upper] < vals[o.Lower] {
		vals[o.Upper] = vals[o.Lower]
	}
	return vals
}
