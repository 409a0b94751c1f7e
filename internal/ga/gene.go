// Package ga is a real-coded genetic algorithm over bounded parameter
// vectors: fitness-weighted blend crossover between neighbors with a
// Gaussian perturbation scaled to the fitness landscape, uniform
// redraw mutation, tournament selection and elitist survivors, with
// optional adaptive rates and telescoping bounds.
package ga

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Gene is one coordinate of a chromosome. Implementations own their
// bounds and know how to cross and mutate themselves.
type Gene interface {
	Value() float64
	SetValue(v float64)
	Bounds() (lower, upper float64)
	SetBounds(lower, upper float64)

	// Crossover returns the child value produced with mate, given the
	// parents' fitnesses. sigma scales the Gaussian perturbation of
	// the blended child. With probability 1-rate the gene passes
	// through unchanged.
	Crossover(mate Gene, selfFit, mateFit, rate, sigma float64, rng *rand.Rand) float64

	// Mutate redraws the value uniformly over the bounds with
	// probability rate and reports whether a mutation happened.
	Mutate(rate float64, rng *rand.Rand) bool

	Copy() Gene
}

// RealGene is a continuous coordinate.
type RealGene struct {
	val float64
	lwr float64
	upr float64
}

// NewRealGene creates a gene at val inside [lower, upper].
func NewRealGene(val, lower, upper float64) *RealGene {
	return &RealGene{val: val, lwr: lower, upr: upper}
}

func (g *RealGene) Value() float64                 { return g.val }
func (g *RealGene) SetValue(v float64)             { g.val = clamp(v, g.lwr, g.upr) }
func (g *RealGene) Bounds() (float64, float64)     { return g.lwr, g.upr }
func (g *RealGene) SetBounds(lower, upper float64) { g.lwr, g.upr = lower, upper; g.val = clamp(g.val, lower, upper) }

// Crossover blends the parents, weighting the fitter one more heavily,
// then perturbs the child with a Gaussian step of scale sigma. The
// weight grows with the relative fitness gap: equally fit parents
// blend evenly, a dominant parent contributes up to everything. A
// child that lands outside the bounds reflects to a random point
// between this parent's value and the violated bound.
func (g *RealGene) Crossover(mate Gene, selfFit, mateFit, rate, sigma float64, rng *rand.Rand) float64 {
	if rng.Float64() > rate {
		return g.val
	}
	f1, f2 := math.Abs(selfFit), math.Abs(mateFit)
	maxF := math.Max(f1, f2)
	p := 0.0
	if maxF > 0 {
		p = 1 - math.Min(f1, f2)/maxF
	}
	w := math.Min(0.5+0.5*p, 1)
	var child float64
	if selfFit >= mateFit {
		child = w*g.val + (1-w)*mate.Value()
	} else {
		child = (1-w)*g.val + w*mate.Value()
	}
	if sigma > 0 {
		n := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}
		child += n.Rand()
	}
	switch {
	case math.IsNaN(child):
		child = g.val
	case child > g.upr:
		child = g.val + (g.upr-g.val)*rng.Float64()
	case child < g.lwr:
		child = g.val - (g.val-g.lwr)*rng.Float64()
	}
	return child
}

// Mutate replaces the value with a uniform draw over the bounds.
func (g *RealGene) Mutate(rate float64, rng *rand.Rand) bool {
	if rng.Float64() >= rate {
		return false
	}
	g.val = g.lwr + rng.Float64()*(g.upr-g.lwr)
	return true
}

// Copy returns an independent gene with the same value and bounds.
func (g *RealGene) Copy() Gene {
	cp := *g
	return &cp
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
