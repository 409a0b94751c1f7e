package ga

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// Settings are the tunables of one GA run.
type Settings struct {
	// PopulationSize is the number of chromosomes, at least 2.
	PopulationSize int

	// Generations bounds the outer loop.
	Generations int

	// MutationRate is the per-gene mutation probability.
	MutationRate float64

	// CrossoverRate is the per-gene blend probability.
	CrossoverRate float64

	// Survivors is the number of elite chromosomes copied unchanged
	// into the next generation.
	Survivors int

	// Convergence stops the run when the relative gap between the
	// median and best objective falls below it.
	Convergence float64

	// Adaptive ramps selection pressure up and mutation down over the
	// course of the run, overriding MutationRate.
	Adaptive bool
}

// Pool is the population and the operators that evolve it.
type Pool struct {
	chroms []*Chromosome
	lower  []float64
	upper  []float64
	rng    *rand.Rand

	mutRate   float64
	xoverRate float64
	survivors int
	tourney   int // combatants per tournament

	mutations int
}

// NewPool builds the population from initial vectors, one chromosome
// per vector. Vectors outside the box are clamped in.
func NewPool(points [][]float64, lower, upper []float64, s Settings, rng *rand.Rand) *Pool {
	p := &Pool{
		lower:     lower,
		upper:     upper,
		rng:       rng,
		mutRate:   s.MutationRate,
		xoverRate: s.CrossoverRate,
		survivors: s.Survivors,
		tourney:   2,
	}
	if p.survivors < 1 {
		p.survivors = 1
	}
	for _, pt := range points {
		p.chroms = append(p.chroms, NewChromosome(pt, lower, upper))
	}
	return p
}

// Size is the population size.
func (p *Pool) Size() int { return len(p.chroms) }

// Members exposes the chromosomes in place.
func (p *Pool) Members() []*Chromosome { return p.chroms }

// Vectors copies out every chromosome's parameter vector, index-aligned
// with the population.
func (p *Pool) Vectors() [][]float64 {
	vecs := make([][]float64, len(p.chroms))
	for i, c := range p.chroms {
		vecs[i] = c.Values()
	}
	return vecs
}

// SetObjectives records one evaluation per chromosome. Fitness is the
// negated objective.
func (p *Pool) SetObjectives(objs []float64) {
	for i, c := range p.chroms {
		c.SetFitness(-objs[i])
	}
}

// Best returns the fittest chromosome and its index.
func (p *Pool) Best() (*Chromosome, int) {
	best, bi := p.chroms[0], 0
	for i, c := range p.chroms[1:] {
		if c.fitness > best.fitness {
			best, bi = c, i+1
		}
	}
	return best, bi
}

// MedianObjective is the median of the current objectives.
func (p *Pool) MedianObjective() float64 {
	objs := make([]float64, len(p.chroms))
	for i, c := range p.chroms {
		objs[i] = -c.fitness
	}
	sort.Float64s(objs)
	return stat.Quantile(0.5, stat.Empirical, objs, nil)
}

// Mutations is the number of gene mutations applied so far.
func (p *Pool) Mutations() int { return p.mutations }

// Adapt tunes the operators for the given generation: tournaments grow
// from 2 combatants toward half the population and the mutation rate
// decays from 0.15 to 0 as the run progresses.
func (p *Pool) Adapt(gen, maxGen int) {
	pct := float64(gen) / float64(maxGen)
	p.tourney = int(math.Round(2 + pct*0.5*float64(len(p.chroms)-2)))
	p.mutRate = 0.15 * (1 - pct)
}

// Evolve produces the next generation in place: survivors are kept
// verbatim, the rest are tournament winners crossed with their nearest
// non-survivor neighbor and then mutated.
func (p *Pool) Evolve() {
	surv := p.markSurvivors()

	next := make([]*Chromosome, len(p.chroms))
	var open []int // non-survivor slots, in order
	for i := range p.chroms {
		if surv[i] {
			next[i] = p.chroms[i].Copy()
			continue
		}
		next[i] = p.tourneyWinner().Copy()
		open = append(open, i)
	}

	if len(open) > 1 {
		sigma := p.crossSigma()
		children := make([][]float64, len(open))
		for j, i := range open {
			self := next[i]
			mate := next[open[(j+1)%len(open)]]
			child := make([]float64, self.Len())
			for gi, g := range self.genes {
				child[gi] = g.Crossover(mate.genes[gi], self.fitness, mate.fitness, p.xoverRate, sigma, p.rng)
			}
			children[j] = child
		}
		// assign after all crossovers so later pairs see parent values
		for j, i := range open {
			next[i].SetValues(children[j])
		}
	}

	for _, i := range open {
		for _, g := range next[i].genes {
			if g.Mutate(p.mutRate, p.rng) {
				p.mutations++
			}
		}
	}
	p.chroms = next
}

// markSurvivors reserves the top chromosomes by repeated max scan.
func (p *Pool) markSurvivors() []bool {
	surv := make([]bool, len(p.chroms))
	n := p.survivors
	if n > len(p.chroms) {
		n = len(p.chroms)
	}
	for s := 0; s < n; s++ {
		bi := -1
		for i, c := range p.chroms {
			if surv[i] {
				continue
			}
			if bi < 0 || c.fitness > p.chroms[bi].fitness {
				bi = i
			}
		}
		surv[bi] = true
	}
	return surv
}

// tourneyWinner picks the fittest of k random combatants.
func (p *Pool) tourneyWinner() *Chromosome {
	k := p.tourney
	if k < 2 {
		k = 2
	}
	win := p.chroms[p.rng.Intn(len(p.chroms))]
	for i := 1; i < k; i++ {
		c := p.chroms[p.rng.Intn(len(p.chroms))]
		if c.fitness > win.fitness {
			win = c
		}
	}
	return win
}

// crossSigma scales the crossover perturbation to the fitness
// landscape, spread over the number of parameters: the wider the
// objective range, the larger the step per coordinate.
func (p *Pool) crossSigma() float64 {
	maxF := 0.0
	for _, c := range p.chroms {
		if f := math.Abs(c.fitness); f > maxF {
			maxF = f
		}
	}
	np := p.chroms[0].Len()
	if np < 1 {
		np = 1
	}
	return math.Sqrt(maxF / float64(np))
}

// SetBounds narrows the search box for every chromosome, used when
// bounds telescope toward the incumbent best.
func (p *Pool) SetBounds(lower, upper []float64) {
	p.lower, p.upper = lower, upper
	for _, c := range p.chroms {
		c.SetBounds(lower, upper)
	}
}
