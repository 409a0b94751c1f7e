package ga

// Chromosome is one population member: a gene per parameter plus the
// fitness of its last evaluation. Fitness is the negated objective, so
// larger is better.
type Chromosome struct {
	genes   []Gene
	fitness float64
}

// NewChromosome builds a chromosome from vals inside the given box.
func NewChromosome(vals, lower, upper []float64) *Chromosome {
	genes := make([]Gene, len(vals))
	for i := range vals {
		genes[i] = NewRealGene(vals[i], lower[i], upper[i])
	}
	return &Chromosome{genes: genes}
}

// Len is the number of genes.
func (c *Chromosome) Len() int { return len(c.genes) }

// Values copies the gene values out as a parameter vector.
func (c *Chromosome) Values() []float64 {
	vals := make([]float64, len(c.genes))
	for i, g := range c.genes {
		vals[i] = g.Value()
	}
	return vals
}

// SetValues assigns the gene values, clamping to each gene's bounds.
func (c *Chromosome) SetValues(vals []float64) {
	for i, g := range c.genes {
		g.SetValue(vals[i])
	}
}

// Fitness is the negated objective of the last evaluation.
func (c *Chromosome) Fitness() float64 { return c.fitness }

// SetFitness records the evaluation result.
func (c *Chromosome) SetFitness(f float64) { c.fitness = f }

// Copy returns a deep copy, fitness included.
func (c *Chromosome) Copy() *Chromosome {
	genes := make([]Gene, len(c.genes))
	for i, g := range c.genes {
		genes[i] = g.Copy()
	}
	return &Chromosome{genes: genes, fitness: c.fitness}
}

// SetBounds narrows every gene's box, used when bounds telescope.
func (c *Chromosome) SetBounds(lower, upper []float64) {
	for i, g := range c.genes {
		g.SetBounds(lower[i], upper[i])
	}
}
