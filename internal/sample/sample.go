// Package sample generates initial parameter vectors inside a bounded
// box: plain uniform draws, Latin hypercube strata, or a deterministic
// quadtree lattice.
package sample

import (
	"math"

	"golang.org/x/exp/rand"
)

// Random draws n points uniformly inside the box.
func Random(rng *rand.Rand, lower, upper []float64, n int) [][]float64 {
	pts := make([][]float64, n)
	for i := range pts {
		p := make([]float64, len(lower))
		for d := range p {
			p[d] = lower[d] + rng.Float64()*(upper[d]-lower[d])
		}
		pts[i] = p
	}
	return pts
}

// LatinHypercube divides each dimension into n equal strata, draws one
// uniform value per stratum, and pairs strata across dimensions by a
// without-replacement shuffle. Every one-dimensional projection of the
// result covers all n strata exactly once.
func LatinHypercube(rng *rand.Rand, lower, upper []float64, n int) [][]float64 {
	dim := len(lower)
	pts := make([][]float64, n)
	for i := range pts {
		pts[i] = make([]float64, dim)
	}
	for d := 0; d < dim; d++ {
		width := (upper[d] - lower[d]) / float64(n)
		order := rng.Perm(n)
		for i := 0; i < n; i++ {
			s := float64(order[i])
			pts[i][d] = lower[d] + width*(s+rng.Float64())
		}
	}
	return pts
}

// QuadTree emits points on a refining lattice: level zero is the box
// center, and each further level places points at the midpoints of
// 2^level equal strata per dimension, enumerating every cross-dimension
// combination in mixed-radix order. Deterministic, so repeated runs
// start from the same population.
func QuadTree(lower, upper []float64, n int) [][]float64 {
	dim := len(lower)
	pts := make([][]float64, 0, n)
	for level := 0; len(pts) < n; level++ {
		side := 1 << level
		combos := int(math.Pow(float64(side), float64(dim)))
		for c := 0; c < combos && len(pts) < n; c++ {
			p := make([]float64, dim)
			rem := c
			for d := 0; d < dim; d++ {
				k := rem % side
				rem /= side
				frac := (2*float64(k) + 1) / float64(2*side)
				p[d] = lower[d] + frac*(upper[d]-lower[d])
			}
			pts = append(pts, p)
		}
	}
	return pts
}
