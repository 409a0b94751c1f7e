package sample

import (
	"testing"

	"golang.org/x/exp/rand"
)

var (
	lower = []float64{0, -10}
	upper = []float64{1, 10}
)

func inBox(t *testing.T, pts [][]float64) {
	t.Helper()
	for i, p := range pts {
		for d := range p {
			if p[d] < lower[d] || p[d] > upper[d] {
				t.Fatalf("point %d dimension %d = %g outside [%g, %g]", i, d, p[d], lower[d], upper[d])
			}
		}
	}
}

func TestRandomStaysInBox(t *testing.T) {
	pts := Random(rand.New(rand.NewSource(1)), lower, upper, 100)
	if len(pts) != 100 {
		t.Fatalf("got %d points, want 100", len(pts))
	}
	inBox(t, pts)
}

func TestLatinHypercubeCoversEveryStratum(t *testing.T) {
	const n = 20
	pts := LatinHypercube(rand.New(rand.NewSource(7)), lower, upper, n)
	inBox(t, pts)
	for d := range lower {
		width := (upper[d] - lower[d]) / n
		hit := make([]bool, n)
		for _, p := range pts {
			s := int((p[d] - lower[d]) / width)
			if s == n {
				s = n - 1
			}
			if hit[s] {
				t.Fatalf("dimension %d stratum %d hit twice", d, s)
			}
			hit[s] = true
		}
	}
}

func TestQuadTreeDeterministicAndCentered(t *testing.T) {
	pts := QuadTree(lower, upper, 5)
	if len(pts) != 5 {
		t.Fatalf("got %d points, want 5", len(pts))
	}
	inBox(t, pts)
	// level zero is the exact center of the box
	if pts[0][0] != 0.5 || pts[0][1] != 0 {
		t.Fatalf("first point = %v, want box center", pts[0])
	}
	again := QuadTree(lower, upper, 5)
	for i := range pts {
		for d := range pts[i] {
			if pts[i][d] != again[i][d] {
				t.Fatal("quadtree lattice is not deterministic")
			}
		}
	}
}
