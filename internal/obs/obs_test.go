package obs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calibkit/calib/internal/config"
	"github.com/calibkit/calib/internal/extract"
)

func testConfig() *config.File {
	return &config.File{
		Obs: []config.ObsSpec{
			{Name: "h1", Value: 1.5, Weight: 1, File: "out.txt", Keyword: "heads", Line: 1, Column: 2, Sep: ' ', Group: "none"},
			{Name: "h2", Value: 2.5, Weight: 2, File: "out.txt", Keyword: "heads", Line: 2, Column: 2, Sep: ' ', Group: "none"},
			{Name: "flux", Value: 9.9, Weight: 1, File: "flux.txt", Keyword: extract.NullKeyword, Line: 0, Column: 1, Sep: ' ', Group: "flows"},
			{Name: "aux", Value: 0, Weight: 0, File: "out.txt", Keyword: "heads", Line: 1, Column: 2, Sep: ' ', Augmented: true, Group: "none"},
			{Name: "dead", Value: 0, Weight: 0, File: "out.txt", Keyword: "heads", Line: 1, Column: 2, Sep: ' ', Group: "none"},
		},
	}
}

func writeOutputs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out := "header\nheads\nw1 1.4\nw2 2.6\n"
	if err := os.WriteFile(filepath.Join(dir, "out.txt"), []byte(out), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "flux.txt"), []byte("10.1 extra\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestNewGroupDropsZeroWeight(t *testing.T) {
	g := NewGroup(testConfig())
	if g.Len() != 4 {
		t.Fatalf("Len = %d, want 4 (zero-weight non-augmented dropped)", g.Len())
	}
	for _, o := range g.All() {
		if o.Name == "dead" {
			t.Fatal("zero-weight observation survived")
		}
	}
}

func TestExtractFillsSimValues(t *testing.T) {
	g := NewGroup(testConfig())
	dir := writeOutputs(t)
	ex := extract.New(extract.Quit, 0)
	if err := g.Extract(ex, dir); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := map[string]float64{"h1": 1.4, "h2": 2.6, "flux": 10.1, "aux": 1.4}
	for _, o := range g.All() {
		if o.Sim != want[o.Name] {
			t.Fatalf("%s: sim = %g, want %g", o.Name, o.Sim, want[o.Name])
		}
	}
}

func TestResidualsSkipAugmentedAndFilterByGroup(t *testing.T) {
	g := NewGroup(testConfig())
	dir := writeOutputs(t)
	ex := extract.New(extract.Quit, 0)
	if err := g.Extract(ex, dir); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	meas, sim, wgt := g.Residuals("")
	if len(meas) != 3 || len(sim) != 3 || len(wgt) != 3 {
		t.Fatalf("all-group residuals = %d, want 3", len(meas))
	}

	meas, _, _ = g.Residuals("flows")
	if len(meas) != 1 || meas[0] != 9.9 {
		t.Fatalf("flows residuals = %v, want [9.9]", meas)
	}
}

func TestGroupsOrder(t *testing.T) {
	g := NewGroup(testConfig())
	got := g.Groups()
	if len(got) != 2 || got[0] != "none" || got[1] != "flows" {
		t.Fatalf("Groups = %v, want [none flows]", got)
	}
}
