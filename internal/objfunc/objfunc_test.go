package objfunc

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/calibkit/calib/internal/config"
	"github.com/calibkit/calib/internal/extract"
	"github.com/calibkit/calib/internal/obs"
)

func extractedGroup(t *testing.T, specs []config.ObsSpec, output string) *obs.Group {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "out.txt"), []byte(output), 0644); err != nil {
		t.Fatal(err)
	}
	g := obs.NewGroup(&config.File{Obs: specs})
	if err := g.Extract(extract.New(extract.Quit, 0), dir); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return g
}

func twoObs() []config.ObsSpec {
	return []config.ObsSpec{
		{Name: "o1", Value: 2, Weight: 1, File: "out.txt", Keyword: extract.NullKeyword, Line: 0, Column: 1, Sep: ' ', Group: "none"},
		{Name: "o2", Value: 3, Weight: 2, File: "out.txt", Keyword: extract.NullKeyword, Line: 1, Column: 1, Sep: ' ', Group: "flows"},
	}
}

func TestWSSE(t *testing.T) {
	g := extractedGroup(t, twoObs(), "1\n2\n") // residuals 1 and 1
	v, err := WSSE{}.Calc("", g)
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	// 1^2 + (2*1)^2
	if math.Abs(v-5) > 1e-12 {
		t.Fatalf("wsse = %g, want 5", v)
	}
}

func TestWSSEBreakdownSumsToTotal(t *testing.T) {
	g := extractedGroup(t, twoObs(), "1\n2\n")
	w := WSSE{}
	total, _ := w.Calc("", g)
	sum := 0.0
	for _, gv := range w.Breakdown(g) {
		sum += gv.Value
	}
	if math.Abs(total-sum) > 1e-12 {
		t.Fatalf("breakdown sums to %g, total is %g", sum, total)
	}
}

func TestSAWE(t *testing.T) {
	g := extractedGroup(t, twoObs(), "3\n2\n") // residuals -1 and 1
	v, err := SAWE{}.Calc("", g)
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	// |-1| + |2*1|
	if math.Abs(v-3) > 1e-12 {
		t.Fatalf("sawe = %g, want 3", v)
	}
}

func TestWSSEWeightInsideTransform(t *testing.T) {
	// With the log transform the weight multiplies both values before
	// the transform, so ln(w*y) - ln(w*s) = ln(y/s) and the weight
	// cancels. The objective must not depend on it.
	sim := math.E * (1 + 1e-6)
	want := math.Log(math.E/sim) * math.Log(math.E/sim)
	for _, weight := range []float64{1, 10} {
		specs := []config.ObsSpec{
			{Name: "o1", Value: math.E, Weight: weight, File: "out.txt", Keyword: extract.NullKeyword, Line: 0, Column: 1, Sep: ' ', Group: "none"},
		}
		g := extractedGroup(t, specs, "2.718284546\n")
		g.All()[0].Sim = sim // exact simulated value, not text-rounded
		v, err := WSSE{Trans: BoxCox{Enabled: true, Lambda: 0}}.Calc("", g)
		if err != nil {
			t.Fatalf("Calc: %v", err)
		}
		if math.Abs(v-want) > want*1e-6 {
			t.Fatalf("weight %g: WSSE = %g, want %g", weight, v, want)
		}
	}
}

func TestBoxCoxLogCase(t *testing.T) {
	// lambda zero reduces to the natural log, so an observation of e
	// transformed gives exactly 1
	b := BoxCox{Enabled: true, Lambda: 0}
	if got := b.Apply(math.E); math.Abs(got-1) > 1e-12 {
		t.Fatalf("box-cox(e) = %g, want 1", got)
	}
}

func TestBoxCoxNonPositiveFallsBack(t *testing.T) {
	b := BoxCox{Enabled: true, Lambda: 0.5}
	if got := b.Apply(-2); got != -2 {
		t.Fatalf("box-cox(-2) = %g, want identity fallback", got)
	}
}

func TestBoxCoxPower(t *testing.T) {
	b := BoxCox{Enabled: true, Lambda: 2}
	if got := b.Apply(3); math.Abs(got-4) > 1e-12 { // (9-1)/2
		t.Fatalf("box-cox(3; 2) = %g, want 4", got)
	}
}

func TestUserObjective(t *testing.T) {
	dir := t.TempDir()
	out := "iteration 1\nOST_ObjFuncVal 12.5\niteration 2\nOST_ObjFuncVal 4.25\n"
	if err := os.WriteFile(filepath.Join(dir, OutputFile), []byte(out), 0644); err != nil {
		t.Fatal(err)
	}
	v, err := User{}.Calc(dir, nil)
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	if v != 4.25 {
		t.Fatalf("user objective = %g, want last value 4.25", v)
	}
}

func TestUserObjectiveErrCode(t *testing.T) {
	dir := t.TempDir()
	out := "OST_ObjFuncVal 1.0\nOST_ModelErrCode 2\n"
	if err := os.WriteFile(filepath.Join(dir, OutputFile), []byte(out), 0644); err != nil {
		t.Fatal(err)
	}
	v, err := User{}.Calc(dir, nil)
	if err == nil {
		t.Fatal("expected error for nonzero error code")
	}
	if v != Huge {
		t.Fatalf("failed evaluation = %g, want sentinel", v)
	}
}

func TestUserObjectiveMissingFile(t *testing.T) {
	if _, err := (User{}).Calc(t.TempDir(), nil); err == nil {
		t.Fatal("expected error for missing output file")
	}
}
