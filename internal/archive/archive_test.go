package archive

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "calib.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndBest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	evals := []Evaluation{
		{Session: "s1", Rank: 0, Run: 1, Generation: 1, Objective: 10, Params: []float64{1, 2}},
		{Session: "s1", Rank: 0, Run: 2, Generation: 1, Objective: 3, Params: []float64{2, 1}},
		{Session: "s1", Rank: 1, Run: 1, Generation: 2, Objective: 7, Params: []float64{0, 0}},
	}
	for _, e := range evals {
		if err := s.Save(ctx, e); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	best, ok, err := s.Best(ctx, "s1")
	if err != nil {
		t.Fatalf("Best: %v", err)
	}
	if !ok || best.Objective != 3 {
		t.Fatalf("best = %+v (ok=%v), want objective 3", best, ok)
	}
	if len(best.Params) != 2 || best.Params[0] != 2 {
		t.Fatalf("best params = %v, want [2 1]", best.Params)
	}

	if _, ok, err := s.Best(ctx, "missing"); err != nil || ok {
		t.Fatalf("unknown session: ok=%v err=%v", ok, err)
	}
}

func TestSaveUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := Evaluation{Session: "s1", Rank: 0, Run: 1, Objective: 10, Params: []float64{1}}
	if err := s.Save(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Objective = 5
	if err := s.Save(ctx, e); err != nil {
		t.Fatal(err)
	}

	hist, err := s.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Objective != 5 {
		t.Fatalf("history = %+v, want single updated row", hist)
	}
}

func TestHistoryOrderAndSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for run := 3; run >= 1; run-- {
		if err := s.Save(ctx, Evaluation{Session: "s1", Run: run, Objective: float64(run), Params: nil}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Save(ctx, Evaluation{Session: "s2", Run: 1, Objective: 1, Params: []float64{9}}); err != nil {
		t.Fatal(err)
	}

	hist, err := s.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	for i, e := range hist {
		if e.Run != i+1 {
			t.Fatalf("history out of order: %+v", hist)
		}
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %v, want 2", sessions)
	}
}

func TestUninitializedStoreErrors(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "calib.db"))
	if err := s.Save(context.Background(), Evaluation{}); err == nil {
		t.Fatal("expected error from uninitialized store")
	}
}
