package extract

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeOutput drops a fake simulator output file into a temp dir.
func writeOutput(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sim.out")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("Failed to write output fixture: %v", err)
	}
	return path
}

func TestValue_KeywordAndOffset(t *testing.T) {
	path := writeOutput(t, "header\nRESULTS\nhead  1.5  2.5  3.5\n")
	ex := New(Quit, 0)

	// columns are 1-indexed, so column 3 is the second number
	got, err := ex.Value(path, "RESULTS", 1, 3, ' ')
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != 2.5 {
		t.Errorf("Expected 2.5, got %v", got)
	}
}

func TestValue_NullKeyword(t *testing.T) {
	path := writeOutput(t, "42.0 43.0\n")
	ex := New(Quit, 0)

	got, err := ex.Value(path, NullKeyword, 0, 2, ' ')
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != 43.0 {
		t.Errorf("Expected 43.0, got %v", got)
	}
}

func TestValue_CustomSeparator(t *testing.T) {
	path := writeOutput(t, "a,b,7.25,d\n")
	ex := New(Quit, 0)

	got, err := ex.Value(path, NullKeyword, 0, 3, ',')
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != 7.25 {
		t.Errorf("Expected 7.25, got %v", got)
	}
}

func TestValue_FortranExponent(t *testing.T) {
	path := writeOutput(t, "val 1.000D-04\n")
	ex := New(Quit, 0)

	got, err := ex.Value(path, "val", 0, 2, ' ')
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if math.Abs(got-1e-4) > 1e-18 {
		t.Errorf("Expected 1e-4, got %v", got)
	}
}

func TestValue_QuitPolicyFailures(t *testing.T) {
	path := writeOutput(t, "x 1.0\n")

	cases := []struct {
		name    string
		keyword string
		line    int
		column  int
	}{
		{"keyword absent", "MISSING", 0, 1},
		{"insufficient lines", "x", 5, 1},
		{"insufficient columns", "x", 0, 9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex := New(Quit, 0)
			_, err := ex.Value(path, tc.keyword, tc.line, tc.column, ' ')
			if err == nil {
				t.Fatal("Expected error under quit policy")
			}
			var ee *Error
			if !errors.As(err, &ee) {
				t.Fatalf("Expected *Error, got %T", err)
			}
			if ee.File != path || ee.Keyword != tc.keyword {
				t.Errorf("Diagnostic missing location: %+v", ee)
			}
		})
	}
}

func TestValue_SubstitutePolicy(t *testing.T) {
	path := writeOutput(t, "x 1.0\n")
	ex := New(Substitute, -999.0)

	got, err := ex.Value(path, "MISSING", 0, 1, ' ')
	if err != nil {
		t.Fatalf("Substitute policy should not error: %v", err)
	}
	if got != -999.0 {
		t.Errorf("Expected fallback -999, got %v", got)
	}
}

func TestValue_CachesBuffer(t *testing.T) {
	path := writeOutput(t, "x 1.0\n")
	ex := New(Quit, 0)

	if _, err := ex.Value(path, "x", 0, 2, ' '); err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	// Rewrite the file; the cached buffer must still be served.
	if err := os.WriteFile(path, []byte("x 2.0\n"), 0644); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	got, err := ex.Value(path, "x", 0, 2, ' ')
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != 1.0 {
		t.Errorf("Expected cached 1.0, got %v", got)
	}

	// After Reset the new contents are visible.
	ex.Reset()
	got, err = ex.Value(path, "x", 0, 2, ' ')
	if err != nil {
		t.Fatalf("Value failed after reset: %v", err)
	}
	if got != 2.0 {
		t.Errorf("Expected fresh 2.0, got %v", got)
	}
}
