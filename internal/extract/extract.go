// Package extract reads scalar values out of simulator output files.
//
// A value is addressed by (keyword, line offset, column, separator):
// find the first occurrence of keyword, advance the given number of
// newlines, split the resulting line on the separator and parse the
// 1-indexed column as a float. Output files are read once per
// evaluation and cached by path so that observations sharing a file
// reuse the buffer.
package extract

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Policy controls how extraction failures are handled. The policy is
// process-wide and fixed at startup.
type Policy int

const (
	// Quit aborts the run with a structured diagnostic.
	Quit Policy = iota
	// Substitute returns the configured fallback value and logs a warning.
	Substitute
)

// Error is the structured diagnostic for a failed extraction.
type Error struct {
	File    string
	Keyword string
	Line    int
	Column  int
	Sep     byte
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: keyword %q line %d column %d sep %q: %s",
		e.File, e.Keyword, e.Line, e.Column, e.Sep, e.Reason)
}

// NullKeyword addresses the start of the file instead of a search string.
const NullKeyword = "OST_NULL"

// Extractor caches output files for the duration of one evaluation.
type Extractor struct {
	policy   Policy
	fallback float64
	files    map[string]string
}

// New creates an extractor with the given failure policy. The fallback
// value is only used under the Substitute policy.
func New(policy Policy, fallback float64) *Extractor {
	return &Extractor{
		policy:   policy,
		fallback: fallback,
		files:    make(map[string]string),
	}
}

// Reset drops all cached file buffers. Call between evaluations.
func (e *Extractor) Reset() {
	clear(e.files)
}

// Load reads path into the cache if not already present.
func (e *Extractor) Load(path string) error {
	if _, ok := e.files[path]; ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read output file: %w", err)
	}
	e.files[path] = string(data)
	return nil
}

// Value extracts the scalar at (keyword, lineOffset, column, sep) from the
// cached buffer for path. Under the Substitute policy a failed extraction
// logs a warning and yields the fallback value with a nil error.
func (e *Extractor) Value(path, keyword string, lineOffset, column int, sep byte) (float64, error) {
	buf, ok := e.files[path]
	if !ok {
		if err := e.Load(path); err != nil {
			return e.fail(path, keyword, lineOffset, column, sep, err.Error())
		}
		buf = e.files[path]
	}

	pos := buf
	if keyword != NullKeyword {
		i := strings.Index(buf, keyword)
		if i < 0 {
			return e.fail(path, keyword, lineOffset, column, sep, "keyword not found")
		}
		pos = buf[i:]
	}

	for n := 0; n < lineOffset; n++ {
		i := strings.IndexByte(pos, '\n')
		if i < 0 {
			return e.fail(path, keyword, lineOffset, column, sep, "not enough lines after keyword")
		}
		pos = pos[i+1:]
	}
	if i := strings.IndexByte(pos, '\n'); i >= 0 {
		pos = pos[:i]
	}

	field, ok := selectColumn(pos, column, sep)
	if !ok {
		return e.fail(path, keyword, lineOffset, column, sep, "not enough columns")
	}

	v, err := strconv.ParseFloat(repairFortran(field), 64)
	if err != nil {
		return e.fail(path, keyword, lineOffset, column, sep, "unparseable value "+strconv.Quote(field))
	}
	return v, nil
}

func (e *Extractor) fail(path, keyword string, line, column int, sep byte, reason string) (float64, error) {
	err := &Error{File: path, Keyword: keyword, Line: line, Column: column, Sep: sep, Reason: reason}
	if e.policy == Substitute {
		slog.Warn("extraction failed, substituting fallback value",
			"file", path, "keyword", keyword, "line", line, "column", column,
			"fallback", e.fallback, "reason", reason)
		return e.fallback, nil
	}
	return 0, err
}

// selectColumn returns the 1-indexed column of line. A space separator
// means any run of whitespace.
func selectColumn(line string, column int, sep byte) (string, bool) {
	if sep == ' ' {
		fields := strings.Fields(line)
		if column < 1 || column > len(fields) {
			return "", false
		}
		return fields[column-1], true
	}
	fields := strings.Split(line, string(sep))
	if column < 1 || column > len(fields) {
		return "", false
	}
	return strings.TrimSpace(fields[column-1]), true
}

// repairFortran rewrites Fortran-style exponents (1.000D-04) into the
// form strconv accepts.
func repairFortran(s string) string {
	if strings.ContainsAny(s, "dD") {
		s = strings.ReplaceAll(s, "D", "E")
		s = strings.ReplaceAll(s, "d", "E")
	}
	return s
}
