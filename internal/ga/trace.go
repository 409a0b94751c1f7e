package ga

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one generation's summary, serialized as a JSON line in
// trace.jsonl next to the evaluation logs.
type TraceEntry struct {
	// Generation is the outer loop counter, 1-based
	Generation int `json:"generation"`

	// Best is the lowest objective seen so far
	Best float64 `json:"best"`

	// Median is the median objective of the current population
	Median float64 `json:"median"`

	// Evals is the cumulative number of model runs
	Evals int `json:"evals"`

	// Mutations is the cumulative number of gene mutations
	Mutations int `json:"mutations"`

	// Timestamp records when this entry was written
	Timestamp time.Time `json:"timestamp"`

	// Params is the best parameter vector, omitted when empty
	Params []float64 `json:"params,omitempty"`
}

// TraceWriter appends generation summaries to a JSONL file. Safe for
// concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates trace.jsonl under dir, truncating any
// previous trace.
func NewTraceWriter(dir string) (*TraceWriter, error) {
	path := filepath.Join(dir, "trace.jsonl")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends one entry and flushes it, so a killed run keeps every
// completed generation.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return tw.writer.Flush()
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string { return tw.path }

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// ReadTrace loads every entry from the trace file under dir.
func ReadTrace(dir string) ([]TraceEntry, error) {
	f, err := os.Open(filepath.Join(dir, "trace.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	var entries []TraceEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e TraceEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace file: %w", err)
	}
	return entries, nil
}
