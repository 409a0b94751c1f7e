// Package archive persists evaluations to a sqlite database so runs
// can be compared and queried after the fact, independently of the
// text logs.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Evaluation is one archived model run.
type Evaluation struct {
	Session    string    `json:"session"`
	Rank       int       `json:"rank"`
	Run        int       `json:"run"`
	Generation int       `json:"generation"`
	Objective  float64   `json:"objective"`
	Params     []float64 `json:"params"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is a sqlite-backed evaluation archive.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewStore binds the archive to a database file. Open happens in Init.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Init opens the database and creates the schema if needed.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("archive path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS evaluations (
			session    TEXT NOT NULL,
			rank       INTEGER NOT NULL,
			run        INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			objective  REAL NOT NULL,
			params     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (session, rank, run)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_eval_objective
			ON evaluations (session, objective)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return err
		}
	}

	s.db = db
	return nil
}

// Save inserts or replaces one evaluation.
func (s *Store) Save(ctx context.Context, e Evaluation) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO evaluations (session, rank, run, generation, objective, params, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, rank, run) DO UPDATE SET
			generation = excluded.generation,
			objective = excluded.objective,
			params = excluded.params,
			created_at = excluded.created_at
	`, e.Session, e.Rank, e.Run, e.Generation, e.Objective, string(params), e.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// Best returns the lowest-objective evaluation of the session. The
// second return is false when the session has no evaluations.
func (s *Store) Best(ctx context.Context, session string) (Evaluation, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Evaluation{}, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT session, rank, run, generation, objective, params, created_at
		FROM evaluations
		WHERE session = ?
		ORDER BY objective ASC, run ASC
		LIMIT 1
	`, session)
	e, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Evaluation{}, false, nil
		}
		return Evaluation{}, false, err
	}
	return e, true, nil
}

// Sessions lists the archived session ids, newest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT session FROM evaluations
		GROUP BY session
		ORDER BY MAX(created_at) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

// History returns the session's evaluations in run order.
func (s *Store) History(ctx context.Context, session string) ([]Evaluation, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT session, rank, run, generation, objective, params, created_at
		FROM evaluations
		WHERE session = ?
		ORDER BY rank ASC, run ASC
	`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) getDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("archive is not initialized")
	}
	return s.db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row scanner) (Evaluation, error) {
	var (
		e       Evaluation
		params  string
		created string
	)
	if err := row.Scan(&e.Session, &e.Rank, &e.Run, &e.Generation, &e.Objective, &params, &created); err != nil {
		return Evaluation{}, err
	}
	if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
		return Evaluation{}, fmt.Errorf("decode params: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Evaluation{}, fmt.Errorf("decode timestamp: %w", err)
	}
	e.CreatedAt = t
	return e, nil
}
