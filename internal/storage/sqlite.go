//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"flapneat/internal/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at_utc TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS genomes (
	id TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS artifacts (
	run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (run_id, kind)
);`

// SQLiteStore persists records as JSON payloads in a single database file.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	// One writer at a time; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("create schema in %s: %w", s.path, err)
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, query, args...)
	return err
}

// payload runs a single-row, single-column query. A missing row is reported
// as ok=false rather than an error.
func (s *SQLiteStore) payload(ctx context.Context, query string, args ...any) ([]byte, bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, false, err
	}
	var out []byte
	switch err := db.QueryRowContext(ctx, query, args...).Scan(&out); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return out, true, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, table := range []string{"runs", "genomes", "artifacts"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	data, err := encode(run)
	if err != nil {
		return err
	}
	return s.exec(ctx, `INSERT INTO runs (id, created_at_utc, payload) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET created_at_utc = excluded.created_at_utc, payload = excluded.payload`,
		run.ID, run.CreatedAtUTC, data)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	data, ok, err := s.payload(ctx, `SELECT payload FROM runs WHERE id = ?`, id)
	if err != nil || !ok {
		return model.RunRecord{}, ok, err
	}
	run, err := decode[model.RunRecord](data)
	if err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY created_at_utc DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		run, err := decode[model.RunRecord](data)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveGenome(ctx context.Context, genome model.Genome) error {
	data, err := encode(genome)
	if err != nil {
		return err
	}
	return s.exec(ctx, `INSERT INTO genomes (id, payload) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`, genome.ID, data)
}

func (s *SQLiteStore) GetGenome(ctx context.Context, id string) (model.Genome, bool, error) {
	data, ok, err := s.payload(ctx, `SELECT payload FROM genomes WHERE id = ?`, id)
	if err != nil || !ok {
		return model.Genome{}, ok, err
	}
	genome, err := decode[model.Genome](data)
	if err != nil {
		return model.Genome{}, false, err
	}
	return genome, true, nil
}

func (s *SQLiteStore) putArtifact(ctx context.Context, runID string, kind Kind, payload []byte) error {
	return s.exec(ctx, `INSERT INTO artifacts (run_id, kind, payload) VALUES (?, ?, ?)
		ON CONFLICT(run_id, kind) DO UPDATE SET payload = excluded.payload`, runID, string(kind), payload)
}

func (s *SQLiteStore) getArtifact(ctx context.Context, runID string, kind Kind) ([]byte, bool, error) {
	return s.payload(ctx, `SELECT payload FROM artifacts WHERE run_id = ? AND kind = ?`, runID, string(kind))
}

func (s *SQLiteStore) SaveFitnessHistory(ctx context.Context, runID string, history []float64) error {
	return saveArtifact(ctx, s, runID, KindFitnessHistory, history)
}

func (s *SQLiteStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	return loadArtifact[[]float64](ctx, s, runID, KindFitnessHistory)
}

func (s *SQLiteStore) SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	return saveArtifact(ctx, s, runID, KindDiagnostics, diagnostics)
}

func (s *SQLiteStore) GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	return loadArtifact[[]model.GenerationDiagnostics](ctx, s, runID, KindDiagnostics)
}

func (s *SQLiteStore) SaveTopGenomes(ctx context.Context, runID string, top []model.TopGenomeRecord) error {
	return saveArtifact(ctx, s, runID, KindTopGenomes, top)
}

func (s *SQLiteStore) GetTopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, bool, error) {
	return loadArtifact[[]model.TopGenomeRecord](ctx, s, runID, KindTopGenomes)
}

func (s *SQLiteStore) SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error {
	return saveArtifact(ctx, s, runID, KindLineage, lineage)
}

func (s *SQLiteStore) GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error) {
	return loadArtifact[[]model.LineageRecord](ctx, s, runID, KindLineage)
}
