// Package archive persists analysis run history in an embedded SQLite
// database. Archive failures are surfaced to callers but are never
// allowed to fail an analysis request.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
	"github.com/rickyyue315/winmaxreturn/internal/launcher"
)

const probeName = "archive"

// ErrNotFound is returned by GetRun for unknown run ids.
var ErrNotFound = errors.New("run not found")

// Run is one archived analysis run. Result is populated by GetRun and
// omitted from ListRuns.
type Run struct {
	ID                  string           `json:"id"`
	CreatedAt           time.Time        `json:"createdAt"`
	Source              string           `json:"source"`
	Mode                string           `json:"mode"`
	RecordCount         int              `json:"recordCount"`
	RecommendationCount int              `json:"recommendationCount"`
	TotalTransferQty    int              `json:"totalTransferQty"`
	Result              *analysis.Result `json:"result,omitempty"`
}

// Store is the SQLite-backed run archive.
type Store struct {
	db   *sql.DB
	path string
}

// migrations are applied in order; schema_migrations records the version
// high-water mark.
var migrations = []string{
	`CREATE TABLE runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		source TEXT NOT NULL,
		mode TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		recommendation_count INTEGER NOT NULL,
		total_transfer_qty INTEGER NOT NULL,
		result_json TEXT NOT NULL
	)`,
	`CREATE TABLE recommendations (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		article TEXT NOT NULL,
		om TEXT NOT NULL,
		transfer_site TEXT NOT NULL,
		receive_site TEXT NOT NULL,
		transfer_qty INTEGER NOT NULL,
		type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX idx_runs_created_at ON runs(created_at DESC)`,
}

// NewStore opens (creating if necessary) the archive database under dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	dbPath := filepath.Join(dir, "winmaxreturn.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("running archive migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SaveRun archives one analysis run and returns it with its generated id.
func (s *Store) SaveRun(ctx context.Context, source string, result *analysis.Result) (*Run, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshalling result: %w", err)
	}

	run := &Run{
		ID:                  uuid.NewString(),
		CreatedAt:           result.GeneratedAt,
		Source:              source,
		Mode:                string(result.Mode),
		RecordCount:         result.RecordCount,
		RecommendationCount: result.Summary.RecommendationCount,
		TotalTransferQty:    result.Summary.TotalTransferQty,
		Result:              result,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, source, mode, record_count, recommendation_count, total_transfer_qty, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.Source, run.Mode,
		run.RecordCount, run.RecommendationCount, run.TotalTransferQty, string(resultJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	for i, r := range result.Recommendations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recommendations (run_id, position, article, om, transfer_site, receive_site, transfer_qty, type, priority)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, r.Article, r.OM, r.TransferSite, r.ReceiveSite, r.TransferQty, r.Type, r.Priority,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting recommendation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

// GetRun loads a single archived run including its full result.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run        Run
		resultJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, source, mode, record_count, recommendation_count, total_transfer_qty, result_json
		FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.CreatedAt, &run.Source, &run.Mode,
		&run.RecordCount, &run.RecommendationCount, &run.TotalTransferQty, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}

	var result analysis.Result
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("unmarshalling result for run %s: %w", id, err)
	}
	run.Result = &result
	return &run, nil
}

// ListRuns returns up to limit archived runs, newest first, without
// their full results.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, source, mode, record_count, recommendation_count, total_transfer_qty
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.Source, &run.Mode,
			&run.RecordCount, &run.RecommendationCount, &run.TotalTransferQty); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Probe checks the database connection for the deep-health endpoint.
func (s *Store) Probe(ctx context.Context) launcher.ProbeResult {
	start := time.Now()
	err := s.db.PingContext(ctx)
	result := launcher.ProbeResult{
		Name:      probeName,
		OK:        err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
