// Package reportstore persists premortem reports to SQLite so they can be
// listed, fetched, and re-run after the original request has finished.
package reportstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"premortem/internal/premortem"
)

var ErrNotFound = errors.New("report not found")

// Store keeps the full report as a JSON payload column; the indexed columns
// exist for listing and filtering without decoding every row.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	report_id  TEXT PRIMARY KEY,
	version    INTEGER NOT NULL DEFAULT 1,
	status     TEXT NOT NULL DEFAULT 'generating',
	idea       TEXT NOT NULL DEFAULT '',
	overall    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	payload    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
`

// Open opens (or creates) the store at dbPath. Pass ":memory:" for an
// ephemeral store in tests.
func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a report, replacing any previous version under the same id.
func (s *Store) Save(report *premortem.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO reports (report_id, version, status, idea, overall, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET
			version = excluded.version,
			status = excluded.status,
			overall = excluded.overall,
			updated_at = excluded.updated_at,
			payload = excluded.payload`,
		report.ID, report.Version, string(report.Status), report.OriginalIdea,
		string(report.RiskScore.Overall),
		report.CreatedAt.UTC().Format(time.RFC3339Nano),
		report.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(payload))
	if err != nil {
		return fmt.Errorf("save report %s: %w", report.ID, err)
	}
	return nil
}

func (s *Store) Get(id string) (*premortem.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.Get(&payload, `SELECT payload FROM reports WHERE report_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}

	var report premortem.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &report, nil
}

// Summary is the listing row, cheap to return without decoding payloads.
type Summary struct {
	ID        string    `db:"report_id" json:"id"`
	Version   int       `db:"version" json:"version"`
	Status    string    `db:"status" json:"status"`
	Idea      string    `db:"idea" json:"idea"`
	Overall   string    `db:"overall" json:"overall_risk"`
	CreatedAt string    `db:"created_at" json:"created_at"`
	UpdatedAt string    `db:"updated_at" json:"updated_at"`
}

func (s *Store) List(limit, offset int) ([]Summary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Summary{}
	err := s.db.Select(&out, `
		SELECT report_id, version, status, idea, overall, created_at, updated_at
		FROM reports ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}
