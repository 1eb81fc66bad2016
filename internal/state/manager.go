// Package state keeps the history of push runs in SQLite. It never caches
// tree listings: every run scans both trees from scratch.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/davpush/internal/domain"
)

// DatabaseFileName is the SQLite file inside the state directory
const DatabaseFileName = "davpush.db"

// Manager handles run history persistence
type Manager struct {
	db *sql.DB
}

// RunRecord represents a single push run
type RunRecord struct {
	ID        int64
	RunID     string
	Target    string // remote root URL
	LocalRoot string
	StartTime time.Time
	EndTime   time.Time
	Status    string // "success", "failed", "partial"

	LocalCount     int
	RemoteCount    int
	MissingFolders int
	MissingFiles   int
	FoldersCreated int
	FilesUploaded  int
	Failures       int
	BytesUploaded  int64

	Phase string // phase of the fatal error, if any
	Error string
}

// Duration returns how long the run took
func (r RunRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// RecordFromReport flattens a run report into a history record
func RecordFromReport(report *domain.RunReport, target, localRoot string) RunRecord {
	record := RunRecord{
		RunID:          report.RunID,
		Target:         target,
		LocalRoot:      localRoot,
		StartTime:      report.StartTime,
		EndTime:        report.EndTime,
		Status:         string(report.Status()),
		LocalCount:     report.Result.LocalCount,
		RemoteCount:    report.Result.RemoteCount,
		MissingFolders: len(report.Result.MissingFolders),
		MissingFiles:   len(report.Result.MissingFiles),
		FoldersCreated: report.FoldersCreated(),
		FilesUploaded:  report.FilesUploaded(),
		Failures:       len(report.Failures()),
		BytesUploaded:  report.BytesUploaded(),
		Phase:          string(report.Phase),
	}
	if report.Err != nil {
		record.Error = report.Err.Error()
	}
	return record
}

// NewManager creates a new state manager
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}

	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

// initSchema creates the database schema
func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		target TEXT NOT NULL,
		local_root TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		local_count INTEGER DEFAULT 0,
		remote_count INTEGER DEFAULT 0,
		missing_folders INTEGER DEFAULT 0,
		missing_files INTEGER DEFAULT 0,
		folders_created INTEGER DEFAULT 0,
		files_uploaded INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		bytes_uploaded INTEGER DEFAULT 0,
		phase TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target_time ON runs(target, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveRun records a push run
func (m *Manager) SaveRun(record RunRecord) error {
	switch domain.RunStatus(record.Status) {
	case domain.RunSuccess, domain.RunPartial, domain.RunFailed:
	default:
		return fmt.Errorf("invalid status: %s (must be 'success', 'failed', or 'partial')", record.Status)
	}
	if record.RunID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	query := `
		INSERT INTO runs (
			run_id, target, local_root, start_time, end_time, status,
			local_count, remote_count, missing_folders, missing_files,
			folders_created, files_uploaded, failures, bytes_uploaded,
			phase, error
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.Exec(query,
		record.RunID,
		record.Target,
		record.LocalRoot,
		record.StartTime,
		record.EndTime,
		record.Status,
		record.LocalCount,
		record.RemoteCount,
		record.MissingFolders,
		record.MissingFiles,
		record.FoldersCreated,
		record.FilesUploaded,
		record.Failures,
		record.BytesUploaded,
		record.Phase,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	return nil
}

const selectColumns = `
	SELECT id, run_id, target, local_root, start_time, end_time, status,
		local_count, remote_count, missing_folders, missing_files,
		folders_created, files_uploaded, failures, bytes_uploaded,
		phase, error
	FROM runs`

// GetHistory retrieves run history for one remote target, newest first
func (m *Manager) GetHistory(target string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectColumns+`
		WHERE target = ?
		ORDER BY start_time DESC
		LIMIT ?`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return collect(rows)
}

// GetAllHistory retrieves run history for every target, newest first
func (m *Manager) GetAllHistory(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectColumns+`
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query all history: %w", err)
	}
	return collect(rows)
}

// GetLastSuccess retrieves the last fully successful run for a target.
// Returns nil, nil if there is none.
func (m *Manager) GetLastSuccess(target string) (*RunRecord, error) {
	row := m.db.QueryRow(selectColumns+`
		WHERE target = ? AND status = 'success'
		ORDER BY start_time DESC
		LIMIT 1`, target)

	record, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return &record, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (RunRecord, error) {
	var record RunRecord
	err := s.Scan(
		&record.ID,
		&record.RunID,
		&record.Target,
		&record.LocalRoot,
		&record.StartTime,
		&record.EndTime,
		&record.Status,
		&record.LocalCount,
		&record.RemoteCount,
		&record.MissingFolders,
		&record.MissingFiles,
		&record.FoldersCreated,
		&record.FilesUploaded,
		&record.Failures,
		&record.BytesUploaded,
		&record.Phase,
		&record.Error,
	)
	return record, err
}

func collect(rows *sql.Rows) ([]RunRecord, error) {
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
