// Package sqlite persists scans in a single SQLite file so results survive a restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id            TEXT PRIMARY KEY,
	keywords      TEXT NOT NULL,
	status        TEXT NOT NULL,
	submitted_at  TEXT NOT NULL,
	started_at    TEXT,
	finished_at   TEXT,
	error_text    TEXT NOT NULL DEFAULT '',
	tasks         INTEGER NOT NULL DEFAULT 0,
	failures      INTEGER NOT NULL DEFAULT 0,
	records       INTEGER NOT NULL DEFAULT 0,
	export_uri    TEXT NOT NULL DEFAULT '',
	records_json  TEXT NOT NULL DEFAULT '[]',
	outcomes_json TEXT NOT NULL DEFAULT '[]'
);`

// ScanStore implements jobs.ScanStore on top of database/sql and modernc.org/sqlite.
type ScanStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*ScanStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &ScanStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database.
func (s *ScanStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateScan stores a new scan.
func (s *ScanStore) CreateScan(ctx context.Context, scan jobs.ScanJob) error {
	keywords, err := json.Marshal(scan.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans (id, keywords, status, submitted_at, error_text, export_uri)
		VALUES (?, ?, ?, ?, ?, ?)`,
		scan.ID, string(keywords), string(scan.Status), formatTime(scan.Submitted), scan.ErrorText, scan.ExportURI,
	)
	if err != nil {
		return fmt.Errorf("create scan %s: %w", scan.ID, err)
	}
	return nil
}

// UpdateScanStatus updates the status and counters for a scan. Terminal scans are left untouched.
func (s *ScanStore) UpdateScanStatus(
	ctx context.Context,
	scanID string,
	status jobs.ScanStatus,
	errText string,
	counters jobs.ScanCounters,
) error {
	now := formatTime(s.now())
	var started, finished sql.NullString
	if status == jobs.ScanRunning {
		started = sql.NullString{String: now, Valid: true}
	}
	if status.Terminal() {
		finished = sql.NullString{String: now, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE scans
		SET status = ?, error_text = ?, tasks = ?, failures = ?, records = ?,
			started_at = COALESCE(started_at, ?),
			finished_at = COALESCE(?, finished_at)
		WHERE id = ? AND status NOT IN (?, ?, ?)`,
		string(status), errText, counters.Tasks, counters.Failures, counters.Records,
		started, finished,
		scanID, string(jobs.ScanSucceeded), string(jobs.ScanFailed), string(jobs.ScanCanceled),
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", scanID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.ensureExists(ctx, "update", scanID)
	}
	return nil
}

// SaveResults replaces the records and outcomes of a scan.
func (s *ScanStore) SaveResults(ctx context.Context, scanID string, records []jobs.JobRecord, outcomes []jobs.Outcome) error {
	if records == nil {
		records = []jobs.JobRecord{}
	}
	if outcomes == nil {
		outcomes = []jobs.Outcome{}
	}
	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	outcomesJSON, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scans SET records_json = ?, outcomes_json = ? WHERE id = ?`,
		string(recordsJSON), string(outcomesJSON), scanID,
	)
	if err != nil {
		return fmt.Errorf("save results %s: %w", scanID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save results %s: %w", scanID, jobs.ErrScanNotFound)
	}
	return nil
}

// SetExportURI records where the scan's CSV was uploaded.
func (s *ScanStore) SetExportURI(ctx context.Context, scanID, uri string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scans SET export_uri = ? WHERE id = ?`, uri, scanID)
	if err != nil {
		return fmt.Errorf("set export uri %s: %w", scanID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set export uri %s: %w", scanID, jobs.ErrScanNotFound)
	}
	return nil
}

// GetScan fetches a scan by ID.
func (s *ScanStore) GetScan(ctx context.Context, scanID string) (jobs.ScanJob, error) {
	var (
		scan               jobs.ScanJob
		keywords, status   string
		submitted          string
		started, finished  sql.NullString
		tasks, failures, n int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, keywords, status, submitted_at, started_at, finished_at,
			error_text, tasks, failures, records, export_uri
		FROM scans WHERE id = ?`, scanID,
	).Scan(&scan.ID, &keywords, &status, &submitted, &started, &finished,
		&scan.ErrorText, &tasks, &failures, &n, &scan.ExportURI)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.ScanJob{}, fmt.Errorf("get %s: %w", scanID, jobs.ErrScanNotFound)
	}
	if err != nil {
		return jobs.ScanJob{}, fmt.Errorf("get %s: %w", scanID, err)
	}
	if err := json.Unmarshal([]byte(keywords), &scan.Keywords); err != nil {
		return jobs.ScanJob{}, fmt.Errorf("decode keywords %s: %w", scanID, err)
	}
	scan.Status = jobs.ScanStatus(status)
	scan.Counters = jobs.ScanCounters{Tasks: tasks, Failures: failures, Records: n}
	if scan.Submitted, err = parseTime(submitted); err != nil {
		return jobs.ScanJob{}, err
	}
	if scan.Started, err = parseNullTime(started); err != nil {
		return jobs.ScanJob{}, err
	}
	if scan.Finished, err = parseNullTime(finished); err != nil {
		return jobs.ScanJob{}, err
	}
	return scan, nil
}

// ListRecords returns the scan's records, empty until the scan finishes.
func (s *ScanStore) ListRecords(ctx context.Context, scanID string) ([]jobs.JobRecord, error) {
	raw, err := s.column(ctx, "records_json", scanID)
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", scanID, err)
	}
	records := []jobs.JobRecord{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode records %s: %w", scanID, err)
	}
	return records, nil
}

// ListOutcomes returns the scan's per-task outcomes.
func (s *ScanStore) ListOutcomes(ctx context.Context, scanID string) ([]jobs.Outcome, error) {
	raw, err := s.column(ctx, "outcomes_json", scanID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes %s: %w", scanID, err)
	}
	outcomes := []jobs.Outcome{}
	if err := json.Unmarshal(raw, &outcomes); err != nil {
		return nil, fmt.Errorf("decode outcomes %s: %w", scanID, err)
	}
	return outcomes, nil
}

// column reads one of the JSON payload columns; name is never user input.
func (s *ScanStore) column(ctx context.Context, name, scanID string) ([]byte, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT "+name+" FROM scans WHERE id = ?", scanID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrScanNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (s *ScanStore) ensureExists(ctx context.Context, op, scanID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM scans WHERE id = ?`, scanID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", op, scanID, jobs.ErrScanNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, scanID, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
