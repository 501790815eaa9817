package usage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_usage (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id            TEXT NOT NULL UNIQUE,
    status            TEXT NOT NULL,
    error_message     TEXT NOT NULL DEFAULT '',
    started_at        TEXT NOT NULL,
    completed_at      TEXT NOT NULL,
    duration_ms       INTEGER NOT NULL,
    parameter_count   INTEGER NOT NULL DEFAULT 0,
    worker_name       TEXT NOT NULL DEFAULT '',
    synced            INTEGER NOT NULL DEFAULT 0,
    created_at        TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_job_usage_synced ON job_usage(synced) WHERE synced = 0;
`

// Store provides SQLite-backed storage for usage records.
type Store struct {
	db *sql.DB

	// LogFn receives a warning if RecordJob's insert fails. Optional; a
	// nil LogFn simply drops the failure, since the ledger is a
	// best-effort audit trail, not load-bearing for job processing.
	LogFn func(level, message string)
}

// OpenStore opens (or creates) the usage database at dbPath and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert stores a usage record. Duplicate job_id inserts are silently ignored.
func (s *Store) Insert(r UsageRecord) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO job_usage (
			job_id, status, error_message,
			started_at, completed_at, duration_ms,
			parameter_count, worker_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Status, r.ErrorMessage,
		r.StartedAt.UTC().Format(time.RFC3339), r.CompletedAt.UTC().Format(time.RFC3339), r.DurationMs,
		r.ParameterCount, r.WorkerName,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// QueryUnsynced returns up to limit records that have not been synced.
func (s *Store) QueryUnsynced(limit int) ([]UsageRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, status, error_message,
		       started_at, completed_at, duration_ms,
		       parameter_count, worker_name
		FROM job_usage
		WHERE synced = 0
		ORDER BY id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unsynced: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var r UsageRecord
		var startedAt, completedAt string
		if err := rows.Scan(
			&r.ID, &r.JobID, &r.Status, &r.ErrorMessage,
			&startedAt, &completedAt, &r.DurationMs,
			&r.ParameterCount, &r.WorkerName,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339, completedAt); err == nil {
			r.CompletedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// MarkSynced sets the synced flag to 1 for the given record IDs.
func (s *Store) MarkSynced(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE job_usage SET synced = 1 WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("mark synced id=%d: %w", id, err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordJob satisfies processor.UsageRecorder: it builds a UsageRecord from
// the terminal outcome and inserts it, swallowing (and logging) any insert
// failure rather than propagating it, since the ledger must never affect
// job processing itself.
func (s *Store) RecordJob(jobID uint64, status, errMessage, workerName string, parameterCount int, startedAt, completedAt time.Time) {
	record := RecordResult(jobID, status, errMessage, workerName, parameterCount, startedAt, completedAt)
	if err := s.Insert(record); err != nil && s.LogFn != nil {
		s.LogFn("warning", fmt.Sprintf("usage ledger insert failed for job %d: %v", jobID, err))
	}
}

// RecordResult builds a UsageRecord from a terminal job outcome. jobID is
// the job's numeric id (spec.md Job.job_id); workerName is the bound
// worker's Metadata.GetName().
func RecordResult(jobID uint64, status string, errMessage string, workerName string, parameterCount int, startedAt, completedAt time.Time) UsageRecord {
	return UsageRecord{
		JobID:          fmt.Sprintf("%d", jobID),
		Status:         status,
		ErrorMessage:   errMessage,
		WorkerName:     workerName,
		ParameterCount: parameterCount,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		DurationMs:     completedAt.Sub(startedAt).Milliseconds(),
	}
}
