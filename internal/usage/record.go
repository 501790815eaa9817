// Package usage implements the SDK's usage ledger: a local SQLite-backed
// record of every job the processor has terminated, with a background
// syncer that republishes unsynced rows to an external collector.
package usage

import "time"

// UsageRecord captures one terminal job outcome for local accounting.
type UsageRecord struct {
	// ID is the database row id (set after Insert).
	ID int64

	// JobID identifies the job (spec.md §3 Job.job_id, stringified so the
	// schema stays stable regardless of the wire type's width).
	JobID string

	// Status is the terminal jobresult.Status string ("completed" or
	// "error").
	Status       string
	ErrorMessage string

	StartedAt   time.Time
	CompletedAt time.Time
	DurationMs  int64

	// ParameterCount is the number of output parameters the sealed
	// JobResult carried, a cheap signal for dashboards without storing the
	// full parameter payload.
	ParameterCount int

	// WorkerName identifies which bound worker implementation processed
	// the job (workercontract.Metadata.GetName()).
	WorkerName string

	Synced bool
}
