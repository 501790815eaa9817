// Package jobresult implements the fluent JobResult builder: the mutable
// accumulator a worker's process/process_frame callbacks fill in, which the
// processor seals into a ResponseMessage on job termination.
package jobresult

import (
	"encoding/json"
	"time"

	"github.com/aceteam-ai/mediaworker-sdk/param"
)

// Status is the job outcome. It only ever moves forward:
// Unknown -> {Completed, Error}, never back (invariant I2).
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// JobResult accumulates a job's output parameters and terminal status.
// Constructed with StatusUnknown when a Job order arrives; mutated only
// through the With* builder methods; sealed when the processor emits the
// ResponseMessage.
type JobResult struct {
	jobID             uint64
	status            Status
	message           string
	parameters        []param.Parameter
	executionDuration float64
	startedAt         time.Time
}

// New constructs a JobResult for jobID with StatusUnknown, stamping the
// wall-clock start time used later to compute ExecutionDuration.
func New(jobID uint64) *JobResult {
	return &JobResult{jobID: jobID, status: StatusUnknown, startedAt: time.Now()}
}

// JobID returns the job this result belongs to. Also satisfies
// mcaierr.ResultCarrier.
func (r *JobResult) JobID() uint64 { return r.jobID }

// Status returns the current status.
func (r *JobResult) Status() Status { return r.status }

// Message returns the free-form status message, if any.
func (r *JobResult) Message() string { return r.message }

// Parameters returns the accumulated output parameters.
func (r *JobResult) Parameters() []param.Parameter { return r.parameters }

// ExecutionDuration returns the wall-clock seconds stamped by Seal.
func (r *JobResult) ExecutionDuration() float64 { return r.executionDuration }

// WithStatus returns a copy of r with status transitioned to s. Status only
// ever moves forward (I2): calling WithStatus with StatusUnknown on an
// already-terminal result is a no-op.
func (r *JobResult) WithStatus(s Status) *JobResult {
	clone := *r
	if r.status != StatusUnknown && s == StatusUnknown {
		return &clone
	}
	clone.status = s
	return &clone
}

// WithMessage returns a copy of r with the free-form message set.
func (r *JobResult) WithMessage(message string) *JobResult {
	clone := *r
	clone.message = message
	return &clone
}

// WithParameters merges params into r's accumulated parameters by id; a
// later parameter with the same id replaces an earlier one.
func (r *JobResult) WithParameters(params ...param.Parameter) *JobResult {
	clone := *r
	clone.parameters = append([]param.Parameter(nil), r.parameters...)
	for _, p := range params {
		replaced := false
		for i, existing := range clone.parameters {
			if existing.ID == p.ID {
				clone.parameters[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			clone.parameters = append(clone.parameters, p)
		}
	}
	return &clone
}

// WithDestinationPaths is a convenience over WithParameters that sets the
// `destination_paths` output parameter (array_of_strings).
func (r *JobResult) WithDestinationPaths(paths ...string) *JobResult {
	raw, _ := json.Marshal(paths)
	return r.WithParameters(param.Parameter{
		ID:    "destination_paths",
		Kinds: []param.Kind{param.KindArrayOfStrings},
		Value: raw,
	})
}

// GetDestinationPaths returns the concatenation of every output parameter
// named destination_path (single string) and destination_paths (array).
func (r *JobResult) GetDestinationPaths() []string {
	var out []string
	for _, p := range r.parameters {
		switch p.ID {
		case "destination_path":
			var s string
			if json.Unmarshal(p.Value, &s) == nil && s != "" {
				out = append(out, s)
			}
		case "destination_paths":
			var list []string
			if json.Unmarshal(p.Value, &list) == nil {
				out = append(out, list...)
			}
		}
	}
	return out
}

// Seal stamps ExecutionDuration as the wall-clock seconds elapsed since New
// and returns the sealed result. Called by the processor exactly once, when
// emitting the terminal ResponseMessage.
func (r *JobResult) Seal() *JobResult {
	clone := *r
	clone.executionDuration = time.Since(r.startedAt).Seconds()
	return &clone
}

// wireResult is the JSON shape published to the completed/error queues
// (spec.md §6).
type wireResult struct {
	JobID             uint64            `json:"job_id"`
	Status            Status            `json:"status"`
	Message           string            `json:"message,omitempty"`
	Parameters        []param.Parameter `json:"parameters"`
	ExecutionDuration float64           `json:"execution_duration"`
}

// MarshalJSON implements the wire envelope described in spec.md §6.
func (r *JobResult) MarshalJSON() ([]byte, error) {
	params := r.parameters
	if params == nil {
		params = []param.Parameter{}
	}
	return json.Marshal(wireResult{
		JobID:             r.jobID,
		Status:            r.status,
		Message:           r.message,
		Parameters:        params,
		ExecutionDuration: r.executionDuration,
	})
}

// UnmarshalJSON parses a JobResult from its wire envelope. Used by tests
// asserting P2 (parse . serialize is the identity on job_id/status/parameters).
func (r *JobResult) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.jobID = w.JobID
	r.status = w.Status
	r.message = w.Message
	r.parameters = w.Parameters
	r.executionDuration = w.ExecutionDuration
	return nil
}
