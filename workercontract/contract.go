// Package workercontract defines the polymorphic interface worker
// implementations satisfy. The processor dispatches on capability
// (type assertion), never on runtime reflection, per design note §9.
package workercontract

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/aceteam-ai/mediaworker-sdk/jobresult"
	"github.com/aceteam-ai/mediaworker-sdk/media"
	"github.com/aceteam-ai/mediaworker-sdk/param"
)

// SDKVersion is this build's semver. CheckCompatibility does not consult
// it: it checks the worker's own Metadata.GetVersion against
// CompatibilityConstraint.
const SDKVersion = "1.0.0"

// CompatibilityConstraint is the default range a worker's declared version
// is checked against at bind time: this major version line only.
const CompatibilityConstraint = ">= 1.0.0, < 2.0.0"

// Channel is the progress-publishing handle a processor passes into a
// worker's callbacks. Workers call Feedback to push progress responses and
// poll ShouldStop to cooperatively observe cancellation.
type Channel interface {
	// Feedback publishes a progress update (0-100) or free-form status
	// text for the job currently running.
	Feedback(progress int, message string)

	// ShouldStop reports whether a StopProcess/StopWorker order targeting
	// this job has been received. Workers that never poll it cannot be
	// preempted; the SDK never force-terminates (§4.5).
	ShouldStop() bool
}

// Metadata is the pure metadata every worker implementation supplies,
// exposed to external tooling via the Status order (spec.md §6).
type Metadata interface {
	GetName() string
	GetShortDescription() string
	GetDescription() string
	GetVersion() string

	// ParameterSchema returns a JSON Schema document describing the
	// worker's typed parameters.
	ParameterSchema() ([]byte, error)
}

// Worker is the capability every bound implementation must satisfy beyond
// metadata: one-time initialization, run once before the first job.
type Worker interface {
	Metadata

	// Init is called before the first job. Once it succeeds the processor
	// never calls it again; after a failure it is called again before the
	// next job.
	Init() error
}

// MonolithicWorker is the capability a non-media worker implements: a
// single synchronous callback that runs the whole job.
type MonolithicWorker interface {
	Worker

	// Process runs the job to completion synchronously on the processor's
	// goroutine. channel is nil only when invoked outside a live
	// processor (e.g. unit tests).
	Process(ctx context.Context, channel Channel, parameters *param.Job, result *jobresult.JobResult) (*jobresult.JobResult, error)
}

// MediaWorker is the capability a streaming worker implements: the
// four-phase media pipeline protocol (spec.md §4.7).
type MediaWorker interface {
	Worker

	// InitProcess opens the job's media input via formatContext and
	// declares which streams (and with what filter graphs) it wants to
	// consume.
	InitProcess(parameters *param.Job, formatContext *media.FormatContext, sink *media.ResultSink) ([]media.StreamDescriptor, error)

	// ProcessFrame handles one decoded (and filtered) frame from
	// streamIndex, in presentation-timestamp order within that stream.
	ProcessFrame(result *jobresult.JobResult, streamIndex int, frame *media.Frame) (media.ProcessResult, error)

	// EndingProcess is called exactly once after the last frame or on
	// cancellation. Never called if InitProcess itself failed.
	EndingProcess() error
}

// CapabilityOf inspects worker and reports which optional capabilities it
// satisfies beyond the base Worker interface.
func CapabilityOf(worker Worker) (monolithic MonolithicWorker, streaming MediaWorker) {
	m, _ := worker.(MonolithicWorker)
	s, _ := worker.(MediaWorker)
	return m, s
}

// CheckCompatibility parses worker's declared version and verifies it
// satisfies CompatibilityConstraint. Called once at bind time, before
// Init, so an incompatible worker never reaches a job.
func CheckCompatibility(worker Metadata) error {
	declared, err := version.NewVersion(worker.GetVersion())
	if err != nil {
		return fmt.Errorf("parse worker version %q: %w", worker.GetVersion(), err)
	}

	constraint, err := version.NewConstraint(CompatibilityConstraint)
	if err != nil {
		return fmt.Errorf("parse compatibility constraint: %w", err)
	}

	if !constraint.Check(declared) {
		return fmt.Errorf("worker version %s does not satisfy SDK compatibility constraint %s", declared, CompatibilityConstraint)
	}
	return nil
}

// CredentialAware is optionally implemented by a worker that resolves
// Credential-kind parameters via param.Job.GetCredentialParameter. The CLI
// bootstrap calls SetCredentialResolver once, after constructing the
// configured credential.Client and before the first job, so the worker
// never has to read credential service configuration itself.
type CredentialAware interface {
	SetCredentialResolver(resolver param.CredentialResolver)
}
