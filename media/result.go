package media

// ProcessResult is the per-frame outcome a MediaWorker's ProcessFrame
// callback returns.
type ProcessResult struct {
	kind    processResultKind
	payload []byte
	message string
}

type processResultKind int

const (
	resultContinue processResultKind = iota
	resultOutput
	resultStop
	resultError
	resultEndOfProcess
)

// Continue tells the pipeline to keep pulling frames without emitting
// anything downstream.
func Continue() ProcessResult { return ProcessResult{kind: resultContinue} }

// Output emits payload downstream via the result sink and keeps pulling.
func Output(payload []byte) ProcessResult { return ProcessResult{kind: resultOutput, payload: payload} }

// Stop ends the job: no more frames are pulled.
func Stop() ProcessResult { return ProcessResult{kind: resultStop} }

// Error signals that frame processing failed with message.
func Error(message string) ProcessResult { return ProcessResult{kind: resultError, message: message} }

// EndOfProcess is the terminal marker the pipeline itself sends into the
// result sink after ending_process runs; workers never construct it
// directly.
func EndOfProcess() ProcessResult { return ProcessResult{kind: resultEndOfProcess} }

// IsEndOfProcess reports whether r is the terminal marker.
func (r ProcessResult) IsEndOfProcess() bool { return r.kind == resultEndOfProcess }

// IsOutput reports whether r carries a payload to emit downstream.
func (r ProcessResult) IsOutput() bool { return r.kind == resultOutput }

// Payload returns the emitted bytes for an Output result.
func (r ProcessResult) Payload() []byte { return r.payload }

// IsStop reports whether r signals end of job.
func (r ProcessResult) IsStop() bool { return r.kind == resultStop }

// IsError reports whether r signals a frame processing failure.
func (r ProcessResult) IsError() bool { return r.kind == resultError }

// Message returns the error message for an Error result.
func (r ProcessResult) Message() string { return r.message }
