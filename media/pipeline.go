package media

import (
	"context"

	"github.com/aceteam-ai/mediaworker-sdk/jobresult"
	"github.com/aceteam-ai/mediaworker-sdk/param"
)

// StreamProcessor is the subset of workercontract.MediaWorker the pipeline
// drives. Defined locally (rather than importing workercontract) so media
// stays a leaf package with no dependency back on the contract that embeds
// it — workercontract.MediaWorker structurally satisfies this interface.
type StreamProcessor interface {
	InitProcess(parameters *param.Job, formatContext *FormatContext, sink *ResultSink) ([]StreamDescriptor, error)
	ProcessFrame(result *jobresult.JobResult, streamIndex int, frame *Frame) (ProcessResult, error)
	EndingProcess() error
}

// SourceResolver rewrites a job's source URL before the demuxer opens it —
// e.g. turning an s3:// URL into a pre-signed HTTPS URL
// (internal/s3source.Resolver). Optional: a Pipeline with no resolver opens
// source URLs exactly as given.
type SourceResolver interface {
	Resolve(ctx context.Context, sourceURL string) (string, error)
}

// Pipeline drives the four-phase media protocol (spec.md §4.7) for a single
// job: init_process, decoder/filter assembly, the process_frame loop, and
// ending_process, funneling Output frames through a single ResultSink.
type Pipeline struct {
	demuxer  Demuxer
	sink     *ResultSink
	resolver SourceResolver
}

// NewPipeline builds a Pipeline over demuxer, with a result sink of the
// given backpressure capacity.
func NewPipeline(demuxer Demuxer, sinkCapacity int) *Pipeline {
	return &Pipeline{demuxer: demuxer, sink: NewResultSink(sinkCapacity)}
}

// WithSourceResolver attaches a SourceResolver the Pipeline consults before
// opening a job's source URL.
func (p *Pipeline) WithSourceResolver(resolver SourceResolver) *Pipeline {
	p.resolver = resolver
	return p
}

// Sink returns the pipeline's result sink, for a consumer to read from.
func (p *Pipeline) Sink() *ResultSink { return p.sink }

// Run executes the full four-phase protocol for one job. shouldStop is
// polled once per frame; when it reports true the demuxer is drained, no
// further frames are decoded, and ending_process still runs so the worker
// can release resources (I4, and the confirmed "no ending_process on
// failed init_process" open-question resolution).
func (p *Pipeline) Run(ctx context.Context, worker StreamProcessor, sourceURL string, parameters *param.Job, result *jobresult.JobResult, shouldStop func() bool) error {
	if p.resolver != nil {
		resolved, err := p.resolver.Resolve(ctx, sourceURL)
		if err != nil {
			return err
		}
		sourceURL = resolved
	}

	formatContext, err := p.demuxer.Open(ctx, sourceURL)
	if err != nil {
		return err
	}

	descriptors, err := worker.InitProcess(parameters, formatContext, p.sink)
	if err != nil {
		p.demuxer.Close()
		return err
	}

	if err := p.demuxer.SelectStreams(descriptors); err != nil {
		p.demuxer.Close()
		return err
	}

	frameErr := p.frameLoop(ctx, worker, result, shouldStop)

	endErr := worker.EndingProcess()
	p.sink.Send(EndOfProcess())
	p.demuxer.Close()

	if frameErr != nil {
		return frameErr
	}
	return endErr
}

func (p *Pipeline) frameLoop(ctx context.Context, worker StreamProcessor, result *jobresult.JobResult, shouldStop func() bool) error {
	for {
		if shouldStop != nil && shouldStop() {
			p.demuxer.Drain()
			return nil
		}

		frame, err := p.demuxer.NextFrame(ctx)
		if err != nil {
			return err
		}
		if frame == nil {
			return nil // end of stream
		}

		outcome, err := worker.ProcessFrame(result, frame.StreamIndex, frame)
		if err != nil {
			return err
		}

		switch {
		case outcome.IsStop():
			return nil
		case outcome.IsError():
			return &frameError{outcome.Message()}
		case outcome.IsOutput():
			if !p.sink.Send(outcome) {
				return nil // sink closed (cancellation raced the send)
			}
		}
	}
}

type frameError struct{ msg string }

func (e *frameError) Error() string { return e.msg }
