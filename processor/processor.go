// Package processor implements the main event loop: the state machine that
// consumes OrderMessages (Job, Status, Stop), dispatches them to the bound
// worker implementation, and publishes ResponseMessages, with cooperative
// cancellation and one-job-at-a-time dispatch (spec.md §4.5).
package processor

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aceteam-ai/mediaworker-sdk/exchange"
	"github.com/aceteam-ai/mediaworker-sdk/logger"
	"github.com/aceteam-ai/mediaworker-sdk/mcaierr"
	"github.com/aceteam-ai/mediaworker-sdk/media"
	"github.com/aceteam-ai/mediaworker-sdk/workercontract"
)

// State is one of the processor's three states.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// UsageRecorder is notified once per dispatched job, after its terminal
// response has been published, for offline auditing (SPEC_FULL.md's
// "(ADDED) Usage ledger" ambient component). A job rejected by the one-time
// compatibility check or a failed Init is not recorded. Satisfied directly
// by *internal/usage.Store; declared as an interface here, rather than
// importing internal/usage directly, to keep processor's dependency
// surface to the packages its event loop actually needs.
type UsageRecorder interface {
	RecordJob(jobID uint64, status, errMessage, workerName string, parameterCount int, startedAt, completedAt time.Time)
}

// DemuxerFactory builds a concrete media.Demuxer for a media job. Supplied
// by the worker binary; the processor never constructs one itself, since
// the codec/container library is an external collaborator (spec.md §1).
type DemuxerFactory func() media.Demuxer

// Processor owns the bound worker implementation and drives it from orders
// read off an exchange.Exchange.
type Processor struct {
	ex             exchange.Exchange
	worker         workercontract.Worker
	demuxer        DemuxerFactory
	sinkSize       int
	log            *logger.Logger
	usage          UsageRecorder
	sourceResolver media.SourceResolver

	mu               sync.Mutex
	state            State
	runningJobID     uint64
	pendingTerminate bool
	stopFlag         atomic.Bool

	initDone bool
}

// Option configures a Processor at construction time.
type Option func(*Processor)

// WithDemuxerFactory sets the factory used to build a media.Demuxer for
// each media job. Required only if the bound worker implements
// workercontract.MediaWorker.
func WithDemuxerFactory(f DemuxerFactory) Option {
	return func(p *Processor) { p.demuxer = f }
}

// WithSinkCapacity sets the media result sink's channel capacity (default 16).
func WithSinkCapacity(n int) Option {
	return func(p *Processor) { p.sinkSize = n }
}

// WithLogger injects a logger. Defaults to a logger with no sink (console
// fallback).
func WithLogger(l *logger.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithUsageRecorder attaches the usage ledger. Optional: a Processor with
// no recorder simply doesn't record.
func WithUsageRecorder(r UsageRecorder) Option {
	return func(p *Processor) { p.usage = r }
}

// WithSourceResolver attaches a media.SourceResolver (e.g.
// internal/s3source.Resolver) consulted before a media job's source_url is
// handed to the demuxer. Optional; has no effect on MonolithicWorker jobs.
func WithSourceResolver(r media.SourceResolver) Option {
	return func(p *Processor) { p.sourceResolver = r }
}

// New constructs a Processor over ex, bound to worker.
func New(ex exchange.Exchange, worker workercontract.Worker, opts ...Option) *Processor {
	p := &Processor{ex: ex, worker: worker, state: StateIdle, sinkSize: 16, log: logger.New(nil)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the processor's current state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes the event loop until ctx is cancelled or a StopWorker order
// terminates it. Exactly one job runs at a time (I3): a job order is only
// dispatched once the previous job's terminal response has been published.
//
// Orders are read off the exchange on a dedicated goroutine, independent of
// job execution: Status/StopProcess/StopWorker are handled the instant they
// arrive, even while a job's monolithic Process or media frame loop is
// blocking the dispatch goroutine. Job orders are handed off through
// jobOrders and drained one at a time by this method, preserving I3.
func (p *Processor) Run(ctx context.Context) error {
	p.ex.SendResponse(ctx, exchange.ResponseMessage{Kind: exchange.ResponseWorkerStarted})

	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()

	jobOrders := make(chan exchange.OrderMessage)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			order, err := p.ex.NextOrder(readerCtx)
			if err != nil {
				if readerCtx.Err() != nil {
					return
				}
				p.log.Warning("error fetching order: %v", err)
				continue
			}

			switch order.Kind {
			case exchange.OrderStatus:
				p.handleStatus(ctx, order)
			case exchange.OrderStopWorker:
				p.handleStopWorker(ctx, order)
			case exchange.OrderStopProcess:
				p.handleStopProcess(order)
			case exchange.OrderJob, exchange.OrderInitProcess, exchange.OrderStartProcess:
				select {
				case jobOrders <- order:
				case <-readerCtx.Done():
					return
				}
			}

			if p.State() == StateTerminated {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-readerDone:
			return nil
		case order := <-jobOrders:
			p.handleJob(ctx, order)
			if p.State() == StateTerminated {
				cancelReader()
				<-readerDone
				return nil
			}
		}
	}
}

// statusDescriptor is the worker metadata descriptor a Status order
// resolves to (spec.md §6's "Worker metadata" external interface). There is
// no dedicated ResponseKind for it; a descriptor is carried as a Feedback's
// free-form message since the response-kind sum is closed at six variants
// (§3) and this is the only place external tooling needs it.
type statusDescriptor struct {
	Name             string          `json:"name"`
	ShortDescription string          `json:"short_description"`
	Description      string          `json:"description"`
	Version          string          `json:"version"`
	ParameterSchema  json.RawMessage `json:"parameter_schema"`
	State            string          `json:"state"`
}

// handleStatus answers a Status order without touching processor state; it
// never blocks on a running job (§4.5 state table: Status is valid in
// every state).
func (p *Processor) handleStatus(ctx context.Context, order exchange.OrderMessage) {
	p.mu.Lock()
	state := p.state
	jobID := p.runningJobID
	p.mu.Unlock()

	schema, err := p.worker.ParameterSchema()
	if err != nil {
		p.log.Warning("parameter schema: %v", err)
		schema = []byte("null")
	}

	descriptor := statusDescriptor{
		Name:             p.worker.GetName(),
		ShortDescription: p.worker.GetShortDescription(),
		Description:      p.worker.GetDescription(),
		Version:          p.worker.GetVersion(),
		ParameterSchema:  schema,
		State:            state.String(),
	}
	body, err := json.Marshal(descriptor)
	if err != nil {
		p.log.Warning("marshal status descriptor: %v", err)
		body = []byte(`{"state":"` + state.String() + `"}`)
	}
	p.ex.SendResponse(ctx, exchange.NewFeedback(jobID, -1, string(body)).WithOrder(order))
}

// handleStopWorker terminates the processor. If a job is currently running,
// termination is deferred until that job's terminal response has been
// published (pendingTerminate), so Run never abandons a job mid-flight; the
// order that requested the stop is acked by the exchange on receipt in that
// case (RabbitExchange never holds a control order open waiting on a job).
func (p *Processor) handleStopWorker(ctx context.Context, order exchange.OrderMessage) {
	p.mu.Lock()
	if p.state == StateRunning {
		p.pendingTerminate = true
		p.mu.Unlock()
		p.stopFlag.Store(true)
		return
	}
	p.state = StateTerminated
	p.mu.Unlock()
	p.ex.SendResponse(ctx, exchange.ResponseMessage{Kind: exchange.ResponseWorkerStopped}.WithOrder(order))
}

// handleStopProcess cancels the currently running job, if order targets it.
// A StopProcess naming any other job id, or arriving while Idle, is a no-op
// (§5 boundary: stop orders for a non-running job are silently ignored).
func (p *Processor) handleStopProcess(order exchange.OrderMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return
	}
	if order.Job == nil || order.Job.JobID != p.runningJobID {
		return
	}
	p.stopFlag.Store(true)
}

func (p *Processor) handleJob(ctx context.Context, order exchange.OrderMessage) {
	job := order.Job
	if job == nil {
		p.ex.SendResponse(ctx, exchange.NewError(0, mcaierr.RuntimeError("order carried no job"), nil).WithOrder(order))
		return
	}

	startedAt := time.Now()

	p.mu.Lock()
	p.state = StateRunning
	p.runningJobID = job.JobID
	p.mu.Unlock()
	p.stopFlag.Store(false)

	if !p.initDone {
		if err := workercontract.CheckCompatibility(p.worker); err != nil {
			p.ex.SendResponse(ctx, exchange.NewError(job.JobID, mcaierr.RuntimeError("%v", err), nil).WithOrder(order))
			p.finishJob(ctx)
			return
		}
		if err := p.worker.Init(); err != nil {
			p.ex.SendResponse(ctx, exchange.NewError(job.JobID, mcaierr.RuntimeError("worker init failed: %v", err), nil).WithOrder(order))
			p.finishJob(ctx)
			return
		}
		p.initDone = true
		p.ex.SendResponse(ctx, exchange.ResponseMessage{Kind: exchange.ResponseWorkerInitialized})
	}

	monolithic, streaming := workercontract.CapabilityOf(p.worker)

	var response exchange.ResponseMessage
	switch {
	case streaming != nil:
		response = p.runMediaJob(ctx, streaming, job)
	case monolithic != nil:
		response = p.runMonolithicJob(ctx, monolithic, job)
	default:
		response = exchange.NewError(job.JobID, mcaierr.NotImplemented(), nil)
	}

	p.ex.SendResponse(ctx, response.WithOrder(order))
	p.recordUsage(job.JobID, response, startedAt)
	p.finishJob(ctx)
}

// recordUsage notifies the usage ledger, if attached, once a job's terminal
// response has been built. A no-op when no UsageRecorder was configured.
func (p *Processor) recordUsage(jobID uint64, response exchange.ResponseMessage, startedAt time.Time) {
	if p.usage == nil {
		return
	}

	status := "error"
	message := ""
	parameterCount := 0
	if response.Kind == exchange.ResponseCompleted {
		status = "completed"
	}
	if response.Err != nil {
		message = response.Err.Error()
	}
	if response.Result != nil {
		parameterCount = len(response.Result.Parameters())
	}

	p.usage.RecordJob(jobID, status, message, p.worker.GetName(), parameterCount, startedAt, time.Now())
}

// finishJob transitions out of Running once a job's terminal response has
// been published: to Terminated if a StopWorker arrived mid-job, else back
// to Idle so the next order can be dequeued.
func (p *Processor) finishJob(ctx context.Context) {
	p.mu.Lock()
	terminate := p.pendingTerminate
	p.runningJobID = 0
	if terminate {
		p.state = StateTerminated
	} else {
		p.state = StateIdle
	}
	p.mu.Unlock()

	if terminate {
		p.ex.SendResponse(ctx, exchange.ResponseMessage{Kind: exchange.ResponseWorkerStopped})
	}
}

