package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aceteam-ai/mediaworker-sdk/exchange"
	"github.com/aceteam-ai/mediaworker-sdk/jobresult"
	"github.com/aceteam-ai/mediaworker-sdk/media"
	"github.com/aceteam-ai/mediaworker-sdk/param"
	"github.com/aceteam-ai/mediaworker-sdk/workercontract"
)

// nextTerminalResponse drains WorkerStarted/WorkerInitialized/Feedback
// bookkeeping responses and returns the first Completed or Error response.
func nextTerminalResponse(t *testing.T, ctx context.Context, ex exchange.Exchange) exchange.ResponseMessage {
	t.Helper()
	for {
		response, err := ex.NextResponse(ctx)
		if err != nil {
			t.Fatalf("NextResponse: %v", err)
		}
		if response.Kind == exchange.ResponseCompleted || response.Kind == exchange.ResponseError {
			return response
		}
	}
}

type echoWorker struct {
	initCalls int
	processed []uint64
}

func (w *echoWorker) GetName() string                 { return "Test Worker" }
func (w *echoWorker) GetShortDescription() string      { return "The Worker defined in unit tests" }
func (w *echoWorker) GetDescription() string           { return "Mock a worker to exercise the processor" }
func (w *echoWorker) GetVersion() string               { return "1.2.3" }
func (w *echoWorker) ParameterSchema() ([]byte, error) { return []byte(`{}`), nil }
func (w *echoWorker) Init() error                      { w.initCalls++; return nil }

func (w *echoWorker) Process(ctx context.Context, channel workercontract.Channel, parameters *param.Job, result *jobresult.JobResult) (*jobresult.JobResult, error) {
	w.processed = append(w.processed, parameters.JobID)
	return result, nil
}

var _ workercontract.MonolithicWorker = (*echoWorker)(nil)

func TestProcessorCompletesJobThenStops(t *testing.T) {
	ex := exchange.NewLocalExchange(4)
	defer ex.Close()

	worker := &echoWorker{}
	p := New(ex, worker)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	job, err := param.NewJob([]byte(`{"job_id": 666, "parameters": []}`))
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderJob, Job: job})

	response := nextTerminalResponse(t, ctx, ex)
	if response.Kind != exchange.ResponseCompleted || response.JobID != 666 {
		t.Fatalf("response = %+v, want Completed for job 666", response)
	}

	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderStopWorker})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("processor did not stop in time")
	}

	if worker.initCalls != 1 {
		t.Fatalf("Init called %d times, want exactly 1", worker.initCalls)
	}
	if len(worker.processed) != 1 || worker.processed[0] != 666 {
		t.Fatalf("processed = %v, want [666]", worker.processed)
	}
	if p.State() != StateTerminated {
		t.Fatalf("state = %v, want Terminated", p.State())
	}
}

type stopAwareWorker struct {
	sawStop bool
}

func (w *stopAwareWorker) GetName() string                 { return "stop-aware" }
func (w *stopAwareWorker) GetShortDescription() string      { return "polls ShouldStop" }
func (w *stopAwareWorker) GetDescription() string           { return "polls ShouldStop until cancelled" }
func (w *stopAwareWorker) GetVersion() string               { return "1.0.0" }
func (w *stopAwareWorker) ParameterSchema() ([]byte, error) { return []byte(`{}`), nil }
func (w *stopAwareWorker) Init() error                      { return nil }

func (w *stopAwareWorker) Process(ctx context.Context, channel workercontract.Channel, parameters *param.Job, result *jobresult.JobResult) (*jobresult.JobResult, error) {
	for i := 0; i < 200; i++ {
		if channel.ShouldStop() {
			w.sawStop = true
			return result, nil
		}
		time.Sleep(time.Millisecond)
	}
	return result, nil
}

var _ workercontract.MonolithicWorker = (*stopAwareWorker)(nil)

func TestStopProcessCancelsRunningJobCooperatively(t *testing.T) {
	ex := exchange.NewLocalExchange(4)
	defer ex.Close()

	worker := &stopAwareWorker{}
	p := New(ex, worker)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go p.Run(ctx)

	job, _ := param.NewJob([]byte(`{"job_id": 1, "parameters": []}`))
	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderJob, Job: job})

	// Give the job a moment to enter Running before requesting StopProcess.
	time.Sleep(20 * time.Millisecond)
	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderStopProcess, Job: job})

	response := nextTerminalResponse(t, ctx, ex)
	if response.Kind != exchange.ResponseCompleted {
		t.Fatalf("response = %+v, want Completed", response)
	}
	if !worker.sawStop {
		t.Fatal("worker never observed ShouldStop()")
	}
}

type failingWorker struct{}

func (w *failingWorker) GetName() string                 { return "failing" }
func (w *failingWorker) GetShortDescription() string      { return "always errors" }
func (w *failingWorker) GetDescription() string           { return "always returns a processing error" }
func (w *failingWorker) GetVersion() string               { return "1.0.0" }
func (w *failingWorker) ParameterSchema() ([]byte, error) { return []byte(`{}`), nil }
func (w *failingWorker) Init() error                      { return nil }

func (w *failingWorker) Process(ctx context.Context, channel workercontract.Channel, parameters *param.Job, result *jobresult.JobResult) (*jobresult.JobResult, error) {
	return result, errors.New("boom")
}

var _ workercontract.MonolithicWorker = (*failingWorker)(nil)

func TestFailedJobEmitsExactlyOneErrorResponse(t *testing.T) {
	ex := exchange.NewLocalExchange(4)
	defer ex.Close()

	p := New(ex, &failingWorker{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	job, _ := param.NewJob([]byte(`{"job_id": 9, "parameters": []}`))
	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderJob, Job: job})

	response := nextTerminalResponse(t, ctx, ex)
	if response.Kind != exchange.ResponseError || response.JobID != 9 {
		t.Fatalf("response = %+v, want Error for job 9", response)
	}

	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderStopWorker})

	next, err := ex.NextResponse(ctx)
	if err != nil {
		t.Fatalf("NextResponse: %v", err)
	}
	if next.Kind != exchange.ResponseWorkerStopped {
		t.Fatalf("response after the error = %+v, want WorkerStopped (no second terminal response)", next)
	}
}

func TestStatusOrderRespondsWithMetadataDescriptor(t *testing.T) {
	ex := exchange.NewLocalExchange(4)
	defer ex.Close()

	p := New(ex, &echoWorker{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	// Drain the WorkerStarted response Run() sends on entry.
	if _, err := ex.NextResponse(ctx); err != nil {
		t.Fatalf("NextResponse: %v", err)
	}

	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderStatus})

	response, err := ex.NextResponse(ctx)
	if err != nil {
		t.Fatalf("NextResponse: %v", err)
	}
	if response.Kind != exchange.ResponseFeedback {
		t.Fatalf("response kind = %v, want Feedback", response.Kind)
	}
	if !strings.Contains(response.Feedback.Message, `"name":"Test Worker"`) {
		t.Errorf("feedback message = %q, want it to contain the worker's name", response.Feedback.Message)
	}

	var descriptor struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		State   string `json:"state"`
	}
	if err := json.Unmarshal([]byte(response.Feedback.Message), &descriptor); err != nil {
		t.Fatalf("unmarshal descriptor: %v", err)
	}
	if descriptor.Version != "1.2.3" {
		t.Errorf("descriptor.Version = %q, want %q", descriptor.Version, "1.2.3")
	}
	if descriptor.State != "idle" {
		t.Errorf("descriptor.State = %q, want %q", descriptor.State, "idle")
	}
}

type recordedUsage struct {
	jobID          uint64
	status         string
	errMessage     string
	workerName     string
	parameterCount int
}

type fakeUsageRecorder struct {
	mu      sync.Mutex
	records []recordedUsage
}

func (r *fakeUsageRecorder) RecordJob(jobID uint64, status, errMessage, workerName string, parameterCount int, startedAt, completedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedUsage{jobID: jobID, status: status, errMessage: errMessage, workerName: workerName, parameterCount: parameterCount})
}

func TestUsageRecorderObservesTerminalOutcome(t *testing.T) {
	ex := exchange.NewLocalExchange(4)
	defer ex.Close()

	recorder := &fakeUsageRecorder{}
	p := New(ex, &echoWorker{}, WithUsageRecorder(recorder))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	job, _ := param.NewJob([]byte(`{"job_id": 77, "parameters": []}`))
	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderJob, Job: job})
	nextTerminalResponse(t, ctx, ex)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.records) != 1 {
		t.Fatalf("recorded %d usage entries, want 1", len(recorder.records))
	}
	got := recorder.records[0]
	if got.jobID != 77 || got.status != "completed" || got.workerName != "Test Worker" {
		t.Errorf("record = %+v, want job 77 completed by Test Worker", got)
	}
}

type fakeDemuxer struct{}

func (d *fakeDemuxer) Open(ctx context.Context, sourceURL string) (*media.FormatContext, error) {
	return &media.FormatContext{SourceURL: sourceURL}, nil
}
func (d *fakeDemuxer) SelectStreams(descriptors []media.StreamDescriptor) error { return nil }
func (d *fakeDemuxer) NextFrame(ctx context.Context) (*media.Frame, error)      { return nil, nil }
func (d *fakeDemuxer) Drain()                                                  {}
func (d *fakeDemuxer) Close() error                                            { return nil }

var _ media.Demuxer = (*fakeDemuxer)(nil)

type mediaWorker struct{}

func (w *mediaWorker) GetName() string                 { return "media" }
func (w *mediaWorker) GetShortDescription() string      { return "streaming" }
func (w *mediaWorker) GetDescription() string           { return "a media worker used in processor tests" }
func (w *mediaWorker) GetVersion() string               { return "1.0.0" }
func (w *mediaWorker) ParameterSchema() ([]byte, error) { return []byte(`{}`), nil }
func (w *mediaWorker) Init() error                      { return nil }

func (w *mediaWorker) InitProcess(parameters *param.Job, formatContext *media.FormatContext, sink *media.ResultSink) ([]media.StreamDescriptor, error) {
	return []media.StreamDescriptor{media.VideoStream{Index: 0}}, nil
}
func (w *mediaWorker) ProcessFrame(result *jobresult.JobResult, streamIndex int, frame *media.Frame) (media.ProcessResult, error) {
	return media.Continue(), nil
}
func (w *mediaWorker) EndingProcess() error { return nil }

var _ workercontract.MediaWorker = (*mediaWorker)(nil)

func TestProcessorDrivesMediaPipeline(t *testing.T) {
	ex := exchange.NewLocalExchange(4)
	defer ex.Close()

	p := New(ex, &mediaWorker{}, WithDemuxerFactory(func() media.Demuxer { return &fakeDemuxer{} }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	job, _ := param.NewJob([]byte(`{"job_id": 42, "parameters": [{"id": "source_url", "type": "string", "value": "file:///tmp/in.mp4"}]}`))
	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderJob, Job: job})

	response := nextTerminalResponse(t, ctx, ex)
	if response.Kind != exchange.ResponseCompleted || response.JobID != 42 {
		t.Fatalf("response = %+v, want Completed for job 42", response)
	}
}

type incompatibleWorker struct {
	echoWorker
}

func (w *incompatibleWorker) GetVersion() string { return "0.9.0" }

func TestIncompatibleWorkerVersionRejectsJobWithoutCallingInit(t *testing.T) {
	ex := exchange.NewLocalExchange(4)
	defer ex.Close()

	worker := &incompatibleWorker{}
	p := New(ex, worker)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	job, _ := param.NewJob([]byte(`{"job_id": 9, "parameters": []}`))
	ex.SendOrder(ctx, exchange.OrderMessage{Kind: exchange.OrderJob, Job: job})

	response := nextTerminalResponse(t, ctx, ex)
	if response.Kind != exchange.ResponseError || response.JobID != 9 {
		t.Fatalf("response = %+v, want Error for job 9", response)
	}
	if worker.initCalls != 0 {
		t.Errorf("Init called %d times, want 0 for an incompatible worker version", worker.initCalls)
	}
}
