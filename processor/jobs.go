package processor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aceteam-ai/mediaworker-sdk/exchange"
	"github.com/aceteam-ai/mediaworker-sdk/jobresult"
	"github.com/aceteam-ai/mediaworker-sdk/mcaierr"
	"github.com/aceteam-ai/mediaworker-sdk/media"
	"github.com/aceteam-ai/mediaworker-sdk/param"
	"github.com/aceteam-ai/mediaworker-sdk/workercontract"
)

// channelImpl is the workercontract.Channel handed to a running job's
// callbacks: Feedback publishes a ResponseFeedback, ShouldStop reflects the
// processor's cooperative-cancellation flag.
type channelImpl struct {
	p     *Processor
	ctx   context.Context
	jobID uint64
}

func (c *channelImpl) Feedback(progress int, message string) {
	c.p.ex.SendResponse(c.ctx, exchange.NewFeedback(c.jobID, progress, message))
}

func (c *channelImpl) ShouldStop() bool {
	return c.p.stopFlag.Load()
}

var _ workercontract.Channel = (*channelImpl)(nil)

// runMonolithicJob drives a MonolithicWorker's single synchronous Process
// callback and builds the terminal response from its outcome.
func (p *Processor) runMonolithicJob(ctx context.Context, worker workercontract.MonolithicWorker, job *param.Job) exchange.ResponseMessage {
	if err := job.CheckRequirements(); err != nil {
		if merr, ok := err.(*mcaierr.Error); ok {
			return exchange.NewError(job.JobID, merr, nil)
		}
		return exchange.NewError(job.JobID, mcaierr.RuntimeError(err.Error()), nil)
	}

	result := jobresult.New(job.JobID)
	channel := &channelImpl{p: p, ctx: ctx, jobID: job.JobID}

	res, err := worker.Process(ctx, channel, job, result)
	if err != nil {
		if res == nil {
			return exchange.NewError(job.JobID, mcaierr.RuntimeError(err.Error()), nil)
		}
		sealed := res.WithStatus(jobresult.StatusError).WithMessage(err.Error()).Seal()
		return exchange.NewError(job.JobID, mcaierr.ProcessingError(sealed), sealed)
	}
	if res == nil {
		res = result
	}

	if res.Status() == jobresult.StatusError {
		sealed := res.Seal()
		return exchange.NewError(job.JobID, mcaierr.ProcessingError(sealed), sealed)
	}

	sealed := res.WithStatus(jobresult.StatusCompleted).Seal()
	return exchange.NewCompleted(sealed)
}

// runMediaJob drives the four-phase media pipeline (spec.md §4.7) for a
// MediaWorker, reading the job's source_url parameter and funneling the
// pipeline's ResultSink through a drain goroutine so a full sink never
// stalls the frame loop beyond its configured backpressure capacity.
func (p *Processor) runMediaJob(ctx context.Context, worker workercontract.MediaWorker, job *param.Job) exchange.ResponseMessage {
	if err := job.CheckRequirements(); err != nil {
		if merr, ok := err.(*mcaierr.Error); ok {
			return exchange.NewError(job.JobID, merr, nil)
		}
		return exchange.NewError(job.JobID, mcaierr.RuntimeError(err.Error()), nil)
	}

	sourceURL, ok := job.GetStringParameter("source_url")
	if !ok {
		return exchange.NewError(job.JobID, mcaierr.RequirementsError("source_url"), nil)
	}
	if p.demuxer == nil {
		return exchange.NewError(job.JobID, mcaierr.NotImplemented(), nil)
	}

	pipeline := media.NewPipeline(p.demuxer(), p.sinkSize).WithSourceResolver(p.sourceResolver)
	result := jobresult.New(job.JobID)

	// runDone releases the drain goroutine when Run returns without having
	// sent an end-of-process marker (a failed Open or InitProcess).
	runDone := make(chan struct{})
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		for {
			select {
			case r := <-pipeline.Sink().Results():
				if r.IsEndOfProcess() {
					return nil
				}
				if r.IsError() {
					p.log.Warning("job %d: frame error: %s", job.JobID, r.Message())
				}
			case <-runDone:
				return nil
			}
		}
	})

	shouldStop := func() bool { return p.stopFlag.Load() }
	runErr := pipeline.Run(groupCtx, worker, sourceURL, job, result, shouldStop)
	close(runDone)
	group.Wait()

	if runErr != nil {
		sealed := result.WithStatus(jobresult.StatusError).WithMessage(runErr.Error()).Seal()
		return exchange.NewError(job.JobID, mcaierr.ProcessingError(sealed), sealed)
	}

	sealed := result.WithStatus(jobresult.StatusCompleted).Seal()
	return exchange.NewCompleted(sealed)
}
