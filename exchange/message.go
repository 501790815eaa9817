// Package exchange implements the message exchange: the order/response
// channel pair the processor consumes from and publishes to, with both an
// in-memory LocalExchange (tests, and the media subsystem's internal
// coupling) and a RabbitExchange backed by AMQP 0-9-1.
package exchange

import (
	"github.com/aceteam-ai/mediaworker-sdk/jobresult"
	"github.com/aceteam-ai/mediaworker-sdk/mcaierr"
	"github.com/aceteam-ai/mediaworker-sdk/param"
)

// OrderKind discriminates the six order variants (spec.md §3).
type OrderKind int

const (
	OrderJob OrderKind = iota
	OrderInitProcess
	OrderStartProcess
	OrderStopProcess
	OrderStatus
	OrderStopWorker
)

// OrderMessage is a message the processor consumes from the exchange.
// Job carries a *param.Job for OrderJob/OrderInitProcess/OrderStartProcess/
// OrderStopProcess; it is nil for OrderStatus/OrderStopWorker.
type OrderMessage struct {
	Kind OrderKind
	Job  *param.Job

	// delivery carries exchange-internal state (AMQP delivery tag, death
	// count) needed to ack/reject this order once processed. nil for
	// LocalExchange orders.
	delivery *delivery
}

// ResponseKind discriminates the six response variants (spec.md §3).
type ResponseKind int

const (
	ResponseCompleted ResponseKind = iota
	ResponseError
	ResponseFeedback
	ResponseWorkerStarted
	ResponseWorkerInitialized
	ResponseWorkerStopped
)

// Feedback is a non-terminal progress response.
type Feedback struct {
	JobID    uint64
	Progress int // 0-100; -1 if this feedback carries only free text
	Message  string
}

// ResponseMessage is a message the processor publishes to the exchange.
type ResponseMessage struct {
	Kind     ResponseKind
	JobID    uint64
	Result   *jobresult.JobResult // set for ResponseCompleted and some ResponseError cases
	Err      *mcaierr.Error       // set for ResponseError
	Feedback *Feedback            // set for ResponseFeedback

	// order is the originating order's delivery, threaded through so
	// publishing can ack/reject it (broker publishing matrix, §4.4).
	order *delivery
}

// NewCompleted builds a ResponseCompleted for result.
func NewCompleted(result *jobresult.JobResult) ResponseMessage {
	return ResponseMessage{Kind: ResponseCompleted, JobID: result.JobID(), Result: result}
}

// NewError builds a ResponseError wrapping err. result carries the partial
// JobResult for a KindProcessing error (nil for the other three kinds).
func NewError(jobID uint64, err *mcaierr.Error, result *jobresult.JobResult) ResponseMessage {
	return ResponseMessage{Kind: ResponseError, JobID: jobID, Err: err, Result: result}
}

// NewFeedback builds a ResponseFeedback.
func NewFeedback(jobID uint64, progress int, message string) ResponseMessage {
	return ResponseMessage{Kind: ResponseFeedback, JobID: jobID, Feedback: &Feedback{JobID: jobID, Progress: progress, Message: message}}
}

// WithOrder attaches order's originating delivery to r, so a RabbitExchange
// can ack/reject the correct AMQP delivery once r is published through the
// broker publishing matrix (§4.4). A no-op for orders that didn't come off
// a broker (order.delivery is nil, e.g. LocalExchange orders).
func (r ResponseMessage) WithOrder(order OrderMessage) ResponseMessage {
	r.order = order.delivery
	return r
}
