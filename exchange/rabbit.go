package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aceteam-ai/mediaworker-sdk/mcaierr"
	"github.com/aceteam-ai/mediaworker-sdk/param"
)

// RabbitConfig holds the AMQP connection and queue-naming configuration
// (spec.md §6: queue names come from environment configuration).
type RabbitConfig struct {
	URL             string
	SourceQueue     string
	CompletedQueue  string
	ErrorQueue      string
	DeathCountLimit int // redelivery attempts beyond which a message is rejected outright (default 10)

	// PublishRetries/PublishBackoff govern the exponential-backoff retry
	// the exchange applies to broker publishes before falling back to
	// reject-with-requeue (§7).
	PublishRetries int
	PublishBackoff time.Duration
}

// DefaultRabbitConfig returns a RabbitConfig with the SDK's defaults: a
// death-count bound of 10 (a placeholder per design note §9) and three
// publish retries starting at 500ms.
func DefaultRabbitConfig() RabbitConfig {
	return RabbitConfig{
		SourceQueue:     "job_messages",
		CompletedQueue:  "job_completed",
		ErrorQueue:      "job_error",
		DeathCountLimit: 10,
		PublishRetries:  3,
		PublishBackoff:  500 * time.Millisecond,
	}
}

// amqpChannel is the subset of *amqp.Channel RabbitExchange needs. Letting
// tests substitute a fake in place of a live broker connection is what
// makes the broker publishing matrix (§4.4) and order-kind decoding
// exercisable without an AMQP server.
type amqpChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Ack(tag uint64, multiple bool) error
	Reject(tag uint64, requeue bool) error
	Close() error
}

// RabbitExchange is the AMQP-backed Exchange implementation. Connection
// setup, queue declaration and broker auth are the caller's responsibility
// (spec.md §1 treats the wire client as an external collaborator); callers
// pass an already-open *amqp.Channel.
type RabbitExchange struct {
	channel amqpChannel
	config  RabbitConfig
	orders  <-chan amqp.Delivery
}

// NewRabbitExchange wires ch to config and begins consuming config.SourceQueue
// with manual ack.
func NewRabbitExchange(ch amqpChannel, config RabbitConfig) (*RabbitExchange, error) {
	deliveries, err := ch.Consume(config.SourceQueue, "", false /*autoAck*/, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", config.SourceQueue, err)
	}
	return &RabbitExchange{channel: ch, config: config, orders: deliveries}, nil
}

// deathCount reads the AMQP `x-death` header's redelivery count, mirroring
// the original SDK's message-death inspection.
func deathCount(d amqp.Delivery) int {
	raw, ok := d.Headers["x-death"]
	if !ok {
		return 0
	}
	deaths, ok := raw.([]interface{})
	if !ok || len(deaths) == 0 {
		return 0
	}
	first, ok := deaths[0].(amqp.Table)
	if !ok {
		return 0
	}
	count, ok := first["count"]
	if !ok {
		return 0
	}
	switch v := count.(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// orderKindHeader is the AMQP header key naming which of the six
// OrderMessage variants (spec.md §3) a delivery on the source queue
// represents. A missing or unrecognized value defaults to OrderJob, so
// existing job producers that never set the header keep working unchanged.
const orderKindHeader = "x-order-kind"

var orderKindHeaderValues = map[string]OrderKind{
	"job":           OrderJob,
	"init_process":  OrderInitProcess,
	"start_process": OrderStartProcess,
	"stop_process":  OrderStopProcess,
	"status":        OrderStatus,
	"stop_worker":   OrderStopWorker,
}

func decodeOrderKind(d amqp.Delivery) OrderKind {
	raw, ok := d.Headers[orderKindHeader]
	if !ok {
		return OrderJob
	}
	name, ok := raw.(string)
	if !ok {
		return OrderJob
	}
	if kind, ok := orderKindHeaderValues[name]; ok {
		return kind
	}
	return OrderJob
}

func (r *RabbitExchange) SendOrder(ctx context.Context, order OrderMessage) error {
	return fmt.Errorf("SendOrder is not supported on RabbitExchange: orders originate from the broker")
}

func (r *RabbitExchange) NextOrder(ctx context.Context) (OrderMessage, error) {
	select {
	case d, ok := <-r.orders:
		if !ok {
			return OrderMessage{}, fmt.Errorf("order channel closed")
		}
		count := deathCount(d)
		if count > r.config.DeathCountLimit {
			r.channel.Reject(d.DeliveryTag, false)
			return OrderMessage{}, fmt.Errorf("job exceeded death count limit (%d), rejected without requeue", r.config.DeathCountLimit)
		}

		kind := decodeOrderKind(d)
		del := &delivery{tag: d.DeliveryTag, deathCount: count, fromRabbit: true}

		switch kind {
		case OrderStatus, OrderStopWorker:
			// Neither participates in the publishing matrix (no terminal
			// response is ever correlated back to them), so ack on receipt.
			r.channel.Ack(d.DeliveryTag, false)
			return OrderMessage{Kind: kind, delivery: del}, nil
		case OrderStopProcess:
			job, err := param.NewJob(d.Body)
			r.channel.Ack(d.DeliveryTag, false)
			if err != nil {
				return OrderMessage{}, err
			}
			return OrderMessage{Kind: kind, Job: job, delivery: del}, nil
		default: // OrderJob, OrderInitProcess, OrderStartProcess
			job, err := param.NewJob(d.Body)
			if err != nil {
				r.channel.Reject(d.DeliveryTag, false)
				return OrderMessage{}, err
			}
			return OrderMessage{Kind: kind, Job: job, delivery: del}, nil
		}
	case <-ctx.Done():
		return OrderMessage{}, ctx.Err()
	}
}

func (r *RabbitExchange) SendResponse(ctx context.Context, response ResponseMessage) error {
	plan := planFor(response)

	var body []byte
	if plan.queue != queueNone {
		payload, err := encodeResponse(response)
		if err != nil {
			return err
		}
		body = payload
	}

	published := true
	if plan.queue != queueNone {
		published = r.publishWithRetry(ctx, r.queueName(plan.queue), body)
	}

	action := plan.onOK
	if !published {
		action = plan.onFail
	}
	return r.applyAck(response, action)
}

func (r *RabbitExchange) queueName(q destinationQueue) string {
	switch q {
	case queueCompleted:
		return r.config.CompletedQueue
	case queueError:
		return r.config.ErrorQueue
	default:
		return ""
	}
}

func (r *RabbitExchange) publishWithRetry(ctx context.Context, queue string, body []byte) bool {
	backoff := r.config.PublishBackoff
	for attempt := 0; attempt <= r.config.PublishRetries; attempt++ {
		err := r.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
		if err == nil {
			return true
		}
		if attempt == r.config.PublishRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
		backoff *= 2
	}
	return false
}

func (r *RabbitExchange) applyAck(response ResponseMessage, action ackAction) error {
	if response.order == nil || !response.order.fromRabbit {
		return nil
	}
	switch action {
	case actionAck:
		return r.channel.Ack(response.order.tag, false)
	case actionRejectRequeue:
		return r.channel.Reject(response.order.tag, true)
	case actionRejectNoRequeue:
		return r.channel.Reject(response.order.tag, false)
	}
	return nil
}

// NextResponse is not supported on RabbitExchange: responses are consumed
// by the broker's completed/error queues, not read back by this process.
func (r *RabbitExchange) NextResponse(ctx context.Context) (ResponseMessage, error) {
	return ResponseMessage{}, fmt.Errorf("NextResponse is not supported on RabbitExchange")
}

func (r *RabbitExchange) Close() error {
	return r.channel.Close()
}

var _ Exchange = (*RabbitExchange)(nil)

// wireCompleted and wireRuntimeError mirror the JSON envelopes spec.md §6 defines
// for the completed/error queues.
type wireCompleted struct {
	JobID             uint64            `json:"job_id"`
	Status            string            `json:"status"`
	Parameters        []param.Parameter `json:"parameters"`
	ExecutionDuration float64           `json:"execution_duration"`
}

type wireRuntimeError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func encodeResponse(response ResponseMessage) ([]byte, error) {
	switch response.Kind {
	case ResponseCompleted:
		return json.Marshal(response.Result)
	case ResponseError:
		if response.Err.Kind() == mcaierr.KindProcessing {
			return json.Marshal(response.Result)
		}
		return json.Marshal(wireRuntimeError{Status: "error", Message: response.Err.Message()})
	default:
		return nil, fmt.Errorf("response kind %d does not publish to a queue", response.Kind)
	}
}
