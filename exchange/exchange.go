package exchange

import "context"

// Exchange is the contract both LocalExchange and RabbitExchange satisfy.
type Exchange interface {
	// SendOrder enqueues an order for the processor; FIFO.
	SendOrder(ctx context.Context, order OrderMessage) error

	// NextOrder blocks until an order is available or ctx is cancelled.
	NextOrder(ctx context.Context) (OrderMessage, error)

	// SendResponse emits a response; for RabbitExchange this publishes to
	// the completed or error queue according to the response kind and
	// acks/rejects the originating delivery (the publishing matrix, §4.4).
	SendResponse(ctx context.Context, response ResponseMessage) error

	// NextResponse blocks until a response is available or ctx is
	// cancelled. Consumed by tests or a supervising agent, never by the
	// processor itself.
	NextResponse(ctx context.Context) (ResponseMessage, error)

	// Close releases exchange resources.
	Close() error
}

// delivery carries exchange-internal bookkeeping needed to ack/reject an
// order once it has been processed. The zero value (used by LocalExchange)
// means "no broker delivery to ack".
type delivery struct {
	tag         uint64
	deathCount  int
	fromRabbit  bool
}

// LocalExchange is an in-process FIFO order/response channel pair, each
// channel bounded by the capacity given to NewLocalExchange. Used by tests and by the media subsystem's internal producer/
// consumer coupling; never talks to a broker.
type LocalExchange struct {
	orders    chan OrderMessage
	responses chan ResponseMessage
}

// NewLocalExchange creates a LocalExchange with the given channel capacity.
// A capacity of 0 yields an unbuffered (synchronous) pair.
func NewLocalExchange(capacity int) *LocalExchange {
	return &LocalExchange{
		orders:    make(chan OrderMessage, capacity),
		responses: make(chan ResponseMessage, capacity),
	}
}

func (l *LocalExchange) SendOrder(ctx context.Context, order OrderMessage) error {
	select {
	case l.orders <- order:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LocalExchange) NextOrder(ctx context.Context) (OrderMessage, error) {
	select {
	case order := <-l.orders:
		return order, nil
	case <-ctx.Done():
		return OrderMessage{}, ctx.Err()
	}
}

func (l *LocalExchange) SendResponse(ctx context.Context, response ResponseMessage) error {
	select {
	case l.responses <- response:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LocalExchange) NextResponse(ctx context.Context) (ResponseMessage, error) {
	select {
	case response := <-l.responses:
		return response, nil
	case <-ctx.Done():
		return ResponseMessage{}, ctx.Err()
	}
}

func (l *LocalExchange) Close() error {
	close(l.orders)
	close(l.responses)
	return nil
}

var _ Exchange = (*LocalExchange)(nil)
