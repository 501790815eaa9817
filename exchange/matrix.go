package exchange

import "github.com/aceteam-ai/mediaworker-sdk/mcaierr"

// ackAction is what the broker variant does with the originating delivery
// once a response has been (attempted to be) published.
type ackAction int

const (
	actionAck            ackAction = iota // publish succeeded, ack, don't requeue
	actionRejectRequeue                   // reject, let the broker redeliver
	actionRejectNoRequeue                 // reject, permanently drop
	actionNone                            // leave the delivery alone
)

// destinationQueue names which logical queue (by role, not literal name)
// a response publishes to.
type destinationQueue int

const (
	queueNone destinationQueue = iota
	queueCompleted
	queueError
)

// publishPlan is the (queue, ack-policy) pair the publishing matrix
// resolves a response to. Table-driven per design note §9, so the matrix
// is auditable in one place.
type publishPlan struct {
	queue  destinationQueue
	onOK   ackAction // ack policy when the publish succeeds (or there is nothing to publish)
	onFail ackAction // ack policy when the publish itself fails
}

// planFor resolves response to its publish plan. Every publish failure
// falls back to reject-with-requeue so the broker redelivers (§4.4, §7).
func planFor(response ResponseMessage) publishPlan {
	if response.Kind == ResponseCompleted {
		return publishPlan{queue: queueCompleted, onOK: actionAck, onFail: actionRejectRequeue}
	}
	if response.Kind != ResponseError {
		// Feedback/WorkerStarted/WorkerInitialized/WorkerStopped never
		// touch the originating delivery.
		return publishPlan{queue: queueNone, onOK: actionNone, onFail: actionNone}
	}

	switch response.Err.Kind() {
	case mcaierr.KindProcessing:
		return publishPlan{queue: queueError, onOK: actionAck, onFail: actionRejectRequeue}
	case mcaierr.KindRequirements:
		return publishPlan{queue: queueNone, onOK: actionRejectNoRequeue, onFail: actionRejectNoRequeue}
	case mcaierr.KindNotImplemented:
		return publishPlan{queue: queueNone, onOK: actionRejectRequeue, onFail: actionRejectRequeue}
	case mcaierr.KindRuntime:
		return publishPlan{queue: queueError, onOK: actionAck, onFail: actionRejectRequeue}
	default:
		return publishPlan{queue: queueError, onOK: actionAck, onFail: actionRejectRequeue}
	}
}
