package models

import "time"

// Intent describes what a message asks of its receiver.
type Intent string

const (
	// IntentRequest asks another agent to do something and expects a
	// correlated response.
	IntentRequest Intent = "request"
	// IntentNotify informs about a state change, fire-and-forget.
	IntentNotify Intent = "notify"
	// IntentDelegate hands off task ownership to the receiver.
	IntentDelegate Intent = "delegate"
	// IntentReport carries status or results back to the orchestrator.
	IntentReport Intent = "report"
	// IntentEscalate routes a problem to a higher authority, the board
	// decision gate or the self-healing monitor.
	IntentEscalate Intent = "escalate"
	// IntentAcknowledge confirms receipt of a prior message.
	IntentAcknowledge Intent = "acknowledge"
)

// Priority is the enforced delivery-order priority of a message.
type Priority int

const (
	// PriorityLow is for background chatter.
	PriorityLow Priority = 1
	// PriorityMedium is the default priority.
	PriorityMedium Priority = 2
	// PriorityHigh is for messages that should jump the queue.
	PriorityHigh Priority = 3
	// PriorityCritical bypasses the queue entirely and is delivered
	// synchronously to subscribers.
	PriorityCritical Priority = 4
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Message is a unit of inter-agent communication. Messages are ephemeral
// and consumed at most once.
type Message struct {
	// ID is the unique identifier, assigned by the bus when empty.
	ID string `json:"id"`
	// Sender identifies the originating agent or component.
	Sender string `json:"sender"`
	// Receiver identifies the destination. Empty means broadcast.
	Receiver string `json:"receiver,omitempty"`
	// Intent is the purpose of the message.
	Intent Intent `json:"intent"`
	// Priority determines delivery order.
	Priority Priority `json:"priority"`
	// Payload carries structured message data.
	Payload map[string]interface{} `json:"payload,omitempty"`
	// CorrelationID links a response to its originating request.
	CorrelationID string `json:"correlation_id,omitempty"`
	// TTL is how long the message stays deliverable. Zero means no expiry.
	TTL time.Duration `json:"ttl,omitempty"`
	// EnqueuedAt is when the bus accepted the message.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Expired returns true if the message's TTL has elapsed at the given time.
func (m *Message) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.Sub(m.EnqueuedAt) > m.TTL
}
