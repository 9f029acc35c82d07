// Package bus provides the priority-ordered message bus used for
// agent-to-orchestrator communication.
package bus

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkorhonen/overseer/pkg/models"
)

// historyLimit bounds the in-memory message trace.
const historyLimit = 256

// Handler receives CRITICAL messages synchronously at send time.
type Handler func(*models.Message)

// Bus routes messages between components. Delivery order is by priority,
// FIFO within equal priority. CRITICAL messages bypass the queue: they are
// delivered synchronously to the receiver's subscribers at send time,
// preempting anything already queued.
type Bus struct {
	mu sync.Mutex
	// queues holds one priority queue per receiver.
	queues map[string]*messageHeap
	// subscribers maps receiver to synchronous CRITICAL handlers.
	subscribers map[string][]Handler
	// waiters holds channels of consumers blocked in Receive.
	waiters map[string][]chan struct{}
	// history retains recent messages for tracing.
	history []*models.Message
	// seq orders messages of equal priority.
	seq uint64
	// now is the clock, injectable for tests.
	now func() time.Time
}

// New creates an empty message bus.
func New() *Bus {
	return &Bus{
		queues:      make(map[string]*messageHeap),
		subscribers: make(map[string][]Handler),
		waiters:     make(map[string][]chan struct{}),
		now:         time.Now,
	}
}

// Send enqueues a message and returns its ID. An empty ID is assigned, and
// the enqueue timestamp is stamped by the bus. An empty receiver broadcasts
// the message to every receiver that currently has a queue or subscriber.
func (b *Bus) Send(msg *models.Message) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Priority == 0 {
		msg.Priority = models.PriorityMedium
	}
	msg.EnqueuedAt = b.now()
	b.recordLocked(msg)

	receivers := []string{msg.Receiver}
	if msg.Receiver == "" {
		receivers = b.knownReceiversLocked()
	}

	for _, receiver := range receivers {
		b.deliverLocked(receiver, msg)
	}
	return msg.ID
}

// deliverLocked routes one message to one receiver. Caller holds b.mu.
func (b *Bus) deliverLocked(receiver string, msg *models.Message) {
	if msg.Priority == models.PriorityCritical {
		if handlers := b.subscribers[receiver]; len(handlers) > 0 {
			// Synchronous delivery. The lock stays held so the handler
			// observes the bus state at send time; handlers must not
			// call back into the bus.
			for _, h := range handlers {
				h(msg)
			}
			return
		}
		// No subscriber to preempt: fall through to the queue, where the
		// priority ordering still puts it ahead of everything else.
	}

	q := b.queues[receiver]
	if q == nil {
		q = &messageHeap{}
		b.queues[receiver] = q
	}
	b.seq++
	heap.Push(q, queued{msg: msg, seq: b.seq})
	b.wakeLocked(receiver)
}

// TryReceive pops the highest-priority eligible message for a receiver, or
// nil when the queue is empty. Expired messages are dropped.
func (b *Bus) TryReceive(receiver string) *models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popLocked(receiver)
}

// Receive blocks until a message is available for the receiver or the
// context is cancelled.
func (b *Bus) Receive(ctx context.Context, receiver string) (*models.Message, error) {
	for {
		b.mu.Lock()
		if msg := b.popLocked(receiver); msg != nil {
			b.mu.Unlock()
			return msg, nil
		}
		ch := make(chan struct{})
		b.waiters[receiver] = append(b.waiters[receiver], ch)
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// Subscribe registers a synchronous handler for CRITICAL messages sent to
// the receiver. Handlers run inline on the sender's goroutine.
func (b *Bus) Subscribe(receiver string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[receiver] = append(b.subscribers[receiver], h)
	if _, ok := b.queues[receiver]; !ok {
		b.queues[receiver] = &messageHeap{}
	}
}

// QueueDepth returns the number of pending messages for a receiver.
func (b *Bus) QueueDepth(receiver string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q := b.queues[receiver]; q != nil {
		return q.Len()
	}
	return 0
}

// History returns up to limit recent messages, oldest first.
func (b *Bus) History(limit int) []*models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	out := make([]*models.Message, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}

// popLocked removes and returns the best eligible message. Caller holds b.mu.
func (b *Bus) popLocked(receiver string) *models.Message {
	q := b.queues[receiver]
	if q == nil {
		return nil
	}
	now := b.now()
	for q.Len() > 0 {
		item := heap.Pop(q).(queued)
		if item.msg.Expired(now) {
			continue
		}
		return item.msg
	}
	return nil
}

// wakeLocked releases every consumer blocked on the receiver. Caller holds b.mu.
func (b *Bus) wakeLocked(receiver string) {
	for _, ch := range b.waiters[receiver] {
		close(ch)
	}
	b.waiters[receiver] = nil
}

// recordLocked appends to the bounded history. Caller holds b.mu.
func (b *Bus) recordLocked(msg *models.Message) {
	b.history = append(b.history, msg)
	if len(b.history) > historyLimit {
		b.history = b.history[len(b.history)-historyLimit:]
	}
}

// knownReceiversLocked lists receivers with a queue or subscribers.
func (b *Bus) knownReceiversLocked() []string {
	seen := make(map[string]bool)
	var receivers []string
	for r := range b.queues {
		if !seen[r] {
			seen[r] = true
			receivers = append(receivers, r)
		}
	}
	for r := range b.subscribers {
		if !seen[r] {
			seen[r] = true
			receivers = append(receivers, r)
		}
	}
	return receivers
}

// queued pairs a message with its arrival sequence for FIFO tie-breaking.
type queued struct {
	msg *models.Message
	seq uint64
}

// messageHeap is a max-heap by priority, min-heap by sequence within a priority.
type messageHeap []queued

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority > h[j].msg.Priority
	}
	return h[i].seq < h[j].seq
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x interface{}) {
	*h = append(*h, x.(queued))
}

func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
