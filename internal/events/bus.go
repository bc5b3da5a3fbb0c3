// Package events is the per-session progress channel between the recognition
// pipeline and connected clients. Delivery is best-effort and ephemeral:
// events are not replayed to late subscribers, and the authoritative state
// is always recoverable from the session itself.
package events

import (
	"sync"
	"time"
)

// Type names a lifecycle or progress event.
type Type string

const (
	Connected            Type = "connected"
	Heartbeat            Type = "heartbeat"
	RecognitionStarted   Type = "recognition-started"
	PageCompleted        Type = "page-completed"
	RecognitionFinished  Type = "recognition-finished"
	RecognitionFailed    Type = "recognition-failed"
	RecognitionCancelled Type = "recognition-cancelled"
)

// StagePage marks per-page progress events.
const StagePage = "page"

// Terminal reports whether the event ends a recognition run.
func (t Type) Terminal() bool {
	switch t {
	case RecognitionFinished, RecognitionFailed, RecognitionCancelled:
		return true
	}
	return false
}

// Event is one progress or lifecycle notification for a session.
type Event struct {
	Type      Type      `json:"event"`
	SessionID string    `json:"session_id"`
	RunID     string    `json:"run_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// defaultBuffer is each subscriber's queue depth. When a client stops
// reading, the oldest events are dropped rather than growing memory or
// blocking the publisher.
const defaultBuffer = 64

type subscriber struct {
	sessionID string
	ch        chan Event
}

// Bus fans events out to all subscribers of a session. Publishing never
// blocks on a slow subscriber.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscriber]struct{}
	buffer      int
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]map[*subscriber]struct{}),
		buffer:      defaultBuffer,
	}
}

// Subscription is one attached listener. Receive events from C; call Close
// when done. Closing does not affect other subscribers.
type Subscription struct {
	C    <-chan Event
	bus  *Bus
	sub  *subscriber
	once sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if subs, ok := s.bus.subscribers[s.sub.sessionID]; ok {
			delete(subs, s.sub)
			if len(subs) == 0 {
				delete(s.bus.subscribers, s.sub.sessionID)
			}
		}
	})
}

// Subscribe attaches a listener to a session. The subscriber receives every
// event published after this call, in publication order.
func (b *Bus) Subscribe(sessionID string) *Subscription {
	sub := &subscriber{
		sessionID: sessionID,
		ch:        make(chan Event, b.buffer),
	}
	b.mu.Lock()
	subs, ok := b.subscribers[sessionID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.subscribers[sessionID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	return &Subscription{C: sub.ch, bus: b, sub: sub}
}

// Publish delivers the event to every current subscriber of its session.
// Full subscriber queues drop their oldest event to make room.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers[event.SessionID] {
		select {
		case sub.ch <- event:
		default:
			// Queue full: evict the oldest entry. Publishes are serialized
			// under the bus lock, so the retry cannot race another producer.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// SubscriberCount reports attached listeners for a session.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[sessionID])
}
