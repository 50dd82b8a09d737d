// Package bus implements the per-call event fan-out used for live call
// monitoring. Emission is strictly non-blocking: a slow monitor loses
// events rather than delaying the audio path.
package bus

import (
	"log/slog"
	"sync"
	"time"
)

// Event types produced by the call engine.
const (
	EventStateTransition     = "state_transition"
	EventBargeIn             = "barge_in"
	EventSTTCommit           = "stt_commit"
	EventScoring             = "scoring"
	EventAgentReply          = "agent_reply"
	EventSilenceNudge        = "silence_nudge"
	EventSilenceGoodbye      = "silence_goodbye"
	EventCallComplete        = "call_complete"
	EventGenerationCancelled = "generation_cancelled"
	EventDTMF                = "dtmf"
)

// subscriberQueueSize bounds each monitor's backlog.
const subscriberQueueSize = 500

// Event is one observational record about a call. Never persisted.
type Event struct {
	CallID    string         `json:"call_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"ts"`
}

// Subscription is one monitor's view of a call. Events closes after the
// terminal signal when the call ends.
type Subscription struct {
	// Events delivers call events. A closed channel means the call ended
	// or the subscription was cancelled.
	Events <-chan Event

	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.ch)
}

// deliver sends without blocking. The mutex orders the send against
// close, so an emit racing an unsubscribe never reaches a closed
// channel.
func (s *Subscription) deliver(event Event) (delivered, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.ch <- event:
		return true, true
	default:
		return false, true
	}
}

// Bus fans call events out to per-call subscribers.
type Bus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string][]*Subscription
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger.With("component", "bus"),
		subs:   make(map[string][]*Subscription),
	}
}

// Subscribe registers a bounded-queue subscriber for one call.
func (b *Bus) Subscribe(callID string) *Subscription {
	ch := make(chan Event, subscriberQueueSize)
	sub := &Subscription{Events: ch, ch: ch}

	b.mu.Lock()
	b.subs[callID] = append(b.subs[callID], sub)
	n := len(b.subs[callID])
	b.mu.Unlock()

	b.logger.Info("subscriber added", "call_id", callID, "total", n)
	return sub
}

// Unsubscribe removes one subscriber and closes its channel.
func (b *Bus) Unsubscribe(callID string, sub *Subscription) {
	b.mu.Lock()
	subs := b.subs[callID]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, callID)
	} else {
		b.subs[callID] = subs
	}
	b.mu.Unlock()

	sub.close()
}

// Emit delivers an event to every subscriber of its call without ever
// blocking. Full queues drop the event for that subscriber.
func (b *Bus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	subs := append([]*Subscription(nil), b.subs[event.CallID]...)
	b.mu.Unlock()

	for _, sub := range subs {
		delivered, open := sub.deliver(event)
		if open && !delivered {
			b.logger.Warn("subscriber queue full, dropping event",
				"call_id", event.CallID, "type", event.Type)
		}
	}
}

// CloseCall signals end-of-call to every subscriber and removes the
// registry entry. Subscribers observe the closed Events channel as the
// terminal signal.
func (b *Bus) CloseCall(callID string) {
	b.mu.Lock()
	subs := b.subs[callID]
	delete(b.subs, callID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
