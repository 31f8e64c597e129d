// Package bus implements the per-meeting publish/subscribe fan-out that feeds
// live clients.
//
// Delivery semantics: at-most-once per subscriber per event, best effort.
// Within one meeting, events reach each subscriber in publish order. A
// subscriber that cannot keep up (its buffer is full) is treated as failed
// and pruned so it can never block delivery to the others. There is no
// replay — a subscriber only sees events published after it subscribed.
package bus

import (
	"log/slog"
	"sync"
)

// defaultBuffer is the per-subscriber event buffer. A full buffer marks the
// subscriber as failed.
const defaultBuffer = 64

// Subscriber is one live listener on a meeting's event stream. Receive from
// [Subscriber.Events]; the channel is closed when the subscriber is removed,
// whether by [Bus.Unsubscribe], delivery failure, or [Bus.Close].
type Subscriber struct {
	id        uint64
	meetingID string
	ch        chan Event
}

// Events returns the subscriber's receive channel. Events arrive in publish
// order for this meeting.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// MeetingID returns the meeting this subscriber is attached to.
func (s *Subscriber) MeetingID() string { return s.meetingID }

// Option configures a [Bus].
type Option func(*Bus)

// WithBuffer sets the per-subscriber channel buffer. Default: 64.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Bus is the per-meeting event fan-out registry. The zero value is not
// usable; construct with [New]. All methods are safe for concurrent use.
type Bus struct {
	buffer int

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*Subscriber
	closed bool
}

// New returns an initialised [Bus].
func New(opts ...Option) *Bus {
	b := &Bus{
		buffer: defaultBuffer,
		subs:   make(map[string]map[uint64]*Subscriber),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers a new listener for meetingID and returns its handle.
// Subscribing to a meeting with no prior events or no other listeners is
// always valid.
func (b *Bus) Subscribe(meetingID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		id:        b.nextID,
		meetingID: meetingID,
		ch:        make(chan Event, b.buffer),
	}
	b.nextID++

	if b.closed {
		// A closed bus hands out already-closed subscribers rather than nil
		// so callers need no special case.
		close(sub.ch)
		return sub
	}

	m, ok := b.subs[meetingID]
	if !ok {
		m = make(map[uint64]*Subscriber)
		b.subs[meetingID] = m
	}
	m[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call for a
// subscriber that was already pruned.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Publish delivers ev to every current subscriber of meetingID. Publishing
// to a meeting with zero subscribers is a no-op. A subscriber whose buffer
// is full is pruned; the remaining subscribers still receive the event.
func (b *Bus) Publish(meetingID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs[meetingID] {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("event bus: subscriber not keeping up, removing",
				"meeting_id", meetingID, "subscriber", sub.id, "event", ev.Kind())
			b.removeLocked(sub)
		}
	}
}

// SubscriberCount returns the number of live subscribers for meetingID.
func (b *Bus) SubscriberCount(meetingID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[meetingID])
}

// Close removes and closes every subscriber. Subsequent publishes are
// dropped and subsequent subscribes return closed handles.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, m := range b.subs {
		for _, sub := range m {
			close(sub.ch)
		}
	}
	b.subs = make(map[string]map[uint64]*Subscriber)
	return nil
}

// removeLocked deletes sub from the registry and closes its channel.
// Caller must hold b.mu.
func (b *Bus) removeLocked(sub *Subscriber) {
	m, ok := b.subs[sub.meetingID]
	if !ok {
		return
	}
	if _, ok := m[sub.id]; !ok {
		return
	}
	delete(m, sub.id)
	if len(m) == 0 {
		delete(b.subs, sub.meetingID)
	}
	close(sub.ch)
}
