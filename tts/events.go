package tts

import "sync"

// EventType names a session lifecycle notification.
type EventType string

const (
	EventRequestStarted  EventType = "requestStarted"
	EventBufferError     EventType = "bufferError"
	EventProgress        EventType = "progress"
	EventStreamComplete  EventType = "streamComplete"
	EventDownloadReady   EventType = "downloadReady"
	EventCancelled       EventType = "cancelled"
	EventFailed          EventType = "failed"
	EventPlaybackStarted EventType = "playbackStarted"
	EventPlaybackPaused  EventType = "playbackPaused"
	EventPlaybackEnded   EventType = "playbackEnded"
)

// Event is one notification published on the Bus. Only the fields
// relevant to the Type are set: Loaded/Total on progress and stream
// completion, Artifact on downloadReady, Message on failures and
// buffer notices.
type Event struct {
	Type      EventType
	SessionID string
	Loaded    int64
	Total     int64
	Artifact  *Artifact
	Message   string
}

// Indeterminate reports whether the event carries progress without a
// known total, in which case consumers must not derive a percentage.
func (e Event) Indeterminate() bool {
	return e.Total <= 0
}

// subscriptionBuffer is sized so a UI that drains promptly never
// stalls the publisher mid-stream.
const subscriptionBuffer = 64

// Subscription is one receiver's view of the Bus. Close it when done;
// a closed subscription no longer blocks publishers.
type Subscription struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Events returns the channel lifecycle events arrive on.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription from its Bus. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Bus is the in-process publish/subscribe channel between the
// generation core and its UI hosts. Delivery preserves publish order
// per subscriber; a publish blocks on a full subscriber buffer until
// the event is taken or that subscription closes, so live subscribers
// never lose events.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new receiver for all subsequent events.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		ch:   make(chan Event, subscriptionBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers the event to every open subscription.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	live := b.subs[:0]
	for _, sub := range b.subs {
		if !sub.closed() {
			live = append(live, sub)
		}
	}
	b.subs = live
	targets := make([]*Subscription, len(live))
	copy(targets, live)
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case <-sub.done:
		case sub.ch <- e:
		}
	}
}
