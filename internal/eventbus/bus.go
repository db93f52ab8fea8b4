package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/schema"
)

// Bus fans controller state events out to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.Mutex
	subs   map[chan schema.StateEvent]struct{}
	last   *schema.StateEvent
	log    pslog.Logger
	depth  int
	closed bool
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan schema.StateEvent]struct{}),
		log:   logger,
		depth: 64,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan schema.StateEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.StateEvent, b.depth)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			_, ok := b.subs[ch]
			delete(b.subs, ch)
			b.mu.Unlock()
			if ok {
				close(ch)
			}
			b.log.Debug("eventbus unsubscribe")
		})
	}
}

// OnStateEvent publishes an event. It implements core.EventSink.
func (b *Bus) OnStateEvent(event schema.StateEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	stored := event
	b.last = &stored
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}

// Last returns the most recently published event.
func (b *Bus) Last() (schema.StateEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return schema.StateEvent{}, false
	}
	return *b.last, true
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub)
	}
	b.subs = map[chan schema.StateEvent]struct{}{}
}
