package reconnect

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventKind identifies a controller notification.
type EventKind string

const (
	EventStart              EventKind = "start"
	EventSuccess            EventKind = "success"
	EventFailure            EventKind = "failure"
	EventMaxAttemptsReached EventKind = "max_attempts_reached"
	EventCircuitBreakerOpen EventKind = "circuit_breaker_open"
	EventFallbackMode       EventKind = "fallback_mode"
)

// EventKinds lists every kind.
var EventKinds = []EventKind{
	EventStart, EventFailure, EventCircuitBreakerOpen,
	EventMaxAttemptsReached, EventFallbackMode, EventSuccess,
}

// Event is a controller notification.
type Event struct {
	Kind     EventKind `json:"kind"`
	Time     time.Time `json:"time"`
	CycleID  string    `json:"cycle_id,omitempty"`
	Attempt  int       `json:"attempt,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Strategy Strategy  `json:"strategy,omitempty"`
	// Err is set for EventFailure.
	Err error `json:"-"`
	// FallbackActive is set for EventFallbackMode.
	FallbackActive bool `json:"fallback_active,omitempty"`
}

// ErrorString returns the failure cause or an empty string.
func (e Event) ErrorString() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Bus fans events out to listeners registered per kind. A panicking listener
// is logged and skipped.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[EventKind]map[int]func(Event)
	all    map[int]func(Event)
	logger zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		topics: make(map[EventKind]map[int]func(Event)),
		all:    make(map[int]func(Event)),
		logger: logger,
	}
}

// On registers fn for one kind and returns a function that removes it.
func (b *Bus) On(kind EventKind, fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.topics[kind] == nil {
		b.topics[kind] = make(map[int]func(Event))
	}
	b.topics[kind][id] = fn

	return func() {
		b.mu.Lock()
		delete(b.topics[kind], id)
		b.mu.Unlock()
	}
}

// Subscribe registers fn for every kind.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.all[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.all, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to the kind's listeners, then to catch-all listeners,
// each in registration order.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	listeners := make([]func(Event), 0, len(b.topics[ev.Kind])+len(b.all))
	listeners = appendOrdered(listeners, b.topics[ev.Kind], b.nextID)
	listeners = appendOrdered(listeners, b.all, b.nextID)
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.deliver(ev, fn)
	}
}

func (b *Bus) deliver(ev Event, fn func(Event)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", string(ev.Kind)).
				Str("panic", fmt.Sprint(r)).
				Msg("Event listener panicked")
		}
	}()
	fn(ev)
}

func appendOrdered(dst []func(Event), m map[int]func(Event), upto int) []func(Event) {
	if len(m) == 0 {
		return dst
	}
	for id := 0; id < upto; id++ {
		if fn, ok := m[id]; ok {
			dst = append(dst, fn)
		}
	}
	return dst
}
