// Package history persists controller events and periodic metric snapshots.
package history

import (
	"sync"

	"github.com/rs/zerolog"

	"relink/internal/reconnect"
	"relink/internal/storage"
)

const defaultQueueSize = 256

// EventAppender stores one event record.
type EventAppender interface {
	Append(rec *storage.EventRecord) error
}

// EventSource is anything that fans out controller events.
type EventSource interface {
	Subscribe(fn func(reconnect.Event)) (unsubscribe func())
}

// Recorder copies every controller event into the event store. Writes
// happen on a background goroutine so listeners never block on sqlite;
// events are dropped when the queue is full.
type Recorder struct {
	store EventAppender
	log   zerolog.Logger
	queue chan reconnect.Event
	done  chan struct{}

	mu      sync.Mutex
	unsub   func()
	closed  bool
	dropped int
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store EventAppender, log zerolog.Logger) *Recorder {
	r := &Recorder{
		store: store,
		log:   log,
		queue: make(chan reconnect.Event, defaultQueueSize),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// Attach subscribes the recorder to src. A previous subscription is dropped.
func (r *Recorder) Attach(src EventSource) {
	unsub := src.Subscribe(r.Record)

	r.mu.Lock()
	prev := r.unsub
	r.unsub = unsub
	r.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Record queues ev for writing.
func (r *Recorder) Record(ev reconnect.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- ev:
	default:
		r.dropped++
		r.log.Warn().Str("event", string(ev.Kind)).Int("dropped", r.dropped).Msg("History queue full, event dropped")
	}
}

// Dropped is the number of events lost to a full queue.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close detaches from the source and waits for queued events to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsub := r.unsub
	r.unsub = nil
	close(r.queue)
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for ev := range r.queue {
		if err := r.store.Append(RecordOf(ev)); err != nil {
			r.log.Error().Err(err).Str("event", string(ev.Kind)).Msg("Failed to store event")
		}
	}
}

// RecordOf converts a controller event to its stored form.
func RecordOf(ev reconnect.Event) *storage.EventRecord {
	return &storage.EventRecord{
		CycleID:        ev.CycleID,
		Kind:           string(ev.Kind),
		Attempt:        ev.Attempt,
		Reason:         ev.Reason,
		Strategy:       string(ev.Strategy),
		Error:          ev.ErrorString(),
		FallbackActive: ev.FallbackActive,
		At:             ev.Time.UTC(),
	}
}
