// Package observability exports controller state as Prometheus metrics.
package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relink/internal/reconnect"
)

// StatusSource is read at scrape time.
type StatusSource interface {
	State() reconnect.State
	Metrics() reconnect.Metrics
}

// EventSource feeds the events counter.
type EventSource interface {
	Subscribe(fn func(reconnect.Event)) (unsubscribe func())
}

// Exporter owns a registry holding the controller collector, an events
// counter and the Go runtime collectors.
type Exporter struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec

	mu     sync.Mutex
	detach []func()
}

// NewExporter registers a collector for source under namespace.
func NewExporter(namespace string, source StatusSource) *Exporter {
	reg := prometheus.NewRegistry()
	e := &Exporter{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Controller events by kind.",
		}, []string{"kind"}),
	}
	for _, kind := range reconnect.EventKinds {
		e.events.WithLabelValues(string(kind))
	}

	reg.MustRegister(
		newControllerCollector(namespace, source),
		e.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Attach counts every event published by src until Close.
func (e *Exporter) Attach(src EventSource) {
	unsubscribe := src.Subscribe(func(ev reconnect.Event) {
		e.events.WithLabelValues(string(ev.Kind)).Inc()
	})
	e.mu.Lock()
	e.detach = append(e.detach, unsubscribe)
	e.mu.Unlock()
}

// Close detaches from every source.
func (e *Exporter) Close() {
	e.mu.Lock()
	detach := e.detach
	e.detach = nil
	e.mu.Unlock()
	for _, fn := range detach {
		fn()
	}
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
