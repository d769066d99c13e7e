package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HTTPProbe checks an HTTP endpoint; any 2xx answer is healthy.
type HTTPProbe struct {
	*tracker

	url    string
	opts   Options
	client *http.Client
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHTTPProbe creates a probe for url.
func NewHTTPProbe(url string, opts Options, log zerolog.Logger) *HTTPProbe {
	opts = opts.withDefaults()
	return &HTTPProbe{
		tracker: newTracker(opts.LatencyBudget),
		url:     url,
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		log:     log,
	}
}

// PerformHealthCheck issues one GET.
func (p *HTTPProbe) PerformHealthCheck(ctx context.Context) (bool, error) {
	ok, latency, err := p.check(ctx)
	p.observe(ok, latency, false)
	return ok, err
}

func (p *HTTPProbe) check(ctx context.Context) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false, 0, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, latency, fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return true, latency, nil
}

// Start runs the background monitor until Stop or ctx is done. Monitor
// results drive the connection lost and restored callbacks.
func (p *HTTPProbe) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.monitor(ctx, p.done)
}

// Stop ends the monitor and waits for it to exit.
func (p *HTTPProbe) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *HTTPProbe) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		ok, latency, err := p.check(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Debug().Err(err).Str("url", p.url).Msg("Health check failed")
		}
		p.observe(ok, latency, true)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
