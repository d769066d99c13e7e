package probe

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// writeWait bounds a control frame write.
	writeWait = 10 * time.Second
	// maxMessageSize caps inbound frames; the probe never expects payloads.
	maxMessageSize = 64 * 1024
)

var errConnClosed = errors.New("websocket connection closed")

// wsConn is one dialed connection and its read loop state.
type wsConn struct {
	conn   *websocket.Conn
	pongs  chan string
	closed chan struct{}
}

// WebSocketProbe keeps a WebSocket connection open and measures health as a
// ping/pong round trip. A read failure reports the connection lost; the
// monitor redials and reports it restored.
type WebSocketProbe struct {
	*tracker

	url    string
	opts   Options
	dialer *websocket.Dialer
	log    zerolog.Logger

	checkMu sync.Mutex // serializes pings and dials
	seq     uint64

	mu       sync.Mutex
	cur      *wsConn
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWebSocketProbe creates a probe for a ws:// or wss:// url.
func NewWebSocketProbe(url string, opts Options, log zerolog.Logger) *WebSocketProbe {
	opts = opts.withDefaults()
	return &WebSocketProbe{
		tracker: newTracker(opts.LatencyBudget),
		url:     url,
		opts:    opts,
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.Timeout},
		log:     log,
	}
}

// PerformHealthCheck dials when no connection is open, then pings.
func (p *WebSocketProbe) PerformHealthCheck(ctx context.Context) (bool, error) {
	_, ok, latency, err := p.check(ctx)
	p.observe(ok, latency, false)
	return ok, err
}

// check reports whether it had to dial, so the monitor can tell a redial
// from a ping on a live connection.
func (p *WebSocketProbe) check(ctx context.Context) (dialed, ok bool, latency time.Duration, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	p.checkMu.Lock()
	defer p.checkMu.Unlock()

	c := p.current()
	if c == nil {
		c, err = p.dial(ctx)
		if err != nil {
			return true, false, 0, err
		}
		dialed = true
	}

	latency, err = p.ping(ctx, c)
	if err != nil {
		p.drop(c)
		return dialed, false, 0, err
	}
	return dialed, true, latency, nil
}

func (p *WebSocketProbe) current() *wsConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

func (p *WebSocketProbe) dial(ctx context.Context) (*wsConn, error) {
	conn, resp, err := p.dialer.DialContext(ctx, p.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		conn:   conn,
		pongs:  make(chan string, 4),
		closed: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(data string) error {
		select {
		case c.pongs <- data:
		default:
		}
		return nil
	})

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		_ = conn.Close()
		return nil, errConnClosed
	}
	p.cur = c
	p.mu.Unlock()

	go p.readLoop(c)
	p.log.Debug().Str("url", p.url).Msg("WebSocket connected")
	return c, nil
}

// readLoop drains inbound frames so control handlers run. It owns the
// connection's lifetime.
func (p *WebSocketProbe) readLoop(c *wsConn) {
	defer close(c.closed)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Debug().Err(err).Msg("WebSocket read failed")
			}
			break
		}
	}

	p.mu.Lock()
	wasCurrent := p.cur == c
	if wasCurrent {
		p.cur = nil
	}
	stopping := p.stopping
	p.mu.Unlock()

	_ = c.conn.Close()
	if wasCurrent && !stopping {
		p.observe(false, 0, true)
	}
}

func (p *WebSocketProbe) ping(ctx context.Context, c *wsConn) (time.Duration, error) {
	p.seq++
	payload := strconv.FormatUint(p.seq, 10)

	start := time.Now()
	if err := c.conn.WriteControl(websocket.PingMessage, []byte(payload), time.Now().Add(writeWait)); err != nil {
		return 0, err
	}

	for {
		select {
		case data := <-c.pongs:
			if data == payload {
				return time.Since(start), nil
			}
		case <-c.closed:
			return 0, errConnClosed
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// drop closes c without reporting; the failed check is reported by the caller.
func (p *WebSocketProbe) drop(c *wsConn) {
	p.mu.Lock()
	if p.cur == c {
		p.cur = nil
	}
	p.mu.Unlock()
	_ = c.conn.Close()
}

// Start dials and runs the background monitor until Stop or ctx is done.
func (p *WebSocketProbe) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	p.stopping = false
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.monitor(ctx, p.done)
}

// Stop ends the monitor and closes the connection.
func (p *WebSocketProbe) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.stopping = true
	c := p.cur
	p.cur = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if c != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()
		<-c.closed
	}
}

func (p *WebSocketProbe) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		dialed, ok, latency, err := p.check(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Debug().Err(err).Bool("dialed", dialed).Str("url", p.url).Msg("WebSocket check failed")
		}
		p.observe(ok, latency, true)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
