package websocket

import (
	"sync"

	"github.com/rs/zerolog"

	"relink/internal/reconnect"
)

// Controller is what the hub reads and listens to.
type Controller interface {
	State() reconnect.State
	Subscribe(fn func(reconnect.Event)) (unsubscribe func())
}

type broadcastMessage struct {
	kind reconnect.EventKind
	data []byte
}

// Hub fans controller events out to connected clients. Clients may narrow
// the stream to a set of event kinds.
type Hub struct {
	ctrl Controller
	log  zerolog.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage
	done       chan struct{}
	stopOnce   sync.Once
	detach     func()

	mu sync.RWMutex
}

// NewHub creates a hub for ctrl.
func NewHub(ctrl Controller, log zerolog.Logger) *Hub {
	return &Hub{
		ctrl:       ctrl,
		log:        log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run subscribes to the controller and serves the hub until Stop.
func (h *Hub) Run() {
	select {
	case <-h.done:
		return
	default:
	}

	h.mu.Lock()
	h.detach = h.ctrl.Subscribe(h.publish)
	h.mu.Unlock()

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			client.trySend(encodeState(h.ctrl.State()))
			h.log.Info().Str("client_id", client.id).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.wants(msg.kind) {
					// a full buffer drops the frame for that client only
					client.trySend(msg.data)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop detaches from the controller and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		detach := h.detach
		h.detach = nil
		h.mu.Unlock()
		if detach != nil {
			detach()
		}
		close(h.done)
	})
}

// publish is the controller listener. It never blocks the controller.
func (h *Hub) publish(ev reconnect.Event) {
	select {
	case h.broadcast <- broadcastMessage{kind: ev.Kind, data: encodeEvent(ev)}:
	default:
		h.log.Warn().Str("event", string(ev.Kind)).Msg("WebSocket broadcast queue full, event dropped")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
