// Package websocket streams controller events to WebSocket clients.
package websocket

import (
	"encoding/json"

	"relink/internal/gateway/handlers"
	"relink/internal/reconnect"
)

// WSMessage is the frame exchanged with clients in both directions.
type WSMessage struct {
	Type    string                `json:"type"`
	Kinds   []reconnect.EventKind `json:"kinds,omitempty"`
	Event   *EventPayload         `json:"event,omitempty"`
	State   *handlers.StateView   `json:"state,omitempty"`
	Code    string                `json:"code,omitempty"`
	Message string                `json:"message,omitempty"`
}

// EventPayload is a controller event with its error flattened to text.
type EventPayload struct {
	reconnect.Event
	Error string `json:"error,omitempty"`
}

// Message types.
const (
	// Client to server.
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypeGetState    = "get_state"

	// Server to client.
	TypePong  = "pong"
	TypeEvent = "event"
	TypeState = "state"
	TypeError = "error"
)

func encodeEvent(ev reconnect.Event) []byte {
	data, _ := json.Marshal(WSMessage{
		Type:  TypeEvent,
		Event: &EventPayload{Event: ev, Error: ev.ErrorString()},
	})
	return data
}

func encodeState(st reconnect.State) []byte {
	view := handlers.NewStateView(st)
	data, _ := json.Marshal(WSMessage{Type: TypeState, State: &view})
	return data
}
