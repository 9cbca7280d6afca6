package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventType names an event on the wire.
type EventType string

// Inbound, client to server.
const (
	EventJoin        EventType = "join"
	EventChatMessage EventType = "chat-message"
	EventTypingStart EventType = "typing-start"
	EventTypingStop  EventType = "typing-stop"
)

// Outbound, server to clients.
const (
	EventPresenceJoin  EventType = "presence-join"
	EventRoster        EventType = "roster"
	EventChatBroadcast EventType = "chat-broadcast"
	EventTypingStarted EventType = "typing-started"
	EventTypingStopped EventType = "typing-stopped"
	EventPresenceLeave EventType = "presence-leave"
	EventError         EventType = "error"
)

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound event ready to be encoded.
type Event struct {
	Type EventType
	Data any
}

type joinPayload struct {
	DisplayName string `json:"displayName"`
}

type chatPayload struct {
	Body *string `json:"body"`
}

// PresencePayload is carried by presence-join and presence-leave.
type PresencePayload struct {
	DisplayName  string    `json:"displayName"`
	ConnectionID ConnID    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

// TypingPayload is carried by typing-started and typing-stopped; the
// display name is omitted for typing-stopped.
type TypingPayload struct {
	DisplayName  string `json:"displayName,omitempty"`
	ConnectionID ConnID `json:"connectionId"`
}

// ErrorPayload is unicast to a connection whose event was rejected.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode renders e as an Envelope.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type, err)
	}
	return json.Marshal(Envelope{Type: e.Type, Data: data})
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return env, nil
}

// decodeDisplayName accepts either a bare JSON string or
// {"displayName": "..."}.
func decodeDisplayName(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", fmt.Errorf("%w: join without display name", ErrMalformedEvent)
	}
	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return name, nil
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return p.DisplayName, nil
}

func decodeChatBody(data json.RawMessage) (string, error) {
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if p.Body == nil {
		return "", fmt.Errorf("%w: chat-message without body", ErrMalformedEvent)
	}
	return *p.Body, nil
}
