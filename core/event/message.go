package event

import (
	"bytes"
	"encoding/json"
	"time"
)

// Message is a transport-level unit of delivery. The ID doubles as the
// handler idempotency key: the same ID may be delivered more than once and
// handlers must tolerate redelivery.
type Message struct {
	ID         string            `json:"id"`
	Body       json.RawMessage   `json:"body"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	AckHandle  string            `json:"ack_handle,omitempty"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Event is the dispatched form of a message body. Type is the routing key
// that selects handlers; Data carries the payload untouched.
type Event struct {
	Type     string            `json:"type"`
	Data     json.RawMessage   `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EncodeBody normalizes a raw transport payload into JSON. Valid JSON
// passes through untouched; anything else is wrapped as a JSON string so
// opaque bodies survive the trip through handlers and the state store.
func EncodeBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if json.Valid(trimmed) && len(trimmed) > 0 {
		return json.RawMessage(trimmed)
	}

	quoted, err := json.Marshal(string(raw))
	if err != nil {
		// Marshaling a string cannot fail; keep the branch for safety.
		return json.RawMessage(`""`)
	}
	return json.RawMessage(quoted)
}

// EventFromMessage extracts the routing envelope from a message body.
// The body is expected to be a JSON object with a "type" field; the whole
// body becomes Event.Data. A body without a type yields an Event with an
// empty Type, which dispatchers treat as handled.
func EventFromMessage(msg Message) Event {
	var envelope struct {
		Type string `json:"type"`
	}
	// A non-object body simply has no routing key.
	_ = json.Unmarshal(msg.Body, &envelope)

	return Event{
		Type:     envelope.Type,
		Data:     msg.Body,
		Metadata: msg.Metadata,
	}
}
