// Package hub fans messages out to websocket clients: one goroutine owns
// the client set and every client has its own write pump.
package hub

import "encoding/json"

// MessageType indicates the websocket frame type.
type MessageType int

const (
	// JSONMessage is a JSON-encoded text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, such as a JPEG preview frame.
	BinaryMessage
)

// Message is one frame to deliver.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Event is the envelope of every JSON message: {"type": ..., "data": ...}.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// EncodeEvent marshals an event envelope.
func EncodeEvent(eventType string, data interface{}) (Message, error) {
	b, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(b), nil
}
