package server

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MessageScene MessageType = "scene"
	MessageError MessageType = "error"
)

// Envelope frames every WebSocket message pushed to renderers.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

// ErrorMessage reports an asset that could not be applied. The scene is left
// unchanged.
type ErrorMessage struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

func (s *Server) encodeEnvelope(typ MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Seq:       s.seq.Add(1),
		Payload:   raw,
	})
}
