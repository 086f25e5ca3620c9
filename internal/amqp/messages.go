package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// InvalidationMessage asks every instance to drop cache entries whose key
// contains one of the patterns. Origin identifies the publishing instance so
// it can skip its own messages.
type InvalidationMessage struct {
	Patterns  []string  `json:"patterns"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInvalidationMessage creates a message stamped with the current time
func NewInvalidationMessage(origin string, patterns ...string) *InvalidationMessage {
	return &InvalidationMessage{
		Patterns:  patterns,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *InvalidationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InvalidationMessageFromJSON decodes a message and rejects one without patterns.
func InvalidationMessageFromJSON(data []byte) (*InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if len(msg.Patterns) == 0 {
		return nil, errors.New("invalidation message without patterns")
	}
	return &msg, nil
}
