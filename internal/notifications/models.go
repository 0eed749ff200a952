package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"slotbook/pkg/cache"

	"github.com/google/uuid"
)

// Message is the envelope every transport carries.
type Message struct {
	ID        uuid.UUID              `json:"id"`
	Event     string                 `json:"event"`
	UserID    uuid.UUID              `json:"user_id"`
	SlotID    uuid.UUID              `json:"slot_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func NewMessage(event string, userID, slotID uuid.UUID, payload map[string]interface{}) *Message {
	return &Message{
		ID:        uuid.New(),
		Event:     event,
		UserID:    userID,
		SlotID:    slotID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes a message produced by ToJSON.
func ParseMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if m.Event == "" || m.UserID == uuid.Nil {
		return nil, fmt.Errorf("notification %s is missing event or user", m.ID)
	}
	return &m, nil
}

// PartitionKey keeps one user's notifications in order.
func (m *Message) PartitionKey() string {
	return m.UserID.String()
}

// ChannelFor is the Redis pub/sub channel a user's live stream listens on.
func ChannelFor(userID uuid.UUID) string {
	return fmt.Sprintf("%s:notifications:%s", cache.Prefix, userID)
}
