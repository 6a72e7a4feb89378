package notify

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventType identifies notification messages on a broker.
const EventType = "bggeo.notification.login_expired"

type envelope struct {
	EventID    string       `json:"event_id"`
	EventType  string       `json:"event_type"`
	OccurredAt int64        `json:"occurred_at"`
	Payload    Notification `json:"payload"`
}

func encodeEnvelope(n Notification) (string, []byte, error) {
	id := uuid.NewString()
	data, err := json.Marshal(envelope{
		EventID:    id,
		EventType:  EventType,
		OccurredAt: n.At.Unix(),
		Payload:    n,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return id, data, nil
}
