package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"famfunds/internal/core"
	"famfunds/internal/ledger"
)

// EventMessage is the wire form of a ledger event. ID is unique per message
// so consumers can drop redeliveries.
type EventMessage struct {
	ID          string            `json:"id"`
	Type        ledger.EventType  `json:"type"`
	OccurredAt  time.Time         `json:"occurredAt"`
	PublishedAt time.Time         `json:"publishedAt"`
	Account     *core.SubAccount  `json:"account,omitempty"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

func NewEventMessage(ev ledger.Event) *EventMessage {
	return &EventMessage{
		ID:          uuid.NewString(),
		Type:        ev.Type,
		OccurredAt:  ev.At,
		PublishedAt: time.Now(),
		Account:     ev.Account,
		Transaction: ev.Transaction,
	}
}

// Event converts the message back into a ledger event.
func (m *EventMessage) Event() ledger.Event {
	return ledger.Event{
		Type:        m.Type,
		At:          m.OccurredAt,
		Account:     m.Account,
		Transaction: m.Transaction,
	}
}

func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
