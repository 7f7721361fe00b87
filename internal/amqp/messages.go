package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"costmanager/internal/core"
)

// EventType names a change to the cost store.
type EventType string

const (
	EventCostCreated EventType = "cost.created"
	EventCostDeleted EventType = "cost.deleted"
)

// CostEvent announces a change to the cost store. Cost is always set for
// cost.created, and for cost.deleted when the record existed.
type CostEvent struct {
	EventID   string     `json:"event_id"`
	Type      EventType  `json:"type"`
	ID        int64      `json:"id"`
	Cost      *core.Cost `json:"cost,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewCostCreatedEvent builds the event published after an insert.
func NewCostCreatedEvent(c core.Cost) *CostEvent {
	return &CostEvent{
		EventID:   uuid.NewString(),
		Type:      EventCostCreated,
		ID:        c.ID,
		Cost:      &c,
		Timestamp: time.Now().UTC(),
	}
}

// NewCostDeletedEvent builds the event published after a delete. removed is
// nil when no cost had the ID.
func NewCostDeletedEvent(id int64, removed *core.Cost) *CostEvent {
	return &CostEvent{
		EventID:   uuid.NewString(),
		Type:      EventCostDeleted,
		ID:        id,
		Cost:      removed,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *CostEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// CostEventFromJSON decodes and sanity-checks an event.
func CostEventFromJSON(data []byte) (*CostEvent, error) {
	var e CostEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventCostCreated:
		if e.Cost == nil {
			return nil, fmt.Errorf("%s event %s has no cost", e.Type, e.EventID)
		}
	case EventCostDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return &e, nil
}
