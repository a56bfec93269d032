package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"bilancio/internal/core"
)

// EventType names what happened to a month document.
type EventType string

const (
	MonthGenerated     EventType = "month.generated"
	MonthSynced        EventType = "month.synced"
	OccurrenceClosed   EventType = "occurrence.closed"
	OccurrenceReopened EventType = "occurrence.reopened"
	OccurrenceSplit    EventType = "occurrence.split"
	OccurrencePayment  EventType = "occurrence.payment"
	// MonthSyncRequested asks the worker to sync a month, e.g. after a
	// template was saved.
	MonthSyncRequested EventType = "month.sync_requested"
)

func (t EventType) IsValid() bool {
	switch t {
	case MonthGenerated, MonthSynced, OccurrenceClosed, OccurrenceReopened,
		OccurrenceSplit, OccurrencePayment, MonthSyncRequested:
		return true
	default:
		return false
	}
}

// MonthEvent is a lightweight notification; consumers re-read the month
// document for details.
type MonthEvent struct {
	Type         EventType  `json:"type"`
	Month        core.Month `json:"month"`
	InstanceID   string     `json:"instance_id,omitempty"`
	OccurrenceID string     `json:"occurrence_id,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// NewMonthEvent creates an event stamped with the current time.
func NewMonthEvent(t EventType, month core.Month, instanceID, occurrenceID string) MonthEvent {
	return MonthEvent{
		Type:         t,
		Month:        month,
		InstanceID:   instanceID,
		OccurrenceID: occurrenceID,
		Timestamp:    time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m MonthEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MonthEventFromJSON decodes and validates an event.
func MonthEventFromJSON(data []byte) (MonthEvent, error) {
	var msg MonthEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return MonthEvent{}, err
	}
	if !msg.Type.IsValid() {
		return MonthEvent{}, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.Month.IsZero() {
		return MonthEvent{}, fmt.Errorf("event %s has no month", msg.Type)
	}
	return msg, nil
}
