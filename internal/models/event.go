package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// EventLog represents an event log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	DevEUI *lorawan.EUI64 `json:"devEUI,omitempty" db:"dev_eui"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Code        string     `json:"code" db:"code"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	EventTypeUplink          EventType = "UPLINK"
	EventTypeDownlink        EventType = "DOWNLINK"
	EventTypeJoin            EventType = "JOIN"
	EventTypeError           EventType = "ERROR"
	EventTypeCommandQueued   EventType = "COMMAND_QUEUED"
	EventTypeCommandSent     EventType = "COMMAND_SENT"
	EventTypeCommandResponse EventType = "COMMAND_RESPONSE"
	EventTypeIntegration     EventType = "INTEGRATION"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
