package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// DownlinkCommand is a queued device command waiting for the node's next
// uplink. Class A: the console can only deliver it in a receive window, so
// the queue drains one entry per uplink.
type DownlinkCommand struct {
	ID     uuid.UUID     `json:"id" db:"id"`
	DevEUI lorawan.EUI64 `json:"devEUI" db:"dev_eui"`

	// Name is the JSON bridge name of the command, kept for display.
	Name    string `json:"name" db:"name"`
	FPort   uint8  `json:"fPort" db:"f_port"`
	Payload []byte `json:"payload" db:"payload"`

	IsPending bool       `json:"isPending" db:"is_pending"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	SentAt    *time.Time `json:"sentAt,omitempty" db:"sent_at"`

	Reference string `json:"reference,omitempty" db:"reference"`
}
