package models

import (
	"time"

	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// Device is a PV node known to the console. Rows are created via the API or
// automatically when the first uplink from an unknown DevEUI arrives.
type Device struct {
	DevEUI    lorawan.EUI64 `json:"devEUI" db:"dev_eui"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time     `json:"updatedAt" db:"updated_at"`

	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	IsDisabled  bool   `json:"isDisabled" db:"is_disabled"`

	// Radio state from the last uplink
	DevAddr    *lorawan.DevAddr `json:"devAddr,omitempty" db:"dev_addr"`
	LastSeenAt *time.Time       `json:"lastSeenAt,omitempty" db:"last_seen_at"`
	FCntUp     uint32           `json:"fCntUp" db:"f_cnt_up"`
	FCntDown   uint32           `json:"fCntDown" db:"f_cnt_down"`
	LastRSSI   *int             `json:"lastRSSI,omitempty" db:"last_rssi"`
	LastSNR    *float64         `json:"lastSNR,omitempty" db:"last_snr"`

	// Node status from the last port 0x38 uplink
	BatteryMV        *int       `json:"batteryMV,omitempty" db:"battery_mv"`
	BatteryUpdatedAt *time.Time `json:"batteryUpdatedAt,omitempty" db:"battery_updated_at"`
	LongSleep        bool       `json:"longSleep" db:"long_sleep"`
}
