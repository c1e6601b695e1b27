package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// LiveReading is a decoded port 1 uplink: instantaneous inverter readings
// plus the radio metadata of the frame that carried them.
type LiveReading struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	DevEUI     lorawan.EUI64 `json:"devEUI" db:"dev_eui"`
	ReceivedAt time.Time     `json:"receivedAt" db:"received_at"`
	FCnt       uint32        `json:"fCnt" db:"f_cnt"`

	Status      uint8   `json:"status" db:"status"`
	ACPower     float64 `json:"acPower" db:"ac_power"`
	PVPower     float64 `json:"pvPower" db:"pv_power"`
	PV1Voltage  float64 `json:"pv1Voltage" db:"pv1_voltage"`
	PV1Current  float64 `json:"pv1Current" db:"pv1_current"`
	GridVoltage float64 `json:"gridVoltage" db:"grid_voltage"`
	GridFreq    float64 `json:"gridFreq" db:"grid_freq"`
	Temperature float64 `json:"temperature" db:"temperature"`

	RSSI int     `json:"rssi" db:"rssi"`
	SNR  float64 `json:"snr" db:"snr"`
}

// EnergyReading is a decoded port 2 uplink: energy accumulators and run time.
type EnergyReading struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	DevEUI     lorawan.EUI64 `json:"devEUI" db:"dev_eui"`
	ReceivedAt time.Time     `json:"receivedAt" db:"received_at"`
	FCnt       uint32        `json:"fCnt" db:"f_cnt"`

	Status         uint8   `json:"status" db:"status"`
	EnergyToday    float64 `json:"energyToday" db:"energy_today"`
	EnergyTotal    float64 `json:"energyTotal" db:"energy_total"`
	PV1EnergyTotal float64 `json:"pv1EnergyTotal" db:"pv1_energy_total"`
	WorkTime       uint32  `json:"workTime" db:"work_time"`

	RSSI int     `json:"rssi" db:"rssi"`
	SNR  float64 `json:"snr" db:"snr"`
}

// EnergyDay is one row of the daily energy report: the day's peak counter
// values, which for monotonic counters are the end-of-day readings.
type EnergyDay struct {
	Day         time.Time `json:"day"`
	EnergyToday float64   `json:"energyToday"`
	EnergyTotal float64   `json:"energyTotal"`
}
