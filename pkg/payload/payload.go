package payload

import (
	"encoding/binary"
	"fmt"
)

// Uplink ports carrying telemetry.
const (
	PortLiveData uint8 = 1
	PortEnergy   uint8 = 2
)

// Inverter status codes. 0-3 come from the inverter itself; StatusOffline is
// reported when the Modbus poll failed and the uplink is a bare heartbeat.
const (
	StatusWaiting uint8 = 0
	StatusNormal  uint8 = 1
	StatusFault   uint8 = 3
	StatusOffline uint8 = 0xFF
)

// StatusText returns a human-readable inverter status.
func StatusText(s uint8) string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusNormal:
		return "normal"
	case StatusFault:
		return "fault"
	case StatusOffline:
		return "offline"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// LiveData is the port 1 uplink: instantaneous inverter readings.
type LiveData struct {
	Status      uint8
	ACPower     float64 // W
	PVPower     float64 // W
	PV1Voltage  float64 // V
	PV1Current  float64 // A
	GridVoltage float64 // V
	GridFreq    float64 // Hz
	Temperature float64 // degrees Celsius
}

// liveDataLen is 1 status byte plus six 0.1-unit uint16 fields and the
// temperature.
const liveDataLen = 15

// EncodeTo writes the port 1 wire format: powers in 0.1 W, voltages in 0.1 V,
// current in 0.1 A, frequency in 0.01 Hz.
func (d LiveData) EncodeTo(e *Encoder) {
	e.Uint8(d.Status)
	e.Uint16(clampUint16(d.ACPower * 10))
	e.Uint16(clampUint16(d.PVPower * 10))
	e.Uint16(clampUint16(d.PV1Voltage * 10))
	e.Uint16(clampUint16(d.PV1Current * 10))
	e.Uint16(clampUint16(d.GridVoltage * 10))
	e.Uint16(clampUint16(d.GridFreq * 100))
	e.Temperature(d.Temperature)
}

// DecodeLiveData parses a port 1 payload.
func DecodeLiveData(data []byte) (LiveData, error) {
	if len(data) != liveDataLen {
		return LiveData{}, fmt.Errorf("live data: invalid length %d", len(data))
	}
	return LiveData{
		Status:      data[0],
		ACPower:     float64(binary.BigEndian.Uint16(data[1:3])) / 10,
		PVPower:     float64(binary.BigEndian.Uint16(data[3:5])) / 10,
		PV1Voltage:  float64(binary.BigEndian.Uint16(data[5:7])) / 10,
		PV1Current:  float64(binary.BigEndian.Uint16(data[7:9])) / 10,
		GridVoltage: float64(binary.BigEndian.Uint16(data[9:11])) / 10,
		GridFreq:    float64(binary.BigEndian.Uint16(data[11:13])) / 100,
		Temperature: float64(int16(binary.BigEndian.Uint16(data[13:15]))) / 100,
	}, nil
}

// Energy is the port 2 uplink: energy accumulators and run time.
type Energy struct {
	Status         uint8
	EnergyToday    float64 // kWh
	EnergyTotal    float64 // kWh
	PV1EnergyTotal float64 // kWh
	WorkTime       uint32  // seconds
}

const energyLen = 15

// EncodeTo writes the port 2 wire format: energies in 0.1 kWh, work time in
// whole seconds.
func (d Energy) EncodeTo(e *Encoder) {
	e.Uint8(d.Status)
	e.Uint16(clampUint16(d.EnergyToday * 10))
	e.Uint32(clampUint32(d.EnergyTotal * 10))
	e.Uint32(clampUint32(d.PV1EnergyTotal * 10))
	e.Uint32(d.WorkTime)
}

// DecodeEnergy parses a port 2 payload.
func DecodeEnergy(data []byte) (Energy, error) {
	if len(data) != energyLen {
		return Energy{}, fmt.Errorf("energy: invalid length %d", len(data))
	}
	return Energy{
		Status:         data[0],
		EnergyToday:    float64(binary.BigEndian.Uint16(data[1:3])) / 10,
		EnergyTotal:    float64(binary.BigEndian.Uint32(data[3:7])) / 10,
		PV1EnergyTotal: float64(binary.BigEndian.Uint32(data[7:11])) / 10,
		WorkTime:       binary.BigEndian.Uint32(data[11:15]),
	}, nil
}

// Decode parses a telemetry payload into loosely typed fields for storage and
// forwarding. A single status byte on either port is the offline heartbeat.
func Decode(port uint8, data []byte) (map[string]interface{}, error) {
	if (port == PortLiveData || port == PortEnergy) && len(data) == 1 {
		return map[string]interface{}{
			"status":      data[0],
			"status_text": StatusText(data[0]),
		}, nil
	}

	switch port {
	case PortLiveData:
		d, err := DecodeLiveData(data)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"status":         d.Status,
			"status_text":    StatusText(d.Status),
			"ac_power":       d.ACPower,
			"pv_power":       d.PVPower,
			"pv1_voltage":    d.PV1Voltage,
			"pv1_current":    d.PV1Current,
			"grid_voltage":   d.GridVoltage,
			"grid_frequency": d.GridFreq,
			"temperature":    d.Temperature,
		}, nil

	case PortEnergy:
		d, err := DecodeEnergy(data)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"status":           d.Status,
			"status_text":      StatusText(d.Status),
			"energy_today":     d.EnergyToday,
			"energy_total":     d.EnergyTotal,
			"pv1_energy_total": d.PV1EnergyTotal,
			"work_time":        d.WorkTime,
		}, nil

	default:
		return nil, fmt.Errorf("port %d: no payload codec", port)
	}
}
