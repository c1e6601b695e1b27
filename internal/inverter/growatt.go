// Package inverter polls a Growatt PV inverter over Modbus and turns the
// register snapshot into uplink payloads. The inverter is only powered while
// the sun is up, so a dead bus is an expected state, not a fault.
package inverter

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"

	"github.com/lorawan-node/pv-node/pkg/payload"
)

// Growatt input register map (protocol v1.05, read with function 0x04).
// Two-register values are high word first.
const (
	regStatus      = 0  // 0 waiting, 1 normal, 3 fault
	regPVPower     = 1  // 0.1 W, 2 regs
	regPV1Voltage  = 3  // 0.1 V
	regPV1Current  = 4  // 0.1 A
	regACPower     = 11 // 0.1 W, 2 regs
	regGridFreq    = 13 // 0.01 Hz
	regGridVoltage = 14 // 0.1 V
	regEnergyToday = 26 // 0.1 kWh, 2 regs
	regEnergyTotal = 28 // 0.1 kWh, 2 regs
	regWorkTime    = 30 // 0.5 s, 2 regs
	regTemperature = 32 // 0.1 degrees C

	regPV1EnergyTotal = 54 // 0.1 kWh, 2 regs

	liveBlockStart = 0
	liveBlockCount = 33
	pvBlockStart   = 54
	pvBlockCount   = 2
)

// Snapshot is one coherent reading of the inverter.
type Snapshot struct {
	Status         uint8
	ACPower        float64 // W
	PVPower        float64 // W
	PV1Voltage     float64 // V
	PV1Current     float64 // A
	GridVoltage    float64 // V
	GridFreq       float64 // Hz
	Temperature    float64 // degrees Celsius
	EnergyToday    float64 // kWh
	EnergyTotal    float64 // kWh
	PV1EnergyTotal float64 // kWh
	WorkTime       uint32  // seconds
	At             time.Time
}

// LiveData maps the snapshot onto the port 1 payload.
func (s Snapshot) LiveData() payload.LiveData {
	return payload.LiveData{
		Status:      s.Status,
		ACPower:     s.ACPower,
		PVPower:     s.PVPower,
		PV1Voltage:  s.PV1Voltage,
		PV1Current:  s.PV1Current,
		GridVoltage: s.GridVoltage,
		GridFreq:    s.GridFreq,
		Temperature: s.Temperature,
	}
}

// Energy maps the snapshot onto the port 2 payload.
func (s Snapshot) Energy() payload.Energy {
	return payload.Energy{
		Status:         s.Status,
		EnergyToday:    s.EnergyToday,
		EnergyTotal:    s.EnergyTotal,
		PV1EnergyTotal: s.PV1EnergyTotal,
		WorkTime:       s.WorkTime,
	}
}

// Reader polls the inverter. The file also provides the Modbus
// implementation; tests substitute their own.
type Reader interface {
	Poll(ctx context.Context) (Snapshot, error)
}

// Config selects and configures the Modbus link.
type Config struct {
	Transport string // rtu | tcp
	Port      string // serial device for rtu
	Baud      int
	Address   string // host:port for tcp
	UnitID    uint8
	Timeout   time.Duration
}

// Client reads the inverter over Modbus RTU or TCP.
type Client struct {
	mb     modbus.Client
	closer interface{ Close() error }
}

// NewClient builds the Modbus client for the configured transport. The
// connection is opened lazily on the first poll.
func NewClient(cfg Config) (*Client, error) {
	switch cfg.Transport {
	case "rtu":
		h := modbus.NewRTUClientHandler(cfg.Port)
		h.BaudRate = cfg.Baud
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.SlaveId = cfg.UnitID
		h.Timeout = cfg.Timeout
		return &Client{mb: modbus.NewClient(h), closer: h}, nil

	case "tcp":
		h := modbus.NewTCPClientHandler(cfg.Address)
		h.SlaveId = cfg.UnitID
		h.Timeout = cfg.Timeout
		return &Client{mb: modbus.NewClient(h), closer: h}, nil

	default:
		return nil, fmt.Errorf("unknown inverter transport %q", cfg.Transport)
	}
}

// Poll reads both register blocks and decodes them. Timeouts are governed by
// the handler's configured timeout.
func (c *Client) Poll(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	live, err := c.mb.ReadInputRegisters(liveBlockStart, liveBlockCount)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read live block: %w", err)
	}
	pv, err := c.mb.ReadInputRegisters(pvBlockStart, pvBlockCount)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read pv energy block: %w", err)
	}

	snap, err := decodeSnapshot(live, pv)
	if err != nil {
		return Snapshot{}, err
	}
	snap.At = time.Now()
	return snap, nil
}

// Close releases the Modbus connection.
func (c *Client) Close() error {
	return c.closer.Close()
}

func decodeSnapshot(live, pv []byte) (Snapshot, error) {
	if len(live) != liveBlockCount*2 {
		return Snapshot{}, fmt.Errorf("live block: got %d bytes, want %d", len(live), liveBlockCount*2)
	}
	if len(pv) != pvBlockCount*2 {
		return Snapshot{}, fmt.Errorf("pv energy block: got %d bytes, want %d", len(pv), pvBlockCount*2)
	}

	return Snapshot{
		Status:         uint8(regU16(live, liveBlockStart, regStatus)),
		PVPower:        float64(regU32(live, liveBlockStart, regPVPower)) / 10,
		PV1Voltage:     float64(regU16(live, liveBlockStart, regPV1Voltage)) / 10,
		PV1Current:     float64(regU16(live, liveBlockStart, regPV1Current)) / 10,
		ACPower:        float64(regU32(live, liveBlockStart, regACPower)) / 10,
		GridFreq:       float64(regU16(live, liveBlockStart, regGridFreq)) / 100,
		GridVoltage:    float64(regU16(live, liveBlockStart, regGridVoltage)) / 10,
		EnergyToday:    float64(regU32(live, liveBlockStart, regEnergyToday)) / 10,
		EnergyTotal:    float64(regU32(live, liveBlockStart, regEnergyTotal)) / 10,
		WorkTime:       regU32(live, liveBlockStart, regWorkTime) / 2,
		Temperature:    float64(int16(regU16(live, liveBlockStart, regTemperature))) / 10,
		PV1EnergyTotal: float64(regU32(pv, pvBlockStart, regPV1EnergyTotal)) / 10,
	}, nil
}

func regU16(block []byte, base, reg int) uint16 {
	off := (reg - base) * 2
	return binary.BigEndian.Uint16(block[off : off+2])
}

func regU32(block []byte, base, reg int) uint32 {
	off := (reg - base) * 2
	return binary.BigEndian.Uint32(block[off : off+4])
}
