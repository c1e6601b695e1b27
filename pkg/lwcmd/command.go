// Package lwcmd implements the downlink command set shared by the node and the
// console. The LoRaWAN fPort doubles as the command identifier; responses are
// uplinked on the same port.
package lwcmd

import (
	"encoding/binary"
	"fmt"
)

// Command ports. A port is the command identifier on the wire.
const (
	PortGetDateTime          uint8 = 0x20
	PortSetDateTime          uint8 = 0x21
	PortSetSleepInterval     uint8 = 0x31
	PortSetSleepIntervalLong uint8 = 0x33
	PortSetStatusInterval    uint8 = 0x35
	PortGetConfig            uint8 = 0x36
	PortGetStatus            uint8 = 0x38
)

// TimeSource identifies where the node clock was last set from.
type TimeSource uint8

const (
	TimeSourceGPS      TimeSource = 0
	TimeSourceRTC      TimeSource = 1
	TimeSourceLoRa     TimeSource = 2
	TimeSourceUnsynced TimeSource = 3
	TimeSourceSet      TimeSource = 4
)

// String returns a human-readable source name
func (s TimeSource) String() string {
	switch s {
	case TimeSourceGPS:
		return "GPS"
	case TimeSourceRTC:
		return "RTC"
	case TimeSourceLoRa:
		return "LORA"
	case TimeSourceUnsynced:
		return "unsynced"
	case TimeSourceSet:
		return "set"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ErrUnknownCommand is returned when a downlink arrives on a port outside the
// command set.
var ErrUnknownCommand = fmt.Errorf("unknown command port")

// Command is a decoded downlink command. Concrete types carry the parameters.
type Command interface {
	// Port returns the wire port the command travels on.
	Port() uint8
	// Encode returns the downlink request payload.
	Encode() []byte
}

// GetDateTime requests the node clock and its source.
type GetDateTime struct{}

func (GetDateTime) Port() uint8    { return PortGetDateTime }
func (GetDateTime) Encode() []byte { return []byte{0x00} }

// SetDateTime sets the node clock to a unix epoch. It is the only command
// without a response.
type SetDateTime struct {
	Epoch uint32
}

func (SetDateTime) Port() uint8 { return PortSetDateTime }

func (c SetDateTime) Encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, c.Epoch)
	return b
}

// SetSleepInterval sets the normal sleep interval in seconds.
type SetSleepInterval struct {
	Seconds uint16
}

func (SetSleepInterval) Port() uint8 { return PortSetSleepInterval }

func (c SetSleepInterval) Encode() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, c.Seconds)
	return b
}

// SetSleepIntervalLong sets the weak-battery sleep interval in seconds.
type SetSleepIntervalLong struct {
	Seconds uint16
}

func (SetSleepIntervalLong) Port() uint8 { return PortSetSleepIntervalLong }

func (c SetSleepIntervalLong) Encode() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, c.Seconds)
	return b
}

// SetStatusInterval sets the node-status uplink cadence in frames. Zero
// disables the periodic status uplink.
type SetStatusInterval struct {
	Frames uint8
}

func (SetStatusInterval) Port() uint8      { return PortSetStatusInterval }
func (c SetStatusInterval) Encode() []byte { return []byte{c.Frames} }

// GetConfig requests the three durable preferences.
type GetConfig struct{}

func (GetConfig) Port() uint8    { return PortGetConfig }
func (GetConfig) Encode() []byte { return []byte{0x00} }

// GetStatus requests battery voltage and status flags.
type GetStatus struct{}

func (GetStatus) Port() uint8    { return PortGetStatus }
func (GetStatus) Encode() []byte { return []byte{0x00} }

// Decode parses a downlink into a command. An unrecognised port returns
// ErrUnknownCommand; a recognised port with a malformed payload returns a
// descriptive error.
func Decode(port uint8, payload []byte) (Command, error) {
	switch port {
	case PortGetDateTime:
		if len(payload) != 1 {
			return nil, fmt.Errorf("get-datetime: invalid payload length %d", len(payload))
		}
		return GetDateTime{}, nil

	case PortSetDateTime:
		if len(payload) != 4 {
			return nil, fmt.Errorf("set-datetime: invalid payload length %d", len(payload))
		}
		return SetDateTime{Epoch: binary.BigEndian.Uint32(payload)}, nil

	case PortSetSleepInterval:
		if len(payload) != 2 {
			return nil, fmt.Errorf("set-sleep-interval: invalid payload length %d", len(payload))
		}
		return SetSleepInterval{Seconds: binary.BigEndian.Uint16(payload)}, nil

	case PortSetSleepIntervalLong:
		if len(payload) != 2 {
			return nil, fmt.Errorf("set-sleep-interval-long: invalid payload length %d", len(payload))
		}
		return SetSleepIntervalLong{Seconds: binary.BigEndian.Uint16(payload)}, nil

	case PortSetStatusInterval:
		if len(payload) != 1 {
			return nil, fmt.Errorf("set-status-interval: invalid payload length %d", len(payload))
		}
		return SetStatusInterval{Frames: payload[0]}, nil

	case PortGetConfig:
		if len(payload) != 1 {
			return nil, fmt.Errorf("get-config: invalid payload length %d", len(payload))
		}
		return GetConfig{}, nil

	case PortGetStatus:
		if len(payload) != 1 {
			return nil, fmt.Errorf("get-status: invalid payload length %d", len(payload))
		}
		return GetStatus{}, nil

	default:
		return nil, fmt.Errorf("port %d: %w", port, ErrUnknownCommand)
	}
}
