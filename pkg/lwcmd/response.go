package lwcmd

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Status flag bits carried in the status response and the periodic node-status
// uplink.
const (
	StatusFlagLongSleep uint8 = 1 << 0
)

// Config mirrors the three durable preferences for the get-config response.
type Config struct {
	SleepInterval     uint16
	SleepIntervalLong uint16
	StatusInterval    uint8
}

// Status carries the get-status response fields.
type Status struct {
	BatteryMilliVolts uint16
	LongSleep         bool
}

// EncodeDateTime encodes the get-datetime response: epoch (big endian) plus
// the time source code.
func EncodeDateTime(epoch uint32, src TimeSource) []byte {
	b := make([]byte, 5)
	binary.BigEndian.PutUint32(b[0:4], epoch)
	b[4] = uint8(src)
	return b
}

// EncodeSeconds encodes an applied interval for the set-sleep-interval and
// set-sleep-interval-long responses.
func EncodeSeconds(sec uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, sec)
	return b
}

// EncodeFrames encodes the applied cadence for the set-status-interval
// response.
func EncodeFrames(n uint8) []byte {
	return []byte{n}
}

// EncodeConfig encodes the get-config response.
func EncodeConfig(c Config) []byte {
	b := make([]byte, 5)
	binary.BigEndian.PutUint16(b[0:2], c.SleepInterval)
	binary.BigEndian.PutUint16(b[2:4], c.SleepIntervalLong)
	b[4] = c.StatusInterval
	return b
}

// EncodeStatus encodes the get-status response and the periodic node-status
// uplink payload.
func EncodeStatus(s Status) []byte {
	b := make([]byte, 3)
	binary.BigEndian.PutUint16(b[0:2], s.BatteryMilliVolts)
	if s.LongSleep {
		b[2] |= StatusFlagLongSleep
	}
	return b
}

// DecodeStatus parses a get-status response or node-status uplink payload.
func DecodeStatus(payload []byte) (Status, error) {
	if len(payload) != 3 {
		return Status{}, fmt.Errorf("status: invalid length %d", len(payload))
	}
	return Status{
		BatteryMilliVolts: binary.BigEndian.Uint16(payload[0:2]),
		LongSleep:         payload[2]&StatusFlagLongSleep != 0,
	}, nil
}

// DecodeResponse parses an uplinked command response into loosely typed
// fields, keyed the way the console stores decoded objects.
func DecodeResponse(port uint8, payload []byte) (map[string]interface{}, error) {
	switch port {
	case PortGetDateTime:
		if len(payload) != 5 {
			return nil, fmt.Errorf("get-datetime response: invalid length %d", len(payload))
		}
		epoch := binary.BigEndian.Uint32(payload[0:4])
		return map[string]interface{}{
			"epoch":       epoch,
			"time":        time.Unix(int64(epoch), 0).UTC().Format(time.RFC3339),
			"time_source": TimeSource(payload[4]).String(),
		}, nil

	case PortSetSleepInterval, PortSetSleepIntervalLong:
		if len(payload) != 2 {
			return nil, fmt.Errorf("sleep-interval response: invalid length %d", len(payload))
		}
		return map[string]interface{}{
			"seconds": binary.BigEndian.Uint16(payload),
		}, nil

	case PortSetStatusInterval:
		if len(payload) != 1 {
			return nil, fmt.Errorf("status-interval response: invalid length %d", len(payload))
		}
		return map[string]interface{}{
			"frames": payload[0],
		}, nil

	case PortGetConfig:
		if len(payload) != 5 {
			return nil, fmt.Errorf("get-config response: invalid length %d", len(payload))
		}
		return map[string]interface{}{
			"sleep_interval":      binary.BigEndian.Uint16(payload[0:2]),
			"sleep_interval_long": binary.BigEndian.Uint16(payload[2:4]),
			"lw_status_interval":  payload[4],
		}, nil

	case PortGetStatus:
		s, err := DecodeStatus(payload)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"battery_mv": s.BatteryMilliVolts,
			"long_sleep": s.LongSleep,
		}, nil

	default:
		return nil, fmt.Errorf("port %d: %w", port, ErrUnknownCommand)
	}
}
