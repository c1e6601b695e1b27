package lorawan

import (
	"encoding/binary"
	"fmt"
	"time"
)

// MACCommand represents a MAC command
type MACCommand struct {
	CID     byte
	Payload []byte
}

// MAC command identifiers
const (
	LinkCheckReq     byte = 0x02
	LinkCheckAns     byte = 0x02
	LinkADRReq       byte = 0x03
	LinkADRAns       byte = 0x03
	DutyCycleReq     byte = 0x04
	DutyCycleAns     byte = 0x04
	RXParamSetupReq  byte = 0x05
	RXParamSetupAns  byte = 0x05
	DevStatusReq     byte = 0x06
	DevStatusAns     byte = 0x06
	NewChannelReq    byte = 0x07
	NewChannelAns    byte = 0x07
	RXTimingSetupReq byte = 0x08
	RXTimingSetupAns byte = 0x08
	TxParamSetupReq  byte = 0x09
	TxParamSetupAns  byte = 0x09
	DlChannelReq     byte = 0x0A
	DlChannelAns     byte = 0x0A
	DeviceTimeReq    byte = 0x0D
	DeviceTimeAns    byte = 0x0D
)

// ParseMACCommands parses a MAC command sequence. uplink selects the
// direction-dependent payload lengths.
func ParseMACCommands(uplink bool, data []byte) ([]MACCommand, error) {
	var commands []MACCommand

	for i := 0; i < len(data); {
		cmd := MACCommand{
			CID: data[i],
		}
		i++

		payloadLen := getMACCommandPayloadLength(uplink, cmd.CID)
		if payloadLen < 0 {
			return nil, fmt.Errorf("unknown MAC command: %02x", cmd.CID)
		}

		if i+payloadLen > len(data) {
			return nil, fmt.Errorf("insufficient data for MAC command %02x", cmd.CID)
		}

		cmd.Payload = data[i : i+payloadLen]
		i += payloadLen

		commands = append(commands, cmd)
	}

	return commands, nil
}

// getMACCommandPayloadLength returns the payload length for a MAC command
func getMACCommandPayloadLength(uplink bool, cid byte) int {
	if uplink {
		switch cid {
		case LinkCheckReq:
			return 0
		case LinkADRAns:
			return 1
		case DutyCycleAns:
			return 0
		case RXParamSetupAns:
			return 1
		case DevStatusAns:
			return 2
		case NewChannelAns:
			return 1
		case RXTimingSetupAns:
			return 0
		case TxParamSetupAns:
			return 0
		case DlChannelAns:
			return 1
		case DeviceTimeReq:
			return 0
		default:
			return -1
		}
	}

	switch cid {
	case LinkCheckAns:
		return 2
	case LinkADRReq:
		return 4
	case DutyCycleReq:
		return 1
	case RXParamSetupReq:
		return 4
	case DevStatusReq:
		return 0
	case NewChannelReq:
		return 5
	case RXTimingSetupReq:
		return 1
	case TxParamSetupReq:
		return 1
	case DlChannelReq:
		return 4
	case DeviceTimeAns:
		return 5
	default:
		return -1
	}
}

// EncodeMACCommands encodes MAC commands to bytes
func EncodeMACCommands(commands []MACCommand) []byte {
	var data []byte

	for _, cmd := range commands {
		data = append(data, cmd.CID)
		data = append(data, cmd.Payload...)
	}

	return data
}

// gpsEpoch is 1980-01-06T00:00:00Z. DeviceTimeAns carries seconds since this
// epoch without leap seconds.
var gpsEpoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

// gpsLeapSeconds is the GPS-UTC offset in effect since 2017.
const gpsLeapSeconds = 18

// DeviceTimeAnswer is the decoded payload of a DeviceTimeAns command.
type DeviceTimeAnswer struct {
	Seconds   uint32 // seconds since GPS epoch
	Fractions uint8  // 1/256 second steps
}

// Time converts the answer to UTC wall time.
func (a DeviceTimeAnswer) Time() time.Time {
	frac := time.Duration(a.Fractions) * time.Second / 256
	return gpsEpoch.Add(time.Duration(int64(a.Seconds)-gpsLeapSeconds)*time.Second + frac)
}

// ParseDeviceTimeAns decodes the 5-byte DeviceTimeAns payload.
func ParseDeviceTimeAns(b []byte) (DeviceTimeAnswer, error) {
	if len(b) != 5 {
		return DeviceTimeAnswer{}, fmt.Errorf("invalid DeviceTimeAns length: %d", len(b))
	}
	return DeviceTimeAnswer{
		Seconds:   binary.LittleEndian.Uint32(b[0:4]),
		Fractions: b[4],
	}, nil
}

// EncodeDeviceTimeAns encodes wall time as a DeviceTimeAns payload.
func EncodeDeviceTimeAns(t time.Time) []byte {
	d := t.Sub(gpsEpoch) + gpsLeapSeconds*time.Second
	b := make([]byte, 5)
	binary.LittleEndian.PutUint32(b[0:4], uint32(d/time.Second))
	b[4] = uint8((d % time.Second) * 256 / time.Second)
	return b
}

// LinkCheckAnswer is the decoded payload of a LinkCheckAns command.
type LinkCheckAnswer struct {
	Margin uint8 // demodulation margin in dB
	GwCnt  uint8 // gateways that received the request
}

// ParseLinkCheckAns decodes the 2-byte LinkCheckAns payload.
func ParseLinkCheckAns(b []byte) (LinkCheckAnswer, error) {
	if len(b) != 2 {
		return LinkCheckAnswer{}, fmt.Errorf("invalid LinkCheckAns length: %d", len(b))
	}
	return LinkCheckAnswer{Margin: b[0], GwCnt: b[1]}, nil
}

// EncodeLinkCheckAns encodes a LinkCheckAns payload.
func EncodeLinkCheckAns(a LinkCheckAnswer) []byte {
	return []byte{a.Margin, a.GwCnt}
}
