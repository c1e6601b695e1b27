package models

import (
	"time"

	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// UplinkFrameMessage is the frame a node publishes on node.<devEUI>.up. The
// bench transport carries the fields a network server would recover from the
// radio frame, plus the MAC requests piggybacked on it.
type UplinkFrameMessage struct {
	DevEUI            lorawan.EUI64   `json:"dev_eui"`
	DevAddr           lorawan.DevAddr `json:"dev_addr"`
	FCnt              uint32          `json:"f_cnt"`
	FPort             uint8           `json:"f_port"`
	Confirmed         bool            `json:"confirmed"`
	Payload           []byte          `json:"payload"`
	RequestDeviceTime bool            `json:"request_device_time,omitempty"`
	RequestLinkCheck  bool            `json:"request_link_check,omitempty"`
	SentAt            time.Time       `json:"sent_at"`

	// Radio metadata, filled in by bench simulators. The node itself cannot
	// know the RSSI of its own uplink and leaves these zero.
	RSSI int     `json:"rssi,omitempty"`
	SNR  float64 `json:"snr,omitempty"`
}

// DownlinkFrameMessage answers an uplink inside its receive window. A zero
// FPort with empty payload is a pure MAC or ack-only downlink.
type DownlinkFrameMessage struct {
	FPort   uint8  `json:"f_port,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	Ack     bool   `json:"ack"`
	// MACCommands holds raw MAC command bytes, parsed with the usual
	// CID-walks-payload layout.
	MACCommands []byte `json:"mac_commands,omitempty"`
}

// JoinRequestMessage asks the console to activate a device session.
type JoinRequestMessage struct {
	DevEUI   lorawan.EUI64 `json:"dev_eui"`
	JoinEUI  lorawan.EUI64 `json:"join_eui"`
	DevNonce uint16        `json:"dev_nonce"`
	SentAt   time.Time     `json:"sent_at"`
}

// JoinAcceptMessage answers a join request with the assigned address.
type JoinAcceptMessage struct {
	DevAddr lorawan.DevAddr `json:"dev_addr"`
}
