// Package modem wraps the LoRaWAN transport behind a narrow session
// interface. The MAC layer itself lives in the modem (or the bench bridge);
// the node only sees activation, one send/receive per exchange, and opaque
// state buffers it must persist.
package modem

import (
	"context"
	"errors"
	"time"

	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// ErrJoinFailed marks an activation that did not produce a session.
var ErrJoinFailed = errors.New("join failed")

// ActivationState describes how a session came up.
type ActivationState int

const (
	// ActivationNew means a fresh over-the-air join happened.
	ActivationNew ActivationState = iota
	// ActivationResumed means a stored session was restored without joining.
	ActivationResumed
)

// String returns a log-friendly name
func (s ActivationState) String() string {
	switch s {
	case ActivationNew:
		return "new"
	case ActivationResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// ActivationResult reports a successful activation.
type ActivationResult struct {
	State   ActivationState
	DevAddr lorawan.DevAddr
}

// Uplink is one application uplink and its piggybacked MAC requests.
type Uplink struct {
	Port              uint8
	Payload           []byte
	Confirmed         bool
	RequestLinkCheck  bool
	RequestDeviceTime bool
}

// Downlink is an application downlink received in a receive window.
type Downlink struct {
	Port    uint8
	Payload []byte
}

// ExchangeResult carries everything one send/receive produced. A nil Downlink
// means the receive window closed empty, which is not an error.
type ExchangeResult struct {
	FrameCountUp uint32 // uplink counter after the send
	Acked        bool
	Downlink     *Downlink
	DeviceTime   *time.Time
	LinkCheck    *lorawan.LinkCheckAnswer
	RSSI         int
	SNR          float64
}

// Session is the transport contract the wake cycle drives. Implementations
// are not safe for concurrent use; the episode runs single threaded.
type Session interface {
	// Activate brings the session up, joining over the air unless restored
	// state allows resuming.
	Activate(ctx context.Context) (ActivationResult, error)

	// SendReceive performs exactly one uplink exchange including its receive
	// windows.
	SendReceive(ctx context.Context, up Uplink) (*ExchangeResult, error)

	// SessionBuffer returns the opaque session state to persist, nil when
	// there is none yet.
	SessionBuffer() []byte
	// RestoreSession loads persisted session state before activation.
	RestoreSession(b []byte) error

	// NoncesBuffer returns the opaque join-nonce state to persist.
	NoncesBuffer() []byte
	// RestoreNonces loads persisted join-nonce state before activation.
	RestoreNonces(b []byte) error

	// FrameCountUp returns the current uplink frame counter.
	FrameCountUp() uint32
	// MaxPayloadLen returns the application payload limit in bytes, 0 when
	// unknown.
	MaxPayloadLen() int

	Close() error
}
