package modem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"gotest.tools/v3/assert"

	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

func natsTestConfig() NATSConfig {
	devEUI, _ := lorawan.ParseEUI64("00a1b2c3d4e5f607")
	joinEUI, _ := lorawan.ParseEUI64("70b3d57ed0000001")
	return NATSConfig{
		DevEUI:        devEUI,
		JoinEUI:       joinEUI,
		RXWindow:      time.Second,
		MaxPayloadLen: 51,
	}
}

func TestNATSModemResumeFromBlob(t *testing.T) {
	devAddr, _ := lorawan.ParseDevAddr("26011f42")

	m := newNATSModem(nil, natsTestConfig())
	m.sess = natsSession{DevAddr: devAddr, FCntUp: 17, FCntDown: 3}

	blob := m.SessionBuffer()
	assert.Assert(t, blob != nil)

	m2 := newNATSModem(nil, natsTestConfig())
	assert.NilError(t, m2.RestoreSession(blob))

	// a restored session activates without touching the wire
	res, err := m2.Activate(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, res.State, ActivationResumed)
	assert.Equal(t, res.DevAddr, devAddr)
	assert.Equal(t, m2.FrameCountUp(), uint32(17))
}

func TestNATSModemSessionBufferEmptyBeforeJoin(t *testing.T) {
	m := newNATSModem(nil, natsTestConfig())
	assert.Assert(t, m.SessionBuffer() == nil)
}

func TestNATSModemNoncesRoundTrip(t *testing.T) {
	m := newNATSModem(nil, natsTestConfig())
	m.nonces = natsNonces{DevNonce: 41}

	blob := m.NoncesBuffer()
	assert.Assert(t, blob != nil)

	m2 := newNATSModem(nil, natsTestConfig())
	assert.NilError(t, m2.RestoreNonces(blob))
	assert.Equal(t, m2.nonces.DevNonce, uint16(41))
}

func TestNATSModemRestoreCorruptBlobs(t *testing.T) {
	m := newNATSModem(nil, natsTestConfig())
	assert.ErrorContains(t, m.RestoreSession([]byte("{")), "decode session blob")
	assert.ErrorContains(t, m.RestoreNonces([]byte("{")), "decode nonces blob")
}

func TestNATSModemSendBeforeActivate(t *testing.T) {
	m := newNATSModem(nil, natsTestConfig())
	_, err := m.SendReceive(context.Background(), Uplink{Port: 1})
	assert.ErrorContains(t, err, "session not active")
}

func TestNATSModemSubjects(t *testing.T) {
	m := newNATSModem(nil, natsTestConfig())
	assert.Equal(t, m.subject("up"), "node.00a1b2c3d4e5f607.up")
	assert.Equal(t, m.subject("join"), "node.00a1b2c3d4e5f607.join")
}

func TestNATSModemApplyMACDeviceTime(t *testing.T) {
	networkTime := time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC)
	raw := lorawan.EncodeMACCommands([]lorawan.MACCommand{
		{CID: lorawan.DeviceTimeAns, Payload: lorawan.EncodeDeviceTimeAns(networkTime)},
	})

	m := newNATSModem(nil, natsTestConfig())
	var res ExchangeResult
	m.applyMAC(raw, &res)

	assert.Assert(t, res.DeviceTime != nil)
	assert.Assert(t, res.DeviceTime.Equal(networkTime))
}

func TestNATSModemApplyMACLinkCheck(t *testing.T) {
	raw := lorawan.EncodeMACCommands([]lorawan.MACCommand{
		{CID: lorawan.LinkCheckAns, Payload: lorawan.EncodeLinkCheckAns(lorawan.LinkCheckAnswer{Margin: 20, GwCnt: 3})},
	})

	m := newNATSModem(nil, natsTestConfig())
	var res ExchangeResult
	m.applyMAC(raw, &res)

	assert.Assert(t, res.LinkCheck != nil)
	assert.Equal(t, res.LinkCheck.Margin, uint8(20))
	assert.Equal(t, res.LinkCheck.GwCnt, uint8(3))
}

func TestNATSModemApplyMACGarbage(t *testing.T) {
	m := newNATSModem(nil, natsTestConfig())
	var res ExchangeResult
	m.applyMAC([]byte{0xff, 0x01}, &res)

	assert.Assert(t, res.DeviceTime == nil)
	assert.Assert(t, res.LinkCheck == nil)
}

func TestWindowClosedEmpty(t *testing.T) {
	assert.Assert(t, windowClosedEmpty(context.DeadlineExceeded))
	assert.Assert(t, windowClosedEmpty(nats.ErrTimeout))
	assert.Assert(t, windowClosedEmpty(nats.ErrNoResponders))
	assert.Assert(t, !windowClosedEmpty(errors.New("connection lost")))
}
