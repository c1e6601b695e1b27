package lwcmd

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	commands := []Command{
		GetDateTime{},
		SetDateTime{Epoch: 1735689600},
		SetSleepInterval{Seconds: 600},
		SetSleepIntervalLong{Seconds: 3600},
		SetStatusInterval{Frames: 6},
		GetConfig{},
		GetStatus{},
	}

	for _, want := range commands {
		got, err := Decode(want.Port(), want.Encode())
		assert.NilError(t, err, "port 0x%02x", want.Port())
		assert.DeepEqual(t, got, want)
	}
}

func TestSetSleepIntervalWireFormat(t *testing.T) {
	assert.DeepEqual(t, SetSleepInterval{Seconds: 600}.Encode(), []byte{0x02, 0x58})

	cmd, err := Decode(PortSetSleepInterval, []byte{0x02, 0x58})
	assert.NilError(t, err)
	assert.Equal(t, cmd.(SetSleepInterval).Seconds, uint16(600))
}

func TestSetDateTimeWireFormat(t *testing.T) {
	cmd, err := Decode(PortSetDateTime, []byte{0x67, 0x74, 0x2e, 0x80})
	assert.NilError(t, err)
	assert.Equal(t, cmd.(SetDateTime).Epoch, uint32(0x67742e80))
}

func TestDecodeUnknownPort(t *testing.T) {
	_, err := Decode(0x42, []byte{0x00})
	assert.Assert(t, errors.Is(err, ErrUnknownCommand))
}

func TestDecodeBadLengths(t *testing.T) {
	cases := []struct {
		port    uint8
		payload []byte
	}{
		{PortGetDateTime, nil},
		{PortSetDateTime, []byte{0x01, 0x02}},
		{PortSetSleepInterval, []byte{0x01}},
		{PortSetSleepIntervalLong, []byte{0x01, 0x02, 0x03}},
		{PortSetStatusInterval, []byte{}},
		{PortGetConfig, []byte{0x00, 0x00}},
		{PortGetStatus, nil},
	}

	for _, c := range cases {
		_, err := Decode(c.port, c.payload)
		assert.ErrorContains(t, err, "invalid payload length", "port 0x%02x", c.port)
	}
}

func TestFromJSON(t *testing.T) {
	cmd, err := FromJSON([]byte(`{"cmd":"set-sleep-interval","seconds":300}`))
	assert.NilError(t, err)
	assert.DeepEqual(t, cmd, Command(SetSleepInterval{Seconds: 300}))
	assert.Equal(t, Name(cmd), NameSetSleepInterval)

	cmd, err = FromJSON([]byte(`{"cmd":"set-datetime","epoch":1735689600}`))
	assert.NilError(t, err)
	assert.Equal(t, cmd.(SetDateTime).Epoch, uint32(1735689600))

	cmd, err = FromJSON([]byte(`{"cmd":"get-status"}`))
	assert.NilError(t, err)
	assert.Equal(t, cmd.Port(), PortGetStatus)
}

func TestFromJSONMissingParam(t *testing.T) {
	_, err := FromJSON([]byte(`{"cmd":"set-sleep-interval"}`))
	assert.ErrorContains(t, err, "missing seconds")

	_, err = FromJSON([]byte(`{"cmd":"set-datetime"}`))
	assert.ErrorContains(t, err, "missing epoch")

	_, err = FromJSON([]byte(`{"cmd":"reboot"}`))
	assert.Assert(t, errors.Is(err, ErrUnknownCommand))
}
