package lwcmd

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestEncodeDateTime(t *testing.T) {
	b := EncodeDateTime(0x67742e80, TimeSourceRTC)
	assert.DeepEqual(t, b, []byte{0x67, 0x74, 0x2e, 0x80, 0x01})

	fields, err := DecodeResponse(PortGetDateTime, b)
	assert.NilError(t, err)
	assert.Equal(t, fields["epoch"], uint32(0x67742e80))
	assert.Equal(t, fields["time_source"], "RTC")
}

func TestEncodeConfig(t *testing.T) {
	b := EncodeConfig(Config{SleepInterval: 360, SleepIntervalLong: 900, StatusInterval: 6})
	assert.DeepEqual(t, b, []byte{0x01, 0x68, 0x03, 0x84, 0x06})

	fields, err := DecodeResponse(PortGetConfig, b)
	assert.NilError(t, err)
	assert.Equal(t, fields["sleep_interval"], uint16(360))
	assert.Equal(t, fields["sleep_interval_long"], uint16(900))
	assert.Equal(t, fields["lw_status_interval"], uint8(6))
}

func TestEncodeStatus(t *testing.T) {
	b := EncodeStatus(Status{BatteryMilliVolts: 3700, LongSleep: false})
	assert.DeepEqual(t, b, []byte{0x0e, 0x74, 0x00})

	b = EncodeStatus(Status{BatteryMilliVolts: 3400, LongSleep: true})
	assert.DeepEqual(t, b, []byte{0x0d, 0x48, 0x01})

	fields, err := DecodeResponse(PortGetStatus, b)
	assert.NilError(t, err)
	assert.Equal(t, fields["battery_mv"], uint16(3400))
	assert.Equal(t, fields["long_sleep"], true)
}

func TestEncodeSeconds(t *testing.T) {
	assert.DeepEqual(t, EncodeSeconds(300), []byte{0x01, 0x2c})

	fields, err := DecodeResponse(PortSetSleepInterval, EncodeSeconds(300))
	assert.NilError(t, err)
	assert.Equal(t, fields["seconds"], uint16(300))
}

func TestDecodeResponseErrors(t *testing.T) {
	_, err := DecodeResponse(PortGetConfig, []byte{0x01})
	assert.ErrorContains(t, err, "invalid length")

	_, err = DecodeResponse(PortSetDateTime, []byte{0x00})
	assert.ErrorContains(t, err, "unknown command")
}
