package payload

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestLiveDataRoundTrip(t *testing.T) {
	in := LiveData{
		Status:      StatusNormal,
		ACPower:     129.9,
		PVPower:     142.5,
		PV1Voltage:  38.2,
		PV1Current:  3.7,
		GridVoltage: 230.1,
		GridFreq:    49.98,
		Temperature: 41.25,
	}

	var e Encoder
	in.EncodeTo(&e)
	assert.Equal(t, e.Len(), 15)

	out, err := DecodeLiveData(e.Bytes())
	assert.NilError(t, err)
	assert.DeepEqual(t, out, in)
}

func TestEnergyRoundTrip(t *testing.T) {
	in := Energy{
		Status:         StatusNormal,
		EnergyToday:    4.2,
		EnergyTotal:    1534.8,
		PV1EnergyTotal: 1602.3,
		WorkTime:       86400 * 120,
	}

	var e Encoder
	in.EncodeTo(&e)
	assert.Equal(t, e.Len(), 15)

	out, err := DecodeEnergy(e.Bytes())
	assert.NilError(t, err)
	assert.DeepEqual(t, out, in)
}

func TestEncoderClampsOutOfRange(t *testing.T) {
	in := LiveData{Status: StatusNormal, ACPower: 99999, Temperature: -12.5}

	var e Encoder
	in.EncodeTo(&e)

	out, err := DecodeLiveData(e.Bytes())
	assert.NilError(t, err)
	assert.Equal(t, out.ACPower, 6553.5)
	assert.Equal(t, out.Temperature, -12.5)
}

func TestDecodeFields(t *testing.T) {
	var e Encoder
	LiveData{Status: StatusNormal, ACPower: 100}.EncodeTo(&e)

	fields, err := Decode(PortLiveData, e.Bytes())
	assert.NilError(t, err)
	assert.Equal(t, fields["status_text"], "normal")
	assert.Equal(t, fields["ac_power"], 100.0)
}

func TestDecodeOfflineMarker(t *testing.T) {
	fields, err := Decode(PortLiveData, []byte{StatusOffline})
	assert.NilError(t, err)
	assert.Equal(t, fields["status_text"], "offline")

	fields, err = Decode(PortEnergy, []byte{StatusOffline})
	assert.NilError(t, err)
	assert.Equal(t, fields["status"], StatusOffline)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(PortLiveData, []byte{0x01, 0x02})
	assert.ErrorContains(t, err, "invalid length")

	_, err = Decode(0x42, []byte{0x00, 0x01})
	assert.ErrorContains(t, err, "no payload codec")
}

func TestEncoderReset(t *testing.T) {
	var e Encoder
	e.Uint32(0xdeadbeef)
	assert.Equal(t, e.Len(), 4)

	e.Reset()
	assert.Equal(t, e.Len(), 0)

	e.Uint16(0x0102)
	assert.DeepEqual(t, e.Bytes(), []byte{0x01, 0x02})
}
