package lorawan

import (
	"encoding/json"
	"testing"

	"gotest.tools/v3/assert"
	"gopkg.in/yaml.v3"
)

func TestParseEUI64(t *testing.T) {
	e, err := ParseEUI64("70b3d57ed0001234")
	assert.NilError(t, err)
	assert.Equal(t, e.String(), "70b3d57ed0001234")
	assert.Assert(t, !e.IsZero())

	_, err = ParseEUI64("70b3d57e")
	assert.ErrorContains(t, err, "invalid EUI64 length")

	_, err = ParseEUI64("not-hex")
	assert.Assert(t, err != nil)
}

func TestEUI64JSONRoundTrip(t *testing.T) {
	e, err := ParseEUI64("0004a30b001c0530")
	assert.NilError(t, err)

	b, err := json.Marshal(e)
	assert.NilError(t, err)
	assert.Equal(t, string(b), `"0004a30b001c0530"`)

	var back EUI64
	assert.NilError(t, json.Unmarshal(b, &back))
	assert.Equal(t, back, e)
}

func TestEUI64YAML(t *testing.T) {
	var cfg struct {
		DevEUI EUI64 `yaml:"dev_eui"`
	}
	assert.NilError(t, yaml.Unmarshal([]byte("dev_eui: 70b3d57ed0001234\n"), &cfg))
	assert.Equal(t, cfg.DevEUI.String(), "70b3d57ed0001234")

	err := yaml.Unmarshal([]byte("dev_eui: 1234\n"), &cfg)
	assert.ErrorContains(t, err, "invalid EUI64 length")
}

func TestEUI64Scan(t *testing.T) {
	var e EUI64
	assert.NilError(t, e.Scan([]byte{0x70, 0xb3, 0xd5, 0x7e, 0xd0, 0x00, 0x12, 0x34}))
	assert.Equal(t, e.String(), "70b3d57ed0001234")

	assert.ErrorContains(t, e.Scan("70b3d57ed0001234"), "cannot scan")
	assert.ErrorContains(t, e.Scan([]byte{0x01}), "invalid EUI64 length")
}

func TestParseDevAddr(t *testing.T) {
	d, err := ParseDevAddr("26011f42")
	assert.NilError(t, err)
	assert.Equal(t, d.String(), "26011f42")

	_, err = ParseDevAddr("26011f4200")
	assert.ErrorContains(t, err, "invalid DevAddr length")
}

func TestParseAES128Key(t *testing.T) {
	k, err := ParseAES128Key("000102030405060708090a0b0c0d0e0f")
	assert.NilError(t, err)
	assert.Equal(t, k.String(), "000102030405060708090a0b0c0d0e0f")
	assert.Assert(t, !k.IsZero())

	_, err = ParseAES128Key("0001")
	assert.ErrorContains(t, err, "invalid AES128Key length")
}
