package lorawan

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestParseMACCommandsDownlink(t *testing.T) {
	data := []byte{DeviceTimeAns, 0x00, 0x28, 0x6f, 0x51, 0x40, LinkCheckAns, 0x14, 0x02}

	cmds, err := ParseMACCommands(false, data)
	assert.NilError(t, err)
	assert.Equal(t, len(cmds), 2)
	assert.Equal(t, cmds[0].CID, DeviceTimeAns)
	assert.Equal(t, len(cmds[0].Payload), 5)
	assert.Equal(t, cmds[1].CID, LinkCheckAns)
	assert.DeepEqual(t, cmds[1].Payload, []byte{0x14, 0x02})

	assert.DeepEqual(t, EncodeMACCommands(cmds), data)
}

func TestParseMACCommandsUnknown(t *testing.T) {
	_, err := ParseMACCommands(false, []byte{0xFF})
	assert.ErrorContains(t, err, "unknown MAC command")
}

func TestParseMACCommandsTruncated(t *testing.T) {
	_, err := ParseMACCommands(false, []byte{DeviceTimeAns, 0x01, 0x02})
	assert.ErrorContains(t, err, "insufficient data")
}

func TestDeviceTimeAnswerTime(t *testing.T) {
	a := DeviceTimeAnswer{Seconds: 1400000000, Fractions: 128}

	// 1980-01-06 is unix 315964800; subtract the 18 GPS leap seconds.
	want := time.Unix(315964800+1400000000-18, 500000000).UTC()
	assert.Assert(t, a.Time().Equal(want), "got %v want %v", a.Time(), want)
}

func TestDeviceTimeAnsRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x28, 0x6f, 0x51, 0x40}

	a, err := ParseDeviceTimeAns(raw)
	assert.NilError(t, err)
	assert.DeepEqual(t, EncodeDeviceTimeAns(a.Time()), raw)

	_, err = ParseDeviceTimeAns([]byte{0x01})
	assert.ErrorContains(t, err, "invalid DeviceTimeAns length")
}

func TestLinkCheckAnsRoundTrip(t *testing.T) {
	a, err := ParseLinkCheckAns([]byte{0x0a, 0x03})
	assert.NilError(t, err)
	assert.Equal(t, a.Margin, uint8(10))
	assert.Equal(t, a.GwCnt, uint8(3))
	assert.DeepEqual(t, EncodeLinkCheckAns(a), []byte{0x0a, 0x03})

	_, err = ParseLinkCheckAns(nil)
	assert.ErrorContains(t, err, "invalid LinkCheckAns length")
}
