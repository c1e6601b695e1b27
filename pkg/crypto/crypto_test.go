package crypto

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	assert.NilError(t, err)
	assert.Assert(t, hash != "hunter2")

	assert.Assert(t, VerifyPassword("hunter2", hash))
	assert.Assert(t, !VerifyPassword("wrong", hash))
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := RandomBytes(32)
	assert.NilError(t, err)

	plaintext := []byte(`{"dev_addr":"26011f42","f_cnt_up":17}`)

	sealed, err := Seal(key, plaintext)
	assert.NilError(t, err)
	assert.Assert(t, len(sealed) > len(plaintext))

	back, err := Open(key, sealed)
	assert.NilError(t, err)
	assert.DeepEqual(t, back, plaintext)
}

func TestOpenRejectsBadInput(t *testing.T) {
	key, err := RandomBytes(32)
	assert.NilError(t, err)

	_, err = Open(key, []byte{0x01, 0x02})
	assert.ErrorContains(t, err, "sealed blob too short")

	other, err := RandomBytes(32)
	assert.NilError(t, err)

	sealed, err := Seal(key, []byte("state"))
	assert.NilError(t, err)

	_, err = Open(other, sealed)
	assert.Assert(t, err != nil)

	// flipping a ciphertext byte must fail authentication
	sealed[len(sealed)-1] ^= 0xff
	_, err = Open(key, sealed)
	assert.Assert(t, err != nil)
}
