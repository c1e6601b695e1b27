package lorawan

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRegionLookup(t *testing.T) {
	p, ok := Region("EU868")
	assert.Assert(t, ok)
	assert.Equal(t, p.Name, "EU868")
	assert.Equal(t, p.MaxPayload, 51)

	// US915 DR0 leaves very little room
	p, ok = Region("US915")
	assert.Assert(t, ok)
	assert.Equal(t, p.MaxPayload, 11)

	_, ok = Region("MOON1")
	assert.Assert(t, !ok)
}

func TestRegionCN470Alias(t *testing.T) {
	p, ok := Region("CN470_510")
	assert.Assert(t, ok)
	assert.Equal(t, p.Name, "CN470")
}

func TestMaxPayloadForRegion(t *testing.T) {
	assert.Equal(t, MaxPayloadForRegion("EU868"), 51)
	assert.Equal(t, MaxPayloadForRegion("nope"), 0)
}
