package lorawan

// RegionParams carries the per-region constants the node consults. The modem
// (or the bench bridge) owns the real channel plan and data-rate machinery;
// the node only needs the canonical region name for provisioning and a
// conservative payload budget.
type RegionParams struct {
	Name string
	// MaxPayload is the application payload limit at the region's slowest
	// data rate. Uplinks are planned against it so they fit whatever rate
	// the network steers the modem to.
	MaxPayload int
}

// regions lists the band plans the modem dialects accept.
var regions = map[string]RegionParams{
	"EU433": {Name: "EU433", MaxPayload: 51},
	"EU868": {Name: "EU868", MaxPayload: 51},
	"US915": {Name: "US915", MaxPayload: 11},
	"AU915": {Name: "AU915", MaxPayload: 51},
	"AS923": {Name: "AS923", MaxPayload: 51},
	"KR920": {Name: "KR920", MaxPayload: 51},
	"IN865": {Name: "IN865", MaxPayload: 51},
	"CN470": {Name: "CN470", MaxPayload: 51},
}

// Region resolves a region name. The CN470_510 spelling some configurations
// use is accepted as an alias.
func Region(name string) (RegionParams, bool) {
	if name == "CN470_510" {
		name = "CN470"
	}
	p, ok := regions[name]
	return p, ok
}

// MaxPayloadForRegion returns the conservative payload limit for a region, 0
// when the region is unknown.
func MaxPayloadForRegion(name string) int {
	p, ok := Region(name)
	if !ok {
		return 0
	}
	return p.MaxPayload
}
