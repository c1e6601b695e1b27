package cycle

import (
	"github.com/lorawan-node/pv-node/pkg/lwcmd"
)

// PersistentState are the counters that survive power loss. The controller is
// the only mutator; the agent writes the struct back before every sleep.
type PersistentState struct {
	BootCount uint32 `yaml:"boot_count"`
	// JoinFailures counts consecutive boots whose join attempt failed. It
	// scales the retry backoff and resets on the first successful activation.
	JoinFailures     uint32           `yaml:"join_failures"`
	LastClockSync    uint32           `yaml:"last_clock_sync"` // unix epoch, 0 = never
	LongSleep        bool             `yaml:"long_sleep"`
	TimeSource       lwcmd.TimeSource `yaml:"time_source"`
	AppStatusPending bool             `yaml:"app_status_pending"`
	LWStatusPending  bool             `yaml:"lw_status_pending"`
}

// DefaultState returns the very-first-boot state.
func DefaultState() PersistentState {
	return PersistentState{
		TimeSource: lwcmd.TimeSourceUnsynced,
	}
}

// Prefs are the durable preferences a downlink command can change.
type Prefs struct {
	SleepInterval     uint16 `yaml:"sleep_interval"`      // seconds
	SleepIntervalLong uint16 `yaml:"sleep_interval_long"` // seconds
	LWStatusInterval  uint8  `yaml:"lw_status_interval"`  // frames, 0 disables
}
