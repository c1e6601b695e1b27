// Package power covers the node's power management: battery measurement and
// the sleep strategy between wake episodes.
package power

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// NoBattery reports an unmeasured supply. Zero millivolts means "unknown"
// throughout the node, never "empty".
type NoBattery struct{}

// MilliVolts always returns 0.
func (NoBattery) MilliVolts() uint16 { return 0 }

// FileBattery reads the supply voltage from a file, typically a sysfs
// voltage_now node. Scale converts the file's unit to millivolts, 0.001 for
// microvolts.
type FileBattery struct {
	Path  string
	Scale float64
}

// MilliVolts returns the measured voltage, 0 when the file cannot be read or
// the value is out of range.
func (b FileBattery) MilliVolts() uint16 {
	raw, err := os.ReadFile(b.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", b.Path).Msg("battery voltage unavailable")
		return 0
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		log.Warn().Err(err).Str("path", b.Path).Msg("battery voltage unreadable")
		return 0
	}

	mv := math.Round(v * b.Scale)
	if mv < 0 || mv > math.MaxUint16 {
		log.Warn().Float64("millivolts", mv).Msg("battery voltage out of range")
		return 0
	}
	return uint16(mv)
}
