package cycle

import "time"

// SleepInputs are the measurements and settings the sleep planner works from.
// BatteryMilliVolts zero means the voltage was not measured.
type SleepInputs struct {
	SleepInterval     uint16 // seconds, normal cadence
	SleepIntervalLong uint16 // seconds, weak-battery cadence
	SleepIntervalMin  uint16 // seconds, hard floor
	BatteryMilliVolts uint16
	BatteryWeakMV     uint16
	LastClockSync     uint32 // unix epoch, 0 = never synced
	Now               time.Time
}

// SleepPlan is the planner result. LongSleep reports that the weak-battery
// interval was chosen; the caller records it in the persistent state.
type SleepPlan struct {
	Duration  time.Duration
	LongSleep bool
}

// PlanSleep picks the sleep duration for the episode that just ended. With a
// synced clock the duration is trimmed so wake-ups stay aligned to multiples
// of the interval past the full hour. The result never goes below the floor
// and never above the chosen base interval.
func PlanSleep(in SleepInputs) SleepPlan {
	interval := int(in.SleepInterval)
	long := false

	if in.BatteryMilliVolts != 0 && in.BatteryMilliVolts <= in.BatteryWeakMV {
		interval = int(in.SleepIntervalLong)
		long = true
	}

	if in.LastClockSync != 0 && interval > 0 {
		diff := (in.Now.Minute()*60)%interval + in.Now.Second()
		if diff > interval {
			diff -= interval
		}
		interval -= diff
	}

	if interval < int(in.SleepIntervalMin) {
		interval = int(in.SleepIntervalMin)
	}

	return SleepPlan{
		Duration:  time.Duration(interval) * time.Second,
		LongSleep: long,
	}
}
