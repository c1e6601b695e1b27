package cycle

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestPlanSleepUnsyncedClock(t *testing.T) {
	plan := PlanSleep(SleepInputs{
		SleepInterval:     360,
		SleepIntervalLong: 900,
		SleepIntervalMin:  60,
		BatteryWeakMV:     3500,
		BatteryMilliVolts: 3700,
		Now:               time.Date(2026, 3, 1, 12, 13, 20, 0, time.UTC),
	})

	// no clock sync yet: full interval, no alignment
	assert.Equal(t, plan.Duration, 360*time.Second)
	assert.Assert(t, !plan.LongSleep)
}

func TestPlanSleepWeakBattery(t *testing.T) {
	plan := PlanSleep(SleepInputs{
		SleepInterval:     360,
		SleepIntervalLong: 900,
		SleepIntervalMin:  60,
		BatteryWeakMV:     3500,
		BatteryMilliVolts: 3400,
		Now:               time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, plan.Duration, 900*time.Second)
	assert.Assert(t, plan.LongSleep)
}

func TestPlanSleepUnmeasuredBattery(t *testing.T) {
	// zero voltage means unmeasured and must never trigger the long interval
	plan := PlanSleep(SleepInputs{
		SleepInterval:     360,
		SleepIntervalLong: 900,
		SleepIntervalMin:  60,
		BatteryWeakMV:     3500,
		BatteryMilliVolts: 0,
		Now:               time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, plan.Duration, 360*time.Second)
	assert.Assert(t, !plan.LongSleep)
}

func TestPlanSleepClockAlignment(t *testing.T) {
	cases := []struct {
		name     string
		minute   int
		second   int
		interval uint16
		want     time.Duration
	}{
		{"on the boundary", 0, 0, 360, 360 * time.Second},
		{"trim to next boundary", 13, 20, 360, 280 * time.Second},
		{"just before boundary clamps to floor", 5, 59, 360, 60 * time.Second},
		{"diff exceeding interval wraps once", 1, 50, 100, 90 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := PlanSleep(SleepInputs{
				SleepInterval:    tc.interval,
				SleepIntervalMin: 60,
				LastClockSync:    1700000000,
				Now:              time.Date(2026, 3, 1, 12, tc.minute, tc.second, 0, time.UTC),
			})
			assert.Equal(t, plan.Duration, tc.want)
		})
	}
}

func TestPlanSleepBounds(t *testing.T) {
	for minute := 0; minute < 60; minute += 7 {
		for second := 0; second < 60; second += 11 {
			plan := PlanSleep(SleepInputs{
				SleepInterval:    360,
				SleepIntervalMin: 60,
				LastClockSync:    1700000000,
				Now:              time.Date(2026, 3, 1, 8, minute, second, 0, time.UTC),
			})
			assert.Assert(t, plan.Duration >= 60*time.Second,
				"minute=%d second=%d got %v", minute, second, plan.Duration)
			assert.Assert(t, plan.Duration <= 360*time.Second,
				"minute=%d second=%d got %v", minute, second, plan.Duration)
		}
	}
}
