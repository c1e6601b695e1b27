package power

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestNoBattery(t *testing.T) {
	assert.Equal(t, NoBattery{}.MilliVolts(), uint16(0))
}

func TestFileBattery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voltage_now")

	write := func(s string) {
		assert.NilError(t, os.WriteFile(path, []byte(s), 0644))
	}

	b := FileBattery{Path: path, Scale: 1}

	write("3700\n")
	assert.Equal(t, b.MilliVolts(), uint16(3700))

	// sysfs voltage_now reports microvolts
	micro := FileBattery{Path: path, Scale: 0.001}
	write("3652000\n")
	assert.Equal(t, micro.MilliVolts(), uint16(3652))

	write("not a number")
	assert.Equal(t, b.MilliVolts(), uint16(0))

	write("-12")
	assert.Equal(t, b.MilliVolts(), uint16(0))

	write("9000000")
	assert.Equal(t, b.MilliVolts(), uint16(0))
}

func TestFileBatteryMissingFile(t *testing.T) {
	b := FileBattery{Path: filepath.Join(t.TempDir(), "gone"), Scale: 1}
	assert.Equal(t, b.MilliVolts(), uint16(0))
}

func TestTimerSleeperCompletes(t *testing.T) {
	start := time.Now()
	err := TimerSleeper{}.Sleep(context.Background(), 10*time.Millisecond)
	assert.NilError(t, err)
	assert.Assert(t, time.Since(start) >= 10*time.Millisecond)
}

func TestTimerSleeperCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := TimerSleeper{}.Sleep(ctx, time.Minute)
	assert.ErrorContains(t, err, "context canceled")
}

func TestRTCSleeperArmsAlarm(t *testing.T) {
	dir := t.TempDir()
	s := &RTCSleeper{
		AlarmPath: filepath.Join(dir, "wakealarm"),
		StatePath: filepath.Join(dir, "state"),
	}

	before := time.Now().Unix()
	assert.NilError(t, s.Sleep(context.Background(), time.Hour))

	raw, err := os.ReadFile(s.AlarmPath)
	assert.NilError(t, err)
	wakeAt, err := strconv.ParseInt(string(raw), 10, 64)
	assert.NilError(t, err)
	assert.Assert(t, wakeAt >= before+3600)
	assert.Assert(t, wakeAt <= time.Now().Unix()+3600)

	state, err := os.ReadFile(s.StatePath)
	assert.NilError(t, err)
	assert.Equal(t, string(state), "mem")
}

func TestRTCSleeperFallsBack(t *testing.T) {
	s := &RTCSleeper{
		AlarmPath: filepath.Join(t.TempDir(), "missing", "wakealarm"),
		StatePath: filepath.Join(t.TempDir(), "missing", "state"),
	}

	start := time.Now()
	assert.NilError(t, s.Sleep(context.Background(), 10*time.Millisecond))
	assert.Assert(t, time.Since(start) >= 10*time.Millisecond)
}
