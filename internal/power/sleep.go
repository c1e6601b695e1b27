package power

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Sleeper parks the node between wake episodes.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps in process. Used on bench setups and mains-powered
// installs where the process stays resident.
type TimerSleeper struct{}

// Sleep waits for d or until the context is cancelled.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RTCSleeper suspends the system to RAM with the RTC programmed to wake it.
// Both knobs are the standard Linux sysfs nodes, so suspending needs the
// matching privileges. When either write fails the sleeper falls back to an
// in-process timer so the schedule keeps running.
type RTCSleeper struct {
	AlarmPath string
	StatePath string

	fallback TimerSleeper
}

// NewRTCSleeper returns a sleeper wired to rtc0 and /sys/power/state.
func NewRTCSleeper() *RTCSleeper {
	return &RTCSleeper{
		AlarmPath: "/sys/class/rtc/rtc0/wakealarm",
		StatePath: "/sys/power/state",
	}
}

// Sleep suspends for roughly d. The call returns after the system resumes.
func (s *RTCSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := s.suspend(d); err != nil {
		log.Warn().Err(err).Dur("duration", d).Msg("suspend failed, sleeping in process")
		return s.fallback.Sleep(ctx, d)
	}
	return nil
}

func (s *RTCSleeper) suspend(d time.Duration) error {
	wakeAt := time.Now().Add(d).Unix()

	// a stale alarm makes the arming write fail on many RTCs
	if err := os.WriteFile(s.AlarmPath, []byte("0"), 0644); err != nil {
		return fmt.Errorf("clear rtc alarm: %w", err)
	}
	if err := os.WriteFile(s.AlarmPath, []byte(strconv.FormatInt(wakeAt, 10)), 0644); err != nil {
		return fmt.Errorf("arm rtc alarm: %w", err)
	}

	// blocks until the alarm fires
	if err := os.WriteFile(s.StatePath, []byte("mem"), 0644); err != nil {
		return fmt.Errorf("suspend to ram: %w", err)
	}
	return nil
}
