package agent

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/lorawan-node/pv-node/internal/config"
	"github.com/lorawan-node/pv-node/internal/cycle"
	"github.com/lorawan-node/pv-node/internal/modem"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
	"github.com/lorawan-node/pv-node/pkg/payload"
)

type fixedBattery uint16

func (b fixedBattery) MilliVolts() uint16 { return uint16(b) }

// scriptedSession fails or succeeds activation on demand and never carries an
// exchange. Episodes in these tests either skip the radio or stop at the join.
type scriptedSession struct {
	activateErr error
	activations int
}

func (s *scriptedSession) Activate(ctx context.Context) (modem.ActivationResult, error) {
	s.activations++
	if s.activateErr != nil {
		return modem.ActivationResult{}, s.activateErr
	}
	return modem.ActivationResult{State: modem.ActivationNew, DevAddr: lorawan.DevAddr{1, 2, 3, 4}}, nil
}

func (s *scriptedSession) SendReceive(ctx context.Context, up modem.Uplink) (*modem.ExchangeResult, error) {
	return &modem.ExchangeResult{}, nil
}

func (s *scriptedSession) SessionBuffer() []byte         { return nil }
func (s *scriptedSession) RestoreSession(b []byte) error { return nil }
func (s *scriptedSession) NoncesBuffer() []byte          { return nil }
func (s *scriptedSession) RestoreNonces(b []byte) error  { return nil }
func (s *scriptedSession) FrameCountUp() uint32          { return 0 }
func (s *scriptedSession) MaxPayloadLen() int            { return 0 }
func (s *scriptedSession) Close() error                  { return nil }

type nopStore struct{}

func (nopStore) SaveNonces(b []byte) error  { return nil }
func (nopStore) SaveSession(b []byte) error { return nil }

type nopApp struct{}

func (nopApp) PayloadStage1(ctx context.Context, port uint8, enc *payload.Encoder) error {
	return nil
}

func (nopApp) PayloadStage2(ctx context.Context, port uint8, enc *payload.Encoder) error {
	return nil
}

func (nopApp) StatusUplinkInterval() uint8 { return 0 }

func newTestRunner(batteryMV uint16, sess modem.Session) *Runner {
	r := &Runner{
		cfg: &config.Config{
			Battery: config.BatteryConfig{LowMV: 3300, WeakMV: 3500},
			Sleep:   config.SleepConfig{IntervalMin: 60},
			Policy: config.PolicyConfig{
				JoinBackoffBase: time.Minute,
				JoinBackoffMax:  5 * time.Minute,
			},
		},
		prefs: cycle.Prefs{
			SleepInterval:     600,
			SleepIntervalLong: 3600,
		},
		state:   cycle.DefaultState(),
		clock:   &cycle.OffsetClock{},
		battery: fixedBattery(batteryMV),
		sess:    sess,
	}
	r.ctl = cycle.NewController(cycle.ControllerConfig{
		Session: sess,
		App:     nopApp{},
		Store:   nopStore{},
		Prefs:   &r.prefs,
		Clock:   r.clock,
		Battery: r.battery,
		State:   &r.state,
	})
	return r
}

func TestJoinBackoff(t *testing.T) {
	base := time.Minute
	max := 10 * time.Minute

	tests := []struct {
		name     string
		failures uint32
		base     time.Duration
		want     time.Duration
	}{
		{"first failure", 1, base, base},
		{"scales linearly", 3, base, 3 * time.Minute},
		{"caps at max", 30, base, max},
		{"zero failures counts as one", 0, base, base},
		{"overflow caps at max", math.MaxUint32, base, max},
		{"disabled base uses max", 5, 0, max},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, joinBackoff(tt.failures, tt.base, max), tt.want)
		})
	}
}

func TestEpisodeSkipsOnLowBattery(t *testing.T) {
	sess := &scriptedSession{}
	r := newTestRunner(3200, sess)

	d := r.episode(context.Background())

	assert.Equal(t, sess.activations, 0)
	assert.Equal(t, r.state.BootCount, uint32(1))
	assert.Assert(t, r.state.LongSleep)
	assert.Equal(t, d, time.Hour) // the weak-battery interval
}

func TestEpisodeBacksOffAfterJoinFailures(t *testing.T) {
	sess := &scriptedSession{activateErr: errors.New("no join accept")}
	r := newTestRunner(4000, sess)

	assert.Equal(t, r.episode(context.Background()), time.Minute)
	assert.Equal(t, r.episode(context.Background()), 2*time.Minute)
	assert.Equal(t, r.episode(context.Background()), 3*time.Minute)
	assert.Equal(t, r.state.JoinFailures, uint32(3))

	for i := 0; i < 10; i++ {
		r.episode(context.Background())
	}
	assert.Equal(t, r.episode(context.Background()), 5*time.Minute)
	assert.Assert(t, !r.state.LongSleep)
}

func TestEpisodeRecoversAfterRejoin(t *testing.T) {
	sess := &scriptedSession{activateErr: errors.New("no join accept")}
	r := newTestRunner(4000, sess)

	r.episode(context.Background())
	r.episode(context.Background())
	assert.Equal(t, r.state.JoinFailures, uint32(2))

	sess.activateErr = nil
	d := r.episode(context.Background())

	assert.Equal(t, r.state.JoinFailures, uint32(0))
	assert.Equal(t, d, 10*time.Minute) // the normal interval
	assert.Assert(t, !r.state.LongSleep)
	assert.Equal(t, r.state.BootCount, uint32(3))
}
