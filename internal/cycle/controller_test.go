package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/lorawan-node/pv-node/internal/modem"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
	"github.com/lorawan-node/pv-node/pkg/lwcmd"
	"github.com/lorawan-node/pv-node/pkg/payload"
)

type fakeSession struct {
	activateErr error
	resumed     bool
	fcnt        uint32
	maxLen      int
	downlinks   []*modem.Downlink
	deviceTime  *time.Time
	linkCheck   *lorawan.LinkCheckAnswer
	sendErr     map[int]error

	sent       []modem.Uplink
	nonces     []byte
	sessionBuf []byte
}

func (f *fakeSession) Activate(context.Context) (modem.ActivationResult, error) {
	f.nonces = []byte{0xde, 0x01}
	if f.activateErr != nil {
		return modem.ActivationResult{}, f.activateErr
	}
	st := modem.ActivationNew
	if f.resumed {
		st = modem.ActivationResumed
	}
	return modem.ActivationResult{State: st, DevAddr: lorawan.DevAddr{0x26, 0x01, 0x1f, 0x42}}, nil
}

func (f *fakeSession) SendReceive(_ context.Context, up modem.Uplink) (*modem.ExchangeResult, error) {
	idx := len(f.sent)
	up.Payload = append([]byte(nil), up.Payload...)
	f.sent = append(f.sent, up)

	if err := f.sendErr[idx]; err != nil {
		return nil, err
	}

	f.fcnt++
	f.sessionBuf = []byte{byte(f.fcnt)}

	res := &modem.ExchangeResult{FrameCountUp: f.fcnt, Acked: up.Confirmed}
	if up.RequestDeviceTime && f.deviceTime != nil {
		res.DeviceTime = f.deviceTime
	}
	if up.RequestLinkCheck && f.linkCheck != nil {
		res.LinkCheck = f.linkCheck
	}
	if len(f.downlinks) > 0 {
		res.Downlink = f.downlinks[0]
		f.downlinks = f.downlinks[1:]
	}
	return res, nil
}

func (f *fakeSession) SessionBuffer() []byte       { return f.sessionBuf }
func (f *fakeSession) RestoreSession([]byte) error { return nil }
func (f *fakeSession) NoncesBuffer() []byte        { return f.nonces }
func (f *fakeSession) RestoreNonces([]byte) error  { return nil }
func (f *fakeSession) FrameCountUp() uint32        { return f.fcnt }
func (f *fakeSession) MaxPayloadLen() int          { return f.maxLen }
func (f *fakeSession) Close() error                { return nil }

type fakeApp struct {
	stage1Ports []uint8
	stage2Ports []uint8
	stage2Err   error
	size        int
	statusEvery uint8
}

func (a *fakeApp) PayloadStage1(_ context.Context, port uint8, _ *payload.Encoder) error {
	a.stage1Ports = append(a.stage1Ports, port)
	return nil
}

func (a *fakeApp) PayloadStage2(_ context.Context, port uint8, enc *payload.Encoder) error {
	if a.stage2Err != nil {
		return a.stage2Err
	}
	a.stage2Ports = append(a.stage2Ports, port)
	n := a.size
	if n == 0 {
		n = 3
	}
	for i := 0; i < n; i++ {
		enc.Uint8(port)
	}
	return nil
}

func (a *fakeApp) StatusUplinkInterval() uint8 { return a.statusEvery }

type fakeStore struct {
	nonces   [][]byte
	sessions [][]byte
}

func (s *fakeStore) SaveNonces(b []byte) error {
	s.nonces = append(s.nonces, append([]byte(nil), b...))
	return nil
}

func (s *fakeStore) SaveSession(b []byte) error {
	s.sessions = append(s.sessions, append([]byte(nil), b...))
	return nil
}

type fakeBattery struct{ mv uint16 }

func (b fakeBattery) MilliVolts() uint16 { return b.mv }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time  { return c.now }
func (c *fakeClock) Set(t time.Time) { c.now = t }

type fixture struct {
	session *fakeSession
	app     *fakeApp
	store   *fakeStore
	clock   *fakeClock
	prefs   *Prefs
	state   *PersistentState
	saved   []Prefs
	ctrl    *Controller
}

func newFixture(schedule []ScheduleEntry, boot uint32) *fixture {
	f := &fixture{
		session: &fakeSession{},
		app:     &fakeApp{},
		store:   &fakeStore{},
		clock:   &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		prefs:   &Prefs{SleepInterval: 360, SleepIntervalLong: 900},
	}
	st := DefaultState()
	st.BootCount = boot

	f.ctrl = NewController(ControllerConfig{
		Session:   f.session,
		App:       f.app,
		Schedule:  schedule,
		Store:     f.store,
		Prefs:     f.prefs,
		SavePrefs: func(p Prefs) error { f.saved = append(f.saved, p); return nil },
		Clock:     f.clock,
		Battery:   fakeBattery{mv: 3600},
		Policy: Policy{
			ConfirmedEvery:   64,
			ClockSyncMaxAge:  24 * time.Hour,
			SleepIntervalMin: 60,
		},
		State: &st,
	})
	f.state = &st
	return f
}

func defaultSchedule() []ScheduleEntry {
	return []ScheduleEntry{{Port: 1, Multiplier: 1}, {Port: 2, Multiplier: 3}}
}

func TestControllerHappyPath(t *testing.T) {
	f := newFixture(defaultSchedule(), 3)
	f.session.resumed = true

	assert.NilError(t, f.ctrl.Run(context.Background()))

	// cycle 3: both ports due, in table order
	assert.Equal(t, len(f.session.sent), 2)
	assert.Equal(t, f.session.sent[0].Port, uint8(1))
	assert.Equal(t, f.session.sent[1].Port, uint8(2))

	// nonces once per activation, session after every successful exchange
	assert.Equal(t, len(f.store.nonces), 1)
	assert.Equal(t, len(f.store.sessions), 2)
	assert.Equal(t, f.state.JoinFailures, uint32(0))
}

func TestControllerSetSleepIntervalEndToEnd(t *testing.T) {
	f := newFixture(defaultSchedule(), 1)
	f.session.downlinks = []*modem.Downlink{
		{Port: lwcmd.PortSetSleepInterval, Payload: []byte{0x01, 0x2c}},
	}

	assert.NilError(t, f.ctrl.Run(context.Background()))

	// cycle 1: only port 1 due; the command response follows before done
	assert.Equal(t, len(f.session.sent), 2)
	assert.Equal(t, f.session.sent[0].Port, uint8(1))
	assert.Equal(t, f.session.sent[1].Port, lwcmd.PortSetSleepInterval)
	assert.DeepEqual(t, f.session.sent[1].Payload, []byte{0x01, 0x2c})

	assert.Equal(t, f.prefs.SleepInterval, uint16(300))
	assert.Equal(t, len(f.saved), 1)
	assert.Equal(t, f.saved[0].SleepInterval, uint16(300))
}

func TestControllerClampsSleepInterval(t *testing.T) {
	f := newFixture(defaultSchedule(), 1)
	f.session.downlinks = []*modem.Downlink{
		{Port: lwcmd.PortSetSleepInterval, Payload: []byte{0x00, 0x0a}},
	}

	assert.NilError(t, f.ctrl.Run(context.Background()))

	// ten seconds is below the floor; the echo carries the applied value
	assert.Equal(t, f.prefs.SleepInterval, uint16(60))
	assert.DeepEqual(t, f.session.sent[1].Payload, []byte{0x00, 0x3c})
}

func TestControllerInfoRequestAnsweredLater(t *testing.T) {
	f := newFixture(defaultSchedule(), 1)
	f.prefs.LWStatusInterval = 6
	f.session.downlinks = []*modem.Downlink{
		{Port: lwcmd.PortGetConfig, Payload: []byte{0x00}},
	}

	assert.NilError(t, f.ctrl.Run(context.Background()))

	assert.Equal(t, len(f.session.sent), 2)
	assert.Equal(t, f.session.sent[1].Port, lwcmd.PortGetConfig)
	assert.DeepEqual(t, f.session.sent[1].Payload, lwcmd.EncodeConfig(lwcmd.Config{
		SleepInterval:     360,
		SleepIntervalLong: 900,
		StatusInterval:    6,
	}))

	// info requests change nothing durable
	assert.Equal(t, len(f.saved), 0)
}

func TestControllerSetDateTimeHasNoResponse(t *testing.T) {
	f := newFixture(defaultSchedule(), 1)
	f.session.downlinks = []*modem.Downlink{
		{Port: lwcmd.PortSetDateTime, Payload: []byte{0x67, 0x74, 0x2e, 0x80}},
	}

	assert.NilError(t, f.ctrl.Run(context.Background()))

	assert.Equal(t, len(f.session.sent), 1)
	assert.Equal(t, f.clock.Now().Unix(), int64(0x67742e80))
	assert.Equal(t, f.state.TimeSource, lwcmd.TimeSourceSet)

	// a downlink-set clock is not a trusted sync
	assert.Equal(t, f.state.LastClockSync, uint32(0))
}

func TestControllerTerminationBound(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 1, Multiplier: 1}}, 1)
	for i := 0; i < 10; i++ {
		f.session.downlinks = append(f.session.downlinks,
			&modem.Downlink{Port: lwcmd.PortGetStatus, Payload: []byte{0x00}})
	}

	assert.NilError(t, f.ctrl.Run(context.Background()))

	// one due port: at most 1+2 exchanges, however many commands keep coming
	assert.Equal(t, len(f.session.sent), 3)
}

func TestControllerFailedExchangeAdvances(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 1, Multiplier: 1}, {Port: 2, Multiplier: 1}}, 5)
	f.session.sendErr = map[int]error{0: errors.New("radio busy")}
	f.session.downlinks = []*modem.Downlink{
		{Port: lwcmd.PortGetStatus, Payload: []byte{0x00}},
	}

	assert.NilError(t, f.ctrl.Run(context.Background()))

	// the failed first exchange has no effects, the machine still advances
	assert.Equal(t, len(f.session.sent), 3)
	assert.Equal(t, f.session.sent[1].Port, uint8(2))
	assert.Equal(t, f.session.sent[2].Port, lwcmd.PortGetStatus)
	assert.Equal(t, len(f.store.sessions), 2)
}

func TestControllerJoinFailure(t *testing.T) {
	f := newFixture(defaultSchedule(), 1)
	f.session.activateErr = modem.ErrJoinFailed

	err := f.ctrl.Run(context.Background())
	assert.Assert(t, errors.Is(err, modem.ErrJoinFailed))

	// nonces are saved even for the failed attempt, nothing was exchanged
	assert.Equal(t, len(f.store.nonces), 1)
	assert.Equal(t, len(f.session.sent), 0)
	assert.Equal(t, f.state.JoinFailures, uint32(1))

	err = f.ctrl.Run(context.Background())
	assert.Assert(t, err != nil)
	assert.Equal(t, f.state.JoinFailures, uint32(2))
}

func TestControllerLWStatusUplink(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 1, Multiplier: 1}}, 4)
	f.prefs.LWStatusInterval = 1 // every frame

	assert.NilError(t, f.ctrl.Run(context.Background()))

	assert.Equal(t, len(f.session.sent), 2)
	assert.Equal(t, f.session.sent[1].Port, lwcmd.PortGetStatus)
	// battery 3600 mV, no long-sleep flag
	assert.DeepEqual(t, f.session.sent[1].Payload, []byte{0x0e, 0x10, 0x00})
	assert.Assert(t, !f.state.LWStatusPending)
}

func TestControllerStatusIntervalZeroDisabled(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 1, Multiplier: 1}}, 4)
	f.prefs.LWStatusInterval = 0

	assert.NilError(t, f.ctrl.Run(context.Background()))

	assert.Equal(t, len(f.session.sent), 1)
	assert.Assert(t, !f.state.LWStatusPending)
}

func TestControllerConfirmedCadence(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 1, Multiplier: 1}, {Port: 2, Multiplier: 1}}, 6)
	f.ctrl.policy.ConfirmedEvery = 2
	f.ctrl.policy.LinkCheckEvery = 2

	assert.NilError(t, f.ctrl.Run(context.Background()))

	// frame counter starts at zero: first exchange hits the cadence
	assert.Assert(t, f.session.sent[0].Confirmed)
	assert.Assert(t, f.session.sent[0].RequestLinkCheck)
	assert.Assert(t, !f.session.sent[1].Confirmed)
	assert.Assert(t, !f.session.sent[1].RequestLinkCheck)
}

func TestControllerDeviceTimeSync(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 1, Multiplier: 1}, {Port: 2, Multiplier: 1}}, 2)
	networkTime := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	f.session.deviceTime = &networkTime

	assert.NilError(t, f.ctrl.Run(context.Background()))

	// never synced: the first exchange asks for the time
	assert.Assert(t, f.session.sent[0].RequestDeviceTime)
	assert.Equal(t, f.clock.Now(), networkTime)
	assert.Equal(t, f.state.LastClockSync, uint32(networkTime.Unix()))
	assert.Equal(t, f.state.TimeSource, lwcmd.TimeSourceLoRa)

	// freshly synced: the second exchange does not ask again
	assert.Assert(t, !f.session.sent[1].RequestDeviceTime)
}

func TestControllerTruncatesPayload(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 1, Multiplier: 1}}, 1)
	f.session.maxLen = 4
	f.app.size = 9

	assert.NilError(t, f.ctrl.Run(context.Background()))

	assert.Equal(t, len(f.session.sent), 1)
	assert.Equal(t, len(f.session.sent[0].Payload), 4)
}

func TestControllerStagePrefetch(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 2, Multiplier: 4}}, 4)

	assert.NilError(t, f.ctrl.Run(context.Background()))

	// stage 1 once for the first due port, stage 2 per send
	assert.DeepEqual(t, f.app.stage1Ports, []uint8{2})
	assert.DeepEqual(t, f.app.stage2Ports, []uint8{2})
}

func TestControllerNothingDue(t *testing.T) {
	f := newFixture([]ScheduleEntry{{Port: 1, Multiplier: 10}}, 3)

	assert.NilError(t, f.ctrl.Run(context.Background()))

	assert.Equal(t, len(f.app.stage1Ports), 0)
	assert.Equal(t, len(f.session.sent), 0)
}
