package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-node/pv-node/internal/modem"
	"github.com/lorawan-node/pv-node/pkg/lwcmd"
	"github.com/lorawan-node/pv-node/pkg/payload"
)

// UplinkState names what the next radio exchange will carry.
type UplinkState int

const (
	StateSensorData UplinkState = iota
	StateResponse
	StateLWStatus
	// StateAppStatus is reserved; the transition table never selects it.
	StateAppStatus
	StateDone
)

// String returns the state name
func (s UplinkState) String() string {
	switch s {
	case StateSensorData:
		return "SENSOR_DATA"
	case StateResponse:
		return "RESPONSE"
	case StateLWStatus:
		return "LW_STATUS"
	case StateAppStatus:
		return "APP_STATUS"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// AppLayer supplies the application payload for scheduled uplink ports. The
// payload bytes are opaque to the controller.
type AppLayer interface {
	// PayloadStage1 runs once before network activation so slow sensor I/O
	// overlaps the join.
	PayloadStage1(ctx context.Context, port uint8, enc *payload.Encoder) error
	// PayloadStage2 encodes the payload immediately before each send.
	PayloadStage2(ctx context.Context, port uint8, enc *payload.Encoder) error
	// StatusUplinkInterval returns the application status cadence in frames,
	// 0 when disabled.
	StatusUplinkInterval() uint8
}

// SessionStore persists transport state between episodes.
type SessionStore interface {
	SaveNonces(b []byte) error
	SaveSession(b []byte) error
}

// BatteryMonitor reads the supply voltage in millivolts, 0 when the voltage
// cannot be measured.
type BatteryMonitor interface {
	MilliVolts() uint16
}

// Policy tunes radio behaviour per episode. Zero cadences disable the
// respective feature.
type Policy struct {
	ConfirmedEvery   uint32 // confirmed uplink every n-th frame
	LinkCheckEvery   uint32 // LinkCheckReq every n-th frame
	ClockSyncMaxAge  time.Duration
	SleepIntervalMin uint16
}

// ControllerConfig wires a controller.
type ControllerConfig struct {
	Session   modem.Session
	App       AppLayer
	Schedule  []ScheduleEntry
	Store     SessionStore
	Prefs     *Prefs
	SavePrefs func(Prefs) error
	Clock     Clock
	Battery   BatteryMonitor
	Policy    Policy
	State     *PersistentState
}

// Controller drives one wake episode: activate the session, work through the
// due uplinks and any downlink commands in strict priority order, and leave
// every durable effect persisted. Exactly one radio exchange happens per
// iteration.
type Controller struct {
	session   modem.Session
	app       AppLayer
	sched     *Scheduler
	store     SessionStore
	prefs     *Prefs
	savePrefs func(Prefs) error
	clock     Clock
	battery   BatteryMonitor
	policy    Policy
	state     *PersistentState

	// pending holds the one command awaiting its response uplink. A newer
	// command replaces an unsent older one.
	pending lwcmd.Command
}

// NewController returns a controller for one or more episodes.
func NewController(cfg ControllerConfig) *Controller {
	return &Controller{
		session:   cfg.Session,
		app:       cfg.App,
		sched:     NewScheduler(cfg.Schedule),
		store:     cfg.Store,
		prefs:     cfg.Prefs,
		savePrefs: cfg.SavePrefs,
		clock:     cfg.Clock,
		battery:   cfg.Battery,
		policy:    cfg.Policy,
		state:     cfg.State,
	}
}

// Run executes one wake episode. A non-nil error means activation failed and
// no exchanges happened; individual exchange failures are logged and
// absorbed. The exchange count is bounded by the due port count plus two.
func (c *Controller) Run(ctx context.Context) error {
	cycleNum := c.state.BootCount
	c.sched.Begin(cycleNum)

	log.Info().
		Uint32("cycle", cycleNum).
		Int("due", c.sched.DueCount()).
		Msg("wake cycle starting")

	// prefetch application data so sensor I/O overlaps the join
	if port := c.sched.PeekPort(); port != 0 {
		var enc payload.Encoder
		if err := c.app.PayloadStage1(ctx, port, &enc); err != nil {
			log.Warn().Err(err).Uint8("port", port).Msg("payload stage 1 failed")
		}
	}

	res, err := c.session.Activate(ctx)

	// nonces advance on every join attempt, failed ones included
	if nb := c.session.NoncesBuffer(); nb != nil {
		if serr := c.store.SaveNonces(nb); serr != nil {
			log.Error().Err(serr).Msg("save nonces failed")
		}
	}

	if err != nil {
		c.state.JoinFailures++
		return fmt.Errorf("activate: %w", err)
	}
	c.state.JoinFailures = 0

	log.Info().
		Str("devAddr", res.DevAddr.String()).
		Str("activation", res.State.String()).
		Uint32("fcnt", c.session.FrameCountUp()).
		Msg("session active")

	c.evalStatusFlags()

	limit := c.sched.DueCount() + 2
	st := StateSensorData
	for i := 0; i < limit && st != StateDone; i++ {
		log.Debug().Str("state", st.String()).Int("iteration", i).Msg("uplink state")
		c.runState(ctx, st)
		st = c.nextState()
	}
	if st != StateDone {
		log.Warn().Int("limit", limit).Msg("exchange budget exhausted, forcing done")
	}

	return nil
}

// evalStatusFlags arms the periodic status uplinks from the frame counter.
// Flags only ever get set here; they clear when the uplink is attempted, so
// an episode that ran out of budget carries them over.
func (c *Controller) evalStatusFlags() {
	fcnt := c.session.FrameCountUp()

	if iv := uint32(c.prefs.LWStatusInterval); iv != 0 && fcnt%iv == 0 {
		c.state.LWStatusPending = true
	}

	if iv := uint32(c.app.StatusUplinkInterval()); iv != 0 && fcnt%iv == 0 {
		c.state.AppStatusPending = true
	}
}

func (c *Controller) runState(ctx context.Context, st UplinkState) {
	switch st {
	case StateSensorData:
		c.sendSensorData(ctx)
	case StateResponse:
		c.sendResponse(ctx)
	case StateLWStatus:
		c.sendLWStatus(ctx)
	}
}

// nextState picks the next uplink by strict priority: command response, then
// remaining scheduled data, then node status, then done.
func (c *Controller) nextState() UplinkState {
	switch {
	case c.pending != nil:
		return StateResponse
	case c.sched.HasUplinks():
		return StateSensorData
	case c.state.LWStatusPending:
		return StateLWStatus
	default:
		return StateDone
	}
}

func (c *Controller) sendSensorData(ctx context.Context) {
	port := c.sched.NextPort()
	if port == 0 {
		return
	}

	var enc payload.Encoder
	if err := c.app.PayloadStage2(ctx, port, &enc); err != nil {
		log.Warn().Err(err).Uint8("port", port).Msg("payload stage 2 failed, skipping uplink")
		return
	}

	c.exchange(ctx, port, enc.Bytes())
}

// sendResponse answers the pending command. The payload is built at send
// time so it reflects the state the command left behind. The pending slot is
// consumed whether or not the exchange succeeds.
func (c *Controller) sendResponse(ctx context.Context) {
	cmd := c.pending
	c.pending = nil

	var data []byte
	switch cmd.(type) {
	case lwcmd.GetDateTime:
		data = lwcmd.EncodeDateTime(uint32(c.clock.Now().Unix()), c.state.TimeSource)
	case lwcmd.GetConfig:
		data = lwcmd.EncodeConfig(lwcmd.Config{
			SleepInterval:     c.prefs.SleepInterval,
			SleepIntervalLong: c.prefs.SleepIntervalLong,
			StatusInterval:    c.prefs.LWStatusInterval,
		})
	case lwcmd.GetStatus:
		data = c.statusPayload()
	case lwcmd.SetSleepInterval:
		data = lwcmd.EncodeSeconds(c.prefs.SleepInterval)
	case lwcmd.SetSleepIntervalLong:
		data = lwcmd.EncodeSeconds(c.prefs.SleepIntervalLong)
	case lwcmd.SetStatusInterval:
		data = lwcmd.EncodeFrames(c.prefs.LWStatusInterval)
	default:
		return
	}

	c.exchange(ctx, cmd.Port(), data)
}

// sendLWStatus uplinks the periodic node status. The pending flag clears on
// the attempt, not on success.
func (c *Controller) sendLWStatus(ctx context.Context) {
	c.state.LWStatusPending = false
	c.exchange(ctx, lwcmd.PortGetStatus, c.statusPayload())
}

func (c *Controller) statusPayload() []byte {
	return lwcmd.EncodeStatus(lwcmd.Status{
		BatteryMilliVolts: c.battery.MilliVolts(),
		LongSleep:         c.state.LongSleep,
	})
}

// exchange performs one radio exchange and absorbs its failure. On success
// the session state is persisted and MAC answers and downlink commands are
// applied.
func (c *Controller) exchange(ctx context.Context, port uint8, data []byte) {
	if maxLen := c.session.MaxPayloadLen(); maxLen > 0 && len(data) > maxLen {
		log.Warn().
			Uint8("port", port).
			Int("len", len(data)).
			Int("max", maxLen).
			Msg("payload truncated to transport maximum")
		data = data[:maxLen]
	}

	fcnt := c.session.FrameCountUp()
	up := modem.Uplink{
		Port:              port,
		Payload:           data,
		Confirmed:         c.policy.ConfirmedEvery != 0 && fcnt%c.policy.ConfirmedEvery == 0,
		RequestLinkCheck:  c.policy.LinkCheckEvery != 0 && fcnt%c.policy.LinkCheckEvery == 0,
		RequestDeviceTime: c.clockStale(),
	}

	res, err := c.session.SendReceive(ctx, up)
	if err != nil {
		log.Warn().Err(err).Uint8("port", port).Uint32("fcnt", fcnt).Msg("exchange failed")
		return
	}

	log.Debug().
		Uint8("port", port).
		Uint32("fcnt", res.FrameCountUp).
		Bool("confirmed", up.Confirmed).
		Bool("downlink", res.Downlink != nil).
		Msg("exchange complete")

	if sb := c.session.SessionBuffer(); sb != nil {
		if err := c.store.SaveSession(sb); err != nil {
			log.Error().Err(err).Msg("save session failed")
		}
	}

	c.handleMAC(res)
	c.handleDownlink(res)
}

func (c *Controller) clockStale() bool {
	if c.state.LastClockSync == 0 {
		return true
	}
	age := c.clock.Now().Unix() - int64(c.state.LastClockSync)
	return age < 0 || time.Duration(age)*time.Second >= c.policy.ClockSyncMaxAge
}

// handleMAC applies piggybacked MAC answers. Network time is the only
// trusted clock source.
func (c *Controller) handleMAC(res *modem.ExchangeResult) {
	if res.DeviceTime != nil {
		c.clock.Set(*res.DeviceTime)
		c.state.LastClockSync = uint32(res.DeviceTime.Unix())
		c.state.TimeSource = lwcmd.TimeSourceLoRa
		log.Info().Time("network_time", *res.DeviceTime).Msg("clock synced from network")
	}

	if res.LinkCheck != nil {
		log.Info().
			Uint8("margin", res.LinkCheck.Margin).
			Uint8("gateways", res.LinkCheck.GwCnt).
			Msg("link check answer")
	}
}

func (c *Controller) handleDownlink(res *modem.ExchangeResult) {
	if res.Downlink == nil {
		return
	}

	cmd, err := lwcmd.Decode(res.Downlink.Port, res.Downlink.Payload)
	if err != nil {
		log.Warn().
			Err(err).
			Uint8("port", res.Downlink.Port).
			Msg("undecodable downlink ignored")
		return
	}

	log.Info().Str("cmd", lwcmd.Name(cmd)).Msg("downlink command received")
	c.applyCommand(cmd)
}

// applyCommand executes a decoded downlink. Mutating commands persist their
// preference immediately; every command except set-datetime is remembered for
// a response uplink.
func (c *Controller) applyCommand(cmd lwcmd.Command) {
	switch v := cmd.(type) {
	case lwcmd.SetDateTime:
		c.clock.Set(time.Unix(int64(v.Epoch), 0))
		c.state.TimeSource = lwcmd.TimeSourceSet
		log.Info().Uint32("epoch", v.Epoch).Msg("clock set from downlink")

	case lwcmd.SetSleepInterval:
		c.prefs.SleepInterval = c.clampInterval(v.Seconds)
		c.persistPrefs()
		c.pending = cmd

	case lwcmd.SetSleepIntervalLong:
		c.prefs.SleepIntervalLong = c.clampInterval(v.Seconds)
		c.persistPrefs()
		c.pending = cmd

	case lwcmd.SetStatusInterval:
		c.prefs.LWStatusInterval = v.Frames
		c.persistPrefs()
		c.pending = cmd

	case lwcmd.GetDateTime, lwcmd.GetConfig, lwcmd.GetStatus:
		c.pending = cmd
	}
}

func (c *Controller) clampInterval(sec uint16) uint16 {
	if sec < c.policy.SleepIntervalMin {
		return c.policy.SleepIntervalMin
	}
	return sec
}

func (c *Controller) persistPrefs() {
	if err := c.savePrefs(*c.prefs); err != nil {
		log.Error().Err(err).Msg("persist preferences failed")
	}
}
