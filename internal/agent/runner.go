// Package agent runs the node firmware loop: restore state, wake, poll the
// inverter, work the radio, plan the sleep, park. With timer sleep the loop
// stays resident; with rtc sleep each pass suspends the system and the loop
// resumes where it left off.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-node/pv-node/internal/config"
	"github.com/lorawan-node/pv-node/internal/cycle"
	"github.com/lorawan-node/pv-node/internal/inverter"
	"github.com/lorawan-node/pv-node/internal/modem"
	"github.com/lorawan-node/pv-node/internal/power"
	"github.com/lorawan-node/pv-node/internal/session"
)

// Runner owns the long-lived pieces of the node and drives wake episodes.
type Runner struct {
	cfg *config.Config

	store      *session.Store
	prefsStore *config.PrefsStore
	prefs      cycle.Prefs
	state      cycle.PersistentState

	clock   *cycle.OffsetClock
	battery cycle.BatteryMonitor
	sleeper power.Sleeper

	sess modem.Session
	inv  *inverter.Client
	ctl  *cycle.Controller
}

// New assembles a runner from configuration. The modem and the inverter link
// stay open for the life of the process so a resumed session survives across
// episodes.
func New(cfg *config.Config) (*Runner, error) {
	store, err := session.NewStore(cfg.State.Dir, cfg.State.EncryptionKey)
	if err != nil {
		return nil, err
	}

	prefsStore := config.NewPrefsStore(cfg.State.Dir)
	prefs, err := prefsStore.Load(cfg.DefaultPrefs())
	if err != nil {
		log.Warn().Err(err).Msg("preferences unreadable, using defaults")
	}

	sess, err := newModem(cfg)
	if err != nil {
		return nil, err
	}

	if b := store.LoadNonces(); b != nil {
		if err := sess.RestoreNonces(b); err != nil {
			log.Warn().Err(err).Msg("stored nonces unusable, starting fresh")
		}
	}
	if b := store.LoadSession(); b != nil {
		if err := sess.RestoreSession(b); err != nil {
			log.Warn().Err(err).Msg("stored session unusable, rejoining")
			if err := store.ClearSession(); err != nil {
				log.Warn().Err(err).Msg("clear session failed")
			}
		}
	}

	inv, err := inverter.NewClient(inverter.Config{
		Transport: cfg.Inverter.Transport,
		Port:      cfg.Inverter.Port,
		Baud:      cfg.Inverter.Baud,
		Address:   cfg.Inverter.Address,
		UnitID:    cfg.Inverter.UnitID,
		Timeout:   cfg.Inverter.Timeout,
	})
	if err != nil {
		sess.Close()
		return nil, err
	}

	r := &Runner{
		cfg:        cfg,
		store:      store,
		prefsStore: prefsStore,
		prefs:      prefs,
		state:      store.LoadState(),
		clock:      &cycle.OffsetClock{},
		battery:    newBattery(cfg),
		sleeper:    newSleeper(cfg),
		sess:       sess,
		inv:        inv,
	}

	r.ctl = cycle.NewController(cycle.ControllerConfig{
		Session:   sess,
		App:       inverter.NewApp(inv, 0),
		Schedule:  cfg.Schedule,
		Store:     store,
		Prefs:     &r.prefs,
		SavePrefs: prefsStore.Save,
		Clock:     r.clock,
		Battery:   r.battery,
		Policy: cycle.Policy{
			ConfirmedEvery:   cfg.Policy.ConfirmedEvery,
			LinkCheckEvery:   cfg.Policy.LinkCheckEvery,
			ClockSyncMaxAge:  cfg.Policy.ClockSyncMaxAge,
			SleepIntervalMin: cfg.Sleep.IntervalMin,
		},
		State: &r.state,
	})

	return r, nil
}

// Run loops wake episodes until the context ends. The retained state is
// written back before every sleep, so a power loss costs at most the episode
// in flight.
func (r *Runner) Run(ctx context.Context) error {
	defer r.close()

	log.Info().
		Uint32("bootCount", r.state.BootCount).
		Str("modem", r.cfg.Modem.Driver).
		Str("sleep", r.cfg.Sleep.Mode).
		Uint16("interval", r.prefs.SleepInterval).
		Msg("node agent starting")

	for {
		d := r.episode(ctx)

		if err := r.store.SaveState(r.state); err != nil {
			log.Error().Err(err).Msg("save state failed")
		}

		log.Info().
			Dur("duration", d).
			Bool("long", r.state.LongSleep).
			Msg("sleeping")

		if err := r.sleeper.Sleep(ctx, d); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// episode runs one wake pass and returns how long to sleep after it.
func (r *Runner) episode(ctx context.Context) time.Duration {
	r.state.BootCount++

	mv := r.battery.MilliVolts()

	if mv != 0 && mv <= r.cfg.Battery.LowMV {
		// Deep discharge: stay off the radio and the bus entirely.
		log.Warn().
			Uint16("batteryMV", mv).
			Uint16("lowMV", r.cfg.Battery.LowMV).
			Msg("battery critically low, skipping episode")
	} else if err := r.ctl.Run(ctx); err != nil {
		log.Error().
			Err(err).
			Uint32("failures", r.state.JoinFailures).
			Msg("activation failed")
		return joinBackoff(r.state.JoinFailures, r.cfg.Policy.JoinBackoffBase, r.cfg.Policy.JoinBackoffMax)
	}

	plan := cycle.PlanSleep(cycle.SleepInputs{
		SleepInterval:     r.prefs.SleepInterval,
		SleepIntervalLong: r.prefs.SleepIntervalLong,
		SleepIntervalMin:  r.cfg.Sleep.IntervalMin,
		BatteryMilliVolts: mv,
		BatteryWeakMV:     r.cfg.Battery.WeakMV,
		LastClockSync:     r.state.LastClockSync,
		Now:               r.clock.Now(),
	})
	r.state.LongSleep = plan.LongSleep
	return plan.Duration
}

func (r *Runner) close() {
	if err := r.sess.Close(); err != nil {
		log.Warn().Err(err).Msg("close modem failed")
	}
	if err := r.inv.Close(); err != nil {
		log.Warn().Err(err).Msg("close inverter failed")
	}
}

// joinBackoff scales the retry delay linearly with consecutive failures up to
// the cap.
func joinBackoff(failures uint32, base, max time.Duration) time.Duration {
	if base <= 0 {
		return max
	}
	if failures == 0 {
		failures = 1
	}
	d := time.Duration(failures) * base
	if d > max || d < 0 {
		d = max
	}
	return d
}

// newModem builds the configured transport driver.
func newModem(cfg *config.Config) (modem.Session, error) {
	switch cfg.Modem.Driver {
	case "at":
		return modem.NewATModem(modem.ATConfig{
			Port:          cfg.Modem.Port,
			Baud:          cfg.Modem.Baud,
			Timeout:       cfg.Modem.RXWindow,
			DevEUI:        cfg.Device.DevEUI,
			JoinEUI:       cfg.Device.JoinEUI,
			AppKey:        cfg.Device.AppKey,
			Region:        cfg.Device.Region,
			MaxPayloadLen: cfg.Modem.MaxPayloadLen,
		})

	case "nats":
		return modem.NewNATSModem(modem.NATSConfig{
			URL:           cfg.Modem.URL,
			DevEUI:        cfg.Device.DevEUI,
			JoinEUI:       cfg.Device.JoinEUI,
			Region:        cfg.Device.Region,
			RXWindow:      cfg.Modem.RXWindow,
			MaxPayloadLen: cfg.Modem.MaxPayloadLen,
		})

	default:
		return nil, fmt.Errorf("unknown modem driver %q", cfg.Modem.Driver)
	}
}

func newBattery(cfg *config.Config) cycle.BatteryMonitor {
	if cfg.Battery.Monitor == "file" {
		return power.FileBattery{Path: cfg.Battery.Path, Scale: cfg.Battery.Scale}
	}
	return power.NoBattery{}
}

func newSleeper(cfg *config.Config) power.Sleeper {
	if cfg.Sleep.Mode == "rtc" {
		return power.NewRTCSleeper()
	}
	return power.TimerSleeper{}
}
