package inverter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-node/pv-node/pkg/payload"
)

// snapshotMaxAge bounds how old a cached reading may be before an uplink
// forces a fresh poll.
const snapshotMaxAge = 30 * time.Second

// App adapts the inverter to the uplink cycle: stage 1 polls while the radio
// joins, stage 2 encodes the freshest snapshot into the port payload. When
// the inverter is dark the uplink degrades to the one-byte offline heartbeat.
type App struct {
	reader      Reader
	statusEvery uint8

	snap *Snapshot
}

// NewApp returns the uplink application layer. statusEvery is the
// app-status cadence in frames, 0 disables it.
func NewApp(reader Reader, statusEvery uint8) *App {
	return &App{reader: reader, statusEvery: statusEvery}
}

// PayloadStage1 polls the inverter ahead of network activation so the slow
// Modbus exchange overlaps the join.
func (a *App) PayloadStage1(ctx context.Context, port uint8, _ *payload.Encoder) error {
	return a.poll(ctx)
}

// PayloadStage2 encodes the payload for one uplink port. A stale cache is
// re-polled first; if that fails the stale data is dropped rather than sent.
func (a *App) PayloadStage2(ctx context.Context, port uint8, enc *payload.Encoder) error {
	if !a.fresh() {
		if err := a.poll(ctx); err != nil {
			log.Warn().Err(err).Uint8("port", port).Msg("inverter unreachable, sending heartbeat")
			a.snap = nil
		}
	}

	if a.snap == nil {
		enc.Uint8(payload.StatusOffline)
		return nil
	}

	switch port {
	case payload.PortLiveData:
		a.snap.LiveData().EncodeTo(enc)
	case payload.PortEnergy:
		a.snap.Energy().EncodeTo(enc)
	default:
		return fmt.Errorf("port %d: no payload defined", port)
	}
	return nil
}

// StatusUplinkInterval returns the app-status cadence in frames.
func (a *App) StatusUplinkInterval() uint8 { return a.statusEvery }

func (a *App) fresh() bool {
	return a.snap != nil && time.Since(a.snap.At) <= snapshotMaxAge
}

func (a *App) poll(ctx context.Context) error {
	snap, err := a.reader.Poll(ctx)
	if err != nil {
		return err
	}
	a.snap = &snap

	log.Debug().
		Str("status", payload.StatusText(snap.Status)).
		Float64("ac_power", snap.ACPower).
		Float64("energy_today", snap.EnergyToday).
		Msg("inverter polled")
	return nil
}
