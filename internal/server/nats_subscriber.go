package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-node/pv-node/internal/integration"
	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/internal/storage"
	"github.com/lorawan-node/pv-node/pkg/crypto"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
	"github.com/lorawan-node/pv-node/pkg/lwcmd"
	"github.com/lorawan-node/pv-node/pkg/payload"
)

// NATSSubscriber consumes node traffic and answers each receive window. Nodes
// publish with request-reply: the reply to an uplink is the downlink frame,
// the reply to a join request is the join accept. Not replying at all is how
// the console leaves a receive window empty.
type NATSSubscriber struct {
	nc        *nats.Conn
	store     storage.Store
	forwarder *integration.Forwarder

	subs []*nats.Subscription
}

// NewNATSSubscriber creates the ingest service. The forwarder may be nil when
// no integrations are configured.
func NewNATSSubscriber(nc *nats.Conn, store storage.Store, forwarder *integration.Forwarder) *NATSSubscriber {
	return &NATSSubscriber{
		nc:        nc,
		store:     store,
		forwarder: forwarder,
	}
}

// Start subscribes to the node subjects and blocks until the context ends.
func (s *NATSSubscriber) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe("node.*.join", s.handleJoinRequest)
	if err != nil {
		return fmt.Errorf("subscribe join requests: %w", err)
	}
	s.subs = append(s.subs, sub)

	sub, err = s.nc.Subscribe("node.*.up", s.handleUplinkFrame)
	if err != nil {
		return fmt.Errorf("subscribe uplink frames: %w", err)
	}
	s.subs = append(s.subs, sub)

	log.Info().
		Int("subscriptions", len(s.subs)).
		Msg("NATS subscriber started")

	<-ctx.Done()

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// handleJoinRequest activates a session: the device row is created or reset
// and a fresh device address goes back in the join accept. A zero address in
// the accept tells the node it was rejected.
func (s *NATSSubscriber) handleJoinRequest(msg *nats.Msg) {
	var req models.JoinRequestMessage
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal join request")
		return
	}

	log.Debug().
		Str("devEUI", req.DevEUI.String()).
		Uint16("devNonce", req.DevNonce).
		Msg("Join request received")

	ctx := context.Background()

	existing, err := s.store.GetDevice(ctx, req.DevEUI)
	if err != nil && err != storage.ErrNotFound {
		log.Error().Err(err).Str("devEUI", req.DevEUI.String()).Msg("Failed to get device")
		return
	}

	if existing != nil && existing.IsDisabled {
		log.Warn().Str("devEUI", req.DevEUI.String()).Msg("Join rejected, device disabled")
		s.respond(msg, models.JoinAcceptMessage{})
		return
	}

	devAddr, err := newDevAddr()
	if err != nil {
		log.Error().Err(err).Msg("Failed to assign device address")
		return
	}

	now := time.Now()
	device := &models.Device{
		DevEUI:     req.DevEUI,
		Name:       fmt.Sprintf("node-%s", req.DevEUI),
		DevAddr:    &devAddr,
		LastSeenAt: &now,
	}
	if err := s.store.ActivateDevice(ctx, device); err != nil {
		log.Error().Err(err).Str("devEUI", req.DevEUI.String()).Msg("Failed to activate device")
		return
	}

	s.logEvent(ctx, &req.DevEUI, models.EventTypeJoin, models.EventLevelInfo, "join",
		"Device joined", models.Variables{
			"devAddr":  devAddr.String(),
			"devNonce": req.DevNonce,
		})

	if !s.respond(msg, models.JoinAcceptMessage{DevAddr: devAddr}) {
		return
	}

	log.Info().
		Str("devEUI", req.DevEUI.String()).
		Str("devAddr", devAddr.String()).
		Msg("Join accepted")

	if s.forwarder != nil {
		s.forwarder.ForwardJoin(integration.JoinEvent{
			DevEUI:   req.DevEUI.String(),
			DevAddr:  devAddr.String(),
			JoinedAt: now,
		})
	}
}

// handleUplinkFrame stores an uplink and answers the receive window with a
// downlink frame carrying the ack, MAC answers, and at most one queued
// command.
func (s *NATSSubscriber) handleUplinkFrame(msg *nats.Msg) {
	var frame models.UplinkFrameMessage
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal uplink frame")
		return
	}

	log.Debug().
		Str("devEUI", frame.DevEUI.String()).
		Uint32("fCnt", frame.FCnt).
		Uint8("fPort", frame.FPort).
		Int("bytes", len(frame.Payload)).
		Msg("Uplink frame received")

	ctx := context.Background()

	device, err := s.store.GetDevice(ctx, frame.DevEUI)
	if err != nil && err != storage.ErrNotFound {
		log.Error().Err(err).Str("devEUI", frame.DevEUI.String()).Msg("Failed to get device")
		return
	}

	if device != nil && device.IsDisabled {
		// No reply: the node sees an empty receive window.
		log.Warn().Str("devEUI", frame.DevEUI.String()).Msg("Uplink from disabled device dropped")
		return
	}

	deviceName := fmt.Sprintf("node-%s", frame.DevEUI)
	if device != nil {
		deviceName = device.Name
	}

	now := time.Now()
	devAddr := frame.DevAddr
	seen := &models.Device{
		DevEUI:     frame.DevEUI,
		Name:       deviceName,
		DevAddr:    &devAddr,
		LastSeenAt: &now,
		FCntUp:     frame.FCnt,
	}
	if frame.RSSI != 0 || frame.SNR != 0 {
		rssi := frame.RSSI
		snr := frame.SNR
		seen.LastRSSI = &rssi
		seen.LastSNR = &snr
	}
	if err := s.store.UpsertDeviceSeen(ctx, seen); err != nil {
		log.Error().Err(err).Str("devEUI", frame.DevEUI.String()).Msg("Failed to update device")
	}

	var object map[string]interface{}
	switch frame.FPort {
	case payload.PortLiveData:
		object = s.storeLiveReading(ctx, &frame)
	case payload.PortEnergy:
		object = s.storeEnergyReading(ctx, &frame)
	case lwcmd.PortGetStatus:
		object = s.storeNodeStatus(ctx, &frame)
	default:
		object = s.storeCommandResponse(ctx, &frame)
	}

	reply := models.DownlinkFrameMessage{
		Ack: frame.Confirmed,
	}

	var macCommands []lorawan.MACCommand
	if frame.RequestDeviceTime {
		macCommands = append(macCommands, lorawan.MACCommand{
			CID:     lorawan.DeviceTimeAns,
			Payload: lorawan.EncodeDeviceTimeAns(time.Now()),
		})
	}
	if frame.RequestLinkCheck {
		// Without a real gateway there is no demodulation margin to report.
		// Answer with a nominal margin and a single receiver.
		macCommands = append(macCommands, lorawan.MACCommand{
			CID:     lorawan.LinkCheckAns,
			Payload: lorawan.EncodeLinkCheckAns(lorawan.LinkCheckAnswer{Margin: 20, GwCnt: 1}),
		})
	}
	if len(macCommands) > 0 {
		reply.MACCommands = lorawan.EncodeMACCommands(macCommands)
	}

	// Class A: at most one queued command rides each receive window.
	cmd, err := s.store.NextPendingCommand(ctx, frame.DevEUI)
	if err != nil && err != storage.ErrNotFound {
		log.Error().Err(err).Str("devEUI", frame.DevEUI.String()).Msg("Failed to get pending command")
	}
	if cmd != nil {
		reply.FPort = cmd.FPort
		reply.Payload = cmd.Payload
	}

	if !s.respond(msg, reply) {
		// The command was never delivered; it stays pending for the next
		// receive window.
		return
	}

	if cmd != nil {
		if err := s.store.MarkCommandSent(ctx, cmd.ID); err != nil {
			log.Error().Err(err).Str("id", cmd.ID.String()).Msg("Failed to mark command sent")
		}
		if err := s.store.IncrementDeviceFCntDown(ctx, frame.DevEUI); err != nil {
			log.Error().Err(err).Str("devEUI", frame.DevEUI.String()).Msg("Failed to bump downlink counter")
		}

		s.logEvent(ctx, &frame.DevEUI, models.EventTypeCommandSent, models.EventLevelInfo, cmd.Name,
			"Command sent", models.Variables{
				"id":      cmd.ID.String(),
				"fPort":   cmd.FPort,
				"payload": hex.EncodeToString(cmd.Payload),
			})

		log.Info().
			Str("devEUI", frame.DevEUI.String()).
			Str("command", cmd.Name).
			Msg("Command delivered")
	}

	if s.forwarder != nil {
		s.forwarder.ForwardUplink(integration.UplinkEvent{
			DevEUI:     frame.DevEUI.String(),
			DeviceName: deviceName,
			FCnt:       frame.FCnt,
			FPort:      frame.FPort,
			Data:       frame.Payload,
			Object:     object,
			RSSI:       frame.RSSI,
			SNR:        frame.SNR,
			ReceivedAt: now,
		})
	}
}

// storeLiveReading stores a port 1 uplink. A single status byte is the
// offline heartbeat; the row keeps the outage visible in the history.
func (s *NATSSubscriber) storeLiveReading(ctx context.Context, frame *models.UplinkFrameMessage) map[string]interface{} {
	var d payload.LiveData
	if len(frame.Payload) == 1 {
		d.Status = frame.Payload[0]
	} else {
		var err error
		d, err = payload.DecodeLiveData(frame.Payload)
		if err != nil {
			s.logDecodeError(ctx, frame, err)
			return nil
		}
	}

	reading := &models.LiveReading{
		DevEUI:      frame.DevEUI,
		FCnt:        frame.FCnt,
		Status:      d.Status,
		ACPower:     d.ACPower,
		PVPower:     d.PVPower,
		PV1Voltage:  d.PV1Voltage,
		PV1Current:  d.PV1Current,
		GridVoltage: d.GridVoltage,
		GridFreq:    d.GridFreq,
		Temperature: d.Temperature,
		RSSI:        frame.RSSI,
		SNR:         frame.SNR,
	}
	if err := s.store.CreateLiveReading(ctx, reading); err != nil {
		log.Error().Err(err).Str("devEUI", frame.DevEUI.String()).Msg("Failed to store live reading")
		return nil
	}

	s.logEvent(ctx, &frame.DevEUI, models.EventTypeUplink, models.EventLevelDebug, "telemetry",
		"Live reading stored", models.Variables{
			"fPort": frame.FPort,
			"fCnt":  frame.FCnt,
		})

	object, _ := payload.Decode(frame.FPort, frame.Payload)
	return object
}

// storeEnergyReading stores a port 2 uplink.
func (s *NATSSubscriber) storeEnergyReading(ctx context.Context, frame *models.UplinkFrameMessage) map[string]interface{} {
	var d payload.Energy
	if len(frame.Payload) == 1 {
		d.Status = frame.Payload[0]
	} else {
		var err error
		d, err = payload.DecodeEnergy(frame.Payload)
		if err != nil {
			s.logDecodeError(ctx, frame, err)
			return nil
		}
	}

	reading := &models.EnergyReading{
		DevEUI:         frame.DevEUI,
		FCnt:           frame.FCnt,
		Status:         d.Status,
		EnergyToday:    d.EnergyToday,
		EnergyTotal:    d.EnergyTotal,
		PV1EnergyTotal: d.PV1EnergyTotal,
		WorkTime:       d.WorkTime,
		RSSI:           frame.RSSI,
		SNR:            frame.SNR,
	}
	if err := s.store.CreateEnergyReading(ctx, reading); err != nil {
		log.Error().Err(err).Str("devEUI", frame.DevEUI.String()).Msg("Failed to store energy reading")
		return nil
	}

	s.logEvent(ctx, &frame.DevEUI, models.EventTypeUplink, models.EventLevelDebug, "telemetry",
		"Energy reading stored", models.Variables{
			"fPort": frame.FPort,
			"fCnt":  frame.FCnt,
		})

	object, _ := payload.Decode(frame.FPort, frame.Payload)
	return object
}

// storeNodeStatus records the battery voltage and flags reported on the
// status port, both the periodic uplink and the get-status response.
func (s *NATSSubscriber) storeNodeStatus(ctx context.Context, frame *models.UplinkFrameMessage) map[string]interface{} {
	status, err := lwcmd.DecodeStatus(frame.Payload)
	if err != nil {
		s.logDecodeError(ctx, frame, err)
		return nil
	}

	if err := s.store.UpdateDeviceStatus(ctx, frame.DevEUI, int(status.BatteryMilliVolts), status.LongSleep); err != nil {
		log.Error().Err(err).Str("devEUI", frame.DevEUI.String()).Msg("Failed to update node status")
	}

	s.logEvent(ctx, &frame.DevEUI, models.EventTypeUplink, models.EventLevelInfo, "node-status",
		"Node status reported", models.Variables{
			"battery_mv": status.BatteryMilliVolts,
			"long_sleep": status.LongSleep,
		})

	log.Info().
		Str("devEUI", frame.DevEUI.String()).
		Uint16("batteryMV", status.BatteryMilliVolts).
		Bool("longSleep", status.LongSleep).
		Msg("Node status reported")

	return map[string]interface{}{
		"battery_mv": status.BatteryMilliVolts,
		"long_sleep": status.LongSleep,
	}
}

// storeCommandResponse decodes an uplink on a command port into the event
// log. Responses travel on the port of the command they answer.
func (s *NATSSubscriber) storeCommandResponse(ctx context.Context, frame *models.UplinkFrameMessage) map[string]interface{} {
	fields, err := lwcmd.DecodeResponse(frame.FPort, frame.Payload)
	if err != nil {
		s.logDecodeError(ctx, frame, err)
		return nil
	}

	details := models.Variables{
		"fPort": frame.FPort,
		"fCnt":  frame.FCnt,
	}
	for k, v := range fields {
		details[k] = v
	}

	s.logEvent(ctx, &frame.DevEUI, models.EventTypeCommandResponse, models.EventLevelInfo,
		lwcmd.PortName(frame.FPort), "Command response", details)

	log.Info().
		Str("devEUI", frame.DevEUI.String()).
		Str("command", lwcmd.PortName(frame.FPort)).
		Msg("Command response received")

	return fields
}

// logDecodeError records an uplink the console could not make sense of.
func (s *NATSSubscriber) logDecodeError(ctx context.Context, frame *models.UplinkFrameMessage, err error) {
	log.Error().
		Err(err).
		Str("devEUI", frame.DevEUI.String()).
		Uint8("fPort", frame.FPort).
		Msg("Failed to decode uplink")

	s.logEvent(ctx, &frame.DevEUI, models.EventTypeError, models.EventLevelError, "decode",
		err.Error(), models.Variables{
			"fPort":   frame.FPort,
			"fCnt":    frame.FCnt,
			"payload": hex.EncodeToString(frame.Payload),
		})
}

// logEvent writes an event log row. Failures are logged and swallowed so the
// receive window is never lost to event bookkeeping.
func (s *NATSSubscriber) logEvent(ctx context.Context, devEUI *lorawan.EUI64, typ models.EventType, level models.EventLevel, code, description string, details models.Variables) {
	event := &models.EventLog{
		DevEUI:      devEUI,
		Type:        typ,
		Level:       level,
		Code:        code,
		Description: description,
		Details:     details,
	}
	if err := s.store.CreateEventLog(ctx, event); err != nil {
		log.Error().Err(err).Str("type", string(typ)).Msg("Failed to create event log")
	}
}

// respond marshals the reply and answers the request. Reporting false lets
// callers hold back state changes that must only follow a delivered reply.
func (s *NATSSubscriber) respond(msg *nats.Msg, v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal reply")
		return false
	}
	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to respond")
		return false
	}
	return true
}

// newDevAddr draws a random device address. Zero is the rejection marker in
// the join accept, so it is never assigned.
func newDevAddr() (lorawan.DevAddr, error) {
	var addr lorawan.DevAddr
	for {
		b, err := crypto.RandomBytes(len(addr))
		if err != nil {
			return addr, err
		}
		copy(addr[:], b)
		if !addr.IsZero() {
			return addr, nil
		}
	}
}
