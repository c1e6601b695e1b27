package modem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// NATSConfig configures the bench transport.
type NATSConfig struct {
	URL      string
	DevEUI   lorawan.EUI64
	JoinEUI  lorawan.EUI64
	Region   string
	RXWindow time.Duration

	// MaxPayloadLen zero derives the limit from the region, keeping bench
	// runs honest about what the field radio would fit.
	MaxPayloadLen int
}

// natsSession is the restorable session blob of the bench transport.
type natsSession struct {
	DevAddr  lorawan.DevAddr `json:"dev_addr"`
	FCntUp   uint32          `json:"f_cnt_up"`
	FCntDown uint32          `json:"f_cnt_down"`
}

// natsNonces is the restorable join-nonce blob.
type natsNonces struct {
	DevNonce uint16 `json:"dev_nonce"`
}

// NATSModem is the bench transport: every uplink is a request on
// node.<devEUI>.up and the console's reply, when one arrives inside the
// receive window, is the downlink. Unlike a real modem the session and the
// nonces live here, so both buffers are populated and must be persisted by
// the caller.
type NATSModem struct {
	nc       *nats.Conn
	ownsConn bool
	cfg      NATSConfig

	sess   natsSession
	nonces natsNonces
	active bool
}

// NewNATSModem connects to the broker and returns the bench transport.
func NewNATSModem(cfg NATSConfig) (*NATSModem, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("pv-node-"+cfg.DevEUI.String()),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	m := newNATSModem(nc, cfg)
	m.ownsConn = true
	return m, nil
}

// newNATSModem wires the transport over an existing connection.
func newNATSModem(nc *nats.Conn, cfg NATSConfig) *NATSModem {
	if cfg.MaxPayloadLen == 0 {
		cfg.MaxPayloadLen = lorawan.MaxPayloadForRegion(cfg.Region)
	}
	return &NATSModem{nc: nc, cfg: cfg}
}

// Activate resumes the restored session when one exists, otherwise it burns a
// DevNonce and performs the join handshake. The nonce advances before the
// request goes out, so a crash mid-join can never reuse it.
func (m *NATSModem) Activate(ctx context.Context) (ActivationResult, error) {
	if !m.sess.DevAddr.IsZero() {
		m.active = true
		log.Debug().
			Str("devAddr", m.sess.DevAddr.String()).
			Uint32("fcntUp", m.sess.FCntUp).
			Msg("session resumed from stored state")
		return ActivationResult{State: ActivationResumed, DevAddr: m.sess.DevAddr}, nil
	}

	m.nonces.DevNonce++

	req := models.JoinRequestMessage{
		DevEUI:   m.cfg.DevEUI,
		JoinEUI:  m.cfg.JoinEUI,
		DevNonce: m.nonces.DevNonce,
		SentAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return ActivationResult{}, fmt.Errorf("marshal join request: %w", err)
	}

	msg, err := m.request(ctx, m.subject("join"), data)
	if err != nil {
		return ActivationResult{}, fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}

	var acc models.JoinAcceptMessage
	if err := json.Unmarshal(msg.Data, &acc); err != nil {
		return ActivationResult{}, fmt.Errorf("%w: decode join accept: %v", ErrJoinFailed, err)
	}
	if acc.DevAddr.IsZero() {
		return ActivationResult{}, fmt.Errorf("%w: join rejected", ErrJoinFailed)
	}

	m.sess = natsSession{DevAddr: acc.DevAddr}
	m.active = true
	return ActivationResult{State: ActivationNew, DevAddr: acc.DevAddr}, nil
}

// SendReceive publishes one uplink frame and waits out the receive window for
// the console's reply. An empty window is an error only for confirmed
// uplinks. The frame counter burns on every attempt that reached the wire.
func (m *NATSModem) SendReceive(ctx context.Context, up Uplink) (*ExchangeResult, error) {
	if !m.active {
		return nil, errors.New("session not active")
	}

	frame := models.UplinkFrameMessage{
		DevEUI:            m.cfg.DevEUI,
		DevAddr:           m.sess.DevAddr,
		FCnt:              m.sess.FCntUp,
		FPort:             up.Port,
		Confirmed:         up.Confirmed,
		Payload:           up.Payload,
		RequestDeviceTime: up.RequestDeviceTime,
		RequestLinkCheck:  up.RequestLinkCheck,
		SentAt:            time.Now().UTC(),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal uplink frame: %w", err)
	}

	msg, err := m.request(ctx, m.subject("up"), data)
	m.sess.FCntUp++

	if err != nil {
		if !windowClosedEmpty(err) {
			return nil, fmt.Errorf("uplink request: %w", err)
		}
		if up.Confirmed {
			return nil, fmt.Errorf("no ack for confirmed uplink fcnt %d", frame.FCnt)
		}
		return &ExchangeResult{FrameCountUp: m.sess.FCntUp}, nil
	}

	res := &ExchangeResult{FrameCountUp: m.sess.FCntUp}

	var down models.DownlinkFrameMessage
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &down); err != nil {
			log.Warn().Err(err).Msg("undecodable downlink frame")
			return res, nil
		}
	}

	res.Acked = down.Ack
	if len(down.MACCommands) > 0 {
		m.applyMAC(down.MACCommands, res)
	}
	if down.FPort > 0 && len(down.Payload) > 0 {
		m.sess.FCntDown++
		res.Downlink = &Downlink{Port: down.FPort, Payload: down.Payload}
	}

	return res, nil
}

// applyMAC surfaces the MAC answers a downlink carried.
func (m *NATSModem) applyMAC(raw []byte, res *ExchangeResult) {
	cmds, err := lorawan.ParseMACCommands(false, raw)
	if err != nil {
		log.Warn().Err(err).Msg("bad mac commands in downlink")
		return
	}

	for _, cmd := range cmds {
		switch cmd.CID {
		case lorawan.DeviceTimeAns:
			ans, err := lorawan.ParseDeviceTimeAns(cmd.Payload)
			if err != nil {
				log.Warn().Err(err).Msg("bad DeviceTimeAns")
				continue
			}
			t := ans.Time()
			res.DeviceTime = &t

		case lorawan.LinkCheckAns:
			ans, err := lorawan.ParseLinkCheckAns(cmd.Payload)
			if err != nil {
				log.Warn().Err(err).Msg("bad LinkCheckAns")
				continue
			}
			res.LinkCheck = &ans
		}
	}
}

// SessionBuffer returns the session blob, nil before the first join.
func (m *NATSModem) SessionBuffer() []byte {
	if m.sess.DevAddr.IsZero() {
		return nil
	}
	b, err := json.Marshal(m.sess)
	if err != nil {
		log.Error().Err(err).Msg("marshal session blob")
		return nil
	}
	return b
}

// RestoreSession loads a previously saved session blob.
func (m *NATSModem) RestoreSession(b []byte) error {
	var s natsSession
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode session blob: %w", err)
	}
	m.sess = s
	return nil
}

// NoncesBuffer returns the join-nonce blob.
func (m *NATSModem) NoncesBuffer() []byte {
	b, err := json.Marshal(m.nonces)
	if err != nil {
		log.Error().Err(err).Msg("marshal nonces blob")
		return nil
	}
	return b
}

// RestoreNonces loads a previously saved join-nonce blob.
func (m *NATSModem) RestoreNonces(b []byte) error {
	var n natsNonces
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode nonces blob: %w", err)
	}
	m.nonces = n
	return nil
}

// FrameCountUp returns the next uplink frame counter.
func (m *NATSModem) FrameCountUp() uint32 { return m.sess.FCntUp }

// MaxPayloadLen returns the configured payload limit.
func (m *NATSModem) MaxPayloadLen() int { return m.cfg.MaxPayloadLen }

// Close releases the connection when this transport opened it.
func (m *NATSModem) Close() error {
	if m.ownsConn && m.nc != nil {
		m.nc.Close()
	}
	return nil
}

func (m *NATSModem) subject(kind string) string {
	return fmt.Sprintf("node.%s.%s", m.cfg.DevEUI, kind)
}

func (m *NATSModem) request(ctx context.Context, subject string, data []byte) (*nats.Msg, error) {
	rctx, cancel := context.WithTimeout(ctx, m.cfg.RXWindow)
	defer cancel()
	return m.nc.RequestWithContext(rctx, subject, data)
}

// windowClosedEmpty classifies request failures that mean "nothing answered",
// which over the air is simply an empty receive window.
func windowClosedEmpty(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders)
}
