package modem

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goburrow/serial"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// ATConfig configures the serial AT driver.
type ATConfig struct {
	Port    string
	Baud    int
	Timeout time.Duration // per-line read timeout, also the downlink window

	DevEUI  lorawan.EUI64
	JoinEUI lorawan.EUI64
	AppKey  lorawan.AES128Key
	Region  string

	// MaxPayloadLen zero derives the limit from the region.
	MaxPayloadLen int
}

// ATModem drives a RAK-style LoRaWAN modem over a serial line with Hayes
// at-commands. The modem owns the MAC layer, the session and the frame
// counters in its own NVM, so the state buffers are empty and restore calls
// are no-ops.
//
// Two dialect limitations to be aware of: the modem does not expose the
// DevAddr, and MAC answers such as DeviceTimeAns never surface on the serial
// line. Deployments on this driver keep their clock through the set-datetime
// downlink command instead.
type ATModem struct {
	port io.ReadWriteCloser
	r    *bufio.Reader
	cfg  ATConfig

	provisioned bool
	joined      bool
	confirmed   bool
	fcnt        uint32

	// pendingRecv holds a downlink line that raced a command response.
	pendingRecv string
}

const recvPrefix = "at+recv="

// NewATModem opens the serial port for a RAK-style modem.
func NewATModem(cfg ATConfig) (*ATModem, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	return newATModem(port, cfg), nil
}

// newATModem wires the driver over any byte stream. Tests script one.
func newATModem(port io.ReadWriteCloser, cfg ATConfig) *ATModem {
	if cfg.MaxPayloadLen == 0 {
		cfg.MaxPayloadLen = lorawan.MaxPayloadForRegion(cfg.Region)
	}
	return &ATModem{
		port: port,
		r:    bufio.NewReader(port),
		cfg:  cfg,
	}
}

// Activate provisions the modem on first use and joins over the air. While
// the process lives the modem keeps its session, so later calls resume
// without a join.
func (m *ATModem) Activate(ctx context.Context) (ActivationResult, error) {
	if !m.provisioned {
		if err := m.provision(ctx); err != nil {
			return ActivationResult{}, fmt.Errorf("provision modem: %w", err)
		}
		m.provisioned = true
	}

	if m.joined {
		return ActivationResult{State: ActivationResumed}, nil
	}

	// the join accept can land in RX2 seconds after the request, give the
	// modem a generous window
	if _, err := m.command(ctx, "at+join", 3*m.cfg.Timeout); err != nil {
		return ActivationResult{}, fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}

	m.joined = true
	m.fcnt = 0
	return ActivationResult{State: ActivationNew}, nil
}

type provisionStep struct {
	label string
	cmd   string
}

func (m *ATModem) provision(ctx context.Context) error {
	steps := []provisionStep{
		{"join_mode", "at+set_config=lora:join_mode:0"},
		{"class", "at+set_config=lora:class:0"},
	}
	if m.cfg.Region != "" {
		steps = append(steps, provisionStep{"region", "at+set_config=lora:region:" + m.cfg.Region})
	}
	steps = append(steps,
		provisionStep{"dev_eui", "at+set_config=lora:dev_eui:" + strings.ToUpper(m.cfg.DevEUI.String())},
		provisionStep{"app_eui", "at+set_config=lora:app_eui:" + strings.ToUpper(m.cfg.JoinEUI.String())},
		provisionStep{"app_key", "at+set_config=lora:app_key:" + strings.ToUpper(m.cfg.AppKey.String())},
	)

	for _, s := range steps {
		if _, err := m.command(ctx, s.cmd, m.cfg.Timeout); err != nil {
			return fmt.Errorf("%s: %w", s.label, err)
		}
	}
	return nil
}

// SendReceive uplinks one frame and collects the downlink that may trail it.
// MAC requests are accepted but dropped, the dialect has no way to carry
// them.
func (m *ATModem) SendReceive(ctx context.Context, up Uplink) (*ExchangeResult, error) {
	if up.RequestDeviceTime || up.RequestLinkCheck {
		log.Debug().Msg("mac requests not supported by at driver")
	}

	if up.Confirmed != m.confirmed {
		mode := 0
		if up.Confirmed {
			mode = 1
		}
		cmd := fmt.Sprintf("at+set_config=lora:confirm:%d", mode)
		if _, err := m.command(ctx, cmd, m.cfg.Timeout); err != nil {
			return nil, fmt.Errorf("set confirm mode: %w", err)
		}
		m.confirmed = up.Confirmed
	}

	// a confirmed send blocks until the ack or the modem's retries run out
	cmd := fmt.Sprintf("at+send=lora:%d:%s", up.Port, hex.EncodeToString(up.Payload))
	if _, err := m.command(ctx, cmd, 3*m.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	m.fcnt++

	res := &ExchangeResult{FrameCountUp: m.fcnt, Acked: up.Confirmed}

	line := m.pendingRecv
	m.pendingRecv = ""
	if line == "" {
		// one read covers the receive windows, a timeout means no downlink
		if l, err := m.readLine(); err == nil {
			line = l
		}
	}

	if strings.HasPrefix(line, recvPrefix) {
		rl, err := parseRecv(line)
		if err != nil {
			log.Warn().Err(err).Str("line", line).Msg("unparseable downlink line")
			return res, nil
		}
		res.RSSI = rl.RSSI
		res.SNR = float64(rl.SNR)
		// port 0 carries MAC traffic the modem already consumed
		if rl.Port > 0 && len(rl.Data) > 0 {
			res.Downlink = &Downlink{Port: uint8(rl.Port), Payload: rl.Data}
		}
	}

	return res, nil
}

// SessionBuffer returns nil, the modem persists its own session.
func (m *ATModem) SessionBuffer() []byte { return nil }

// RestoreSession is a no-op for the same reason.
func (m *ATModem) RestoreSession([]byte) error { return nil }

// NoncesBuffer returns nil, the modem persists its own nonces.
func (m *ATModem) NoncesBuffer() []byte { return nil }

// RestoreNonces is a no-op for the same reason.
func (m *ATModem) RestoreNonces([]byte) error { return nil }

// FrameCountUp mirrors the modem's uplink counter for the current session.
func (m *ATModem) FrameCountUp() uint32 { return m.fcnt }

// MaxPayloadLen returns the configured payload limit.
func (m *ATModem) MaxPayloadLen() int { return m.cfg.MaxPayloadLen }

// Close puts the modem to sleep, best effort, and releases the line.
func (m *ATModem) Close() error {
	if _, err := m.command(context.Background(), "at+set_config=device:sleep:1", m.cfg.Timeout); err != nil {
		log.Debug().Err(err).Msg("modem sleep command failed")
	}
	return m.port.Close()
}

// command writes one at-command and reads lines until its OK or ERROR
// response, for at most wait. Unsolicited downlink lines seen on the way are
// kept for the current exchange; other chatter is dropped.
func (m *ATModem) command(ctx context.Context, cmd string, wait time.Duration) (string, error) {
	if _, err := io.WriteString(m.port, cmd+"\r\n"); err != nil {
		return "", fmt.Errorf("write command: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		line, err := m.readLine()
		if err != nil {
			if errors.Is(err, serial.ErrTimeout) && time.Now().Before(deadline) {
				continue
			}
			return "", fmt.Errorf("read response: %w", err)
		}

		switch {
		case line == "":
		case strings.HasPrefix(line, recvPrefix):
			m.pendingRecv = line
		case strings.HasPrefix(line, "OK"):
			return line, nil
		case strings.HasPrefix(line, "ERROR:"):
			code := strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
			return "", fmt.Errorf("modem error %s", code)
		default:
			log.Debug().Str("line", line).Msg("modem chatter")
		}
	}
}

func (m *ATModem) readLine() (string, error) {
	line, err := m.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

type recvLine struct {
	Port int
	RSSI int
	SNR  int
	Data []byte
}

// parseRecv parses "at+recv=<port>,<rssi>,<snr>,<len>[:<hexdata>]".
func parseRecv(line string) (*recvLine, error) {
	body := strings.TrimPrefix(line, recvPrefix)

	var hexData string
	if i := strings.IndexByte(body, ':'); i >= 0 {
		body, hexData = body[:i], body[i+1:]
	}

	parts := strings.Split(body, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed receive line")
	}

	var rl recvLine
	var err error
	if rl.Port, err = strconv.Atoi(parts[0]); err != nil {
		return nil, fmt.Errorf("port field: %w", err)
	}
	if rl.RSSI, err = strconv.Atoi(parts[1]); err != nil {
		return nil, fmt.Errorf("rssi field: %w", err)
	}
	if rl.SNR, err = strconv.Atoi(parts[2]); err != nil {
		return nil, fmt.Errorf("snr field: %w", err)
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil {
		return nil, fmt.Errorf("length field: %w", err)
	}

	if hexData != "" {
		if rl.Data, err = hex.DecodeString(hexData); err != nil {
			return nil, fmt.Errorf("data field: %w", err)
		}
	}
	if n != len(rl.Data) {
		return nil, fmt.Errorf("length field says %d bytes, got %d", n, len(rl.Data))
	}

	return &rl, nil
}
