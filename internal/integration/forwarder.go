package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-node/pv-node/internal/config"
)

// UplinkEvent is the envelope forwarded for every uplink the console ingests.
// Object carries the decoded payload when a codec matched the port.
type UplinkEvent struct {
	Type       string                 `json:"type"`
	DevEUI     string                 `json:"devEUI"`
	DeviceName string                 `json:"deviceName,omitempty"`
	FCnt       uint32                 `json:"fCnt"`
	FPort      uint8                  `json:"fPort"`
	Data       []byte                 `json:"data"`
	Object     map[string]interface{} `json:"object,omitempty"`
	RSSI       int                    `json:"rssi,omitempty"`
	SNR        float64                `json:"snr,omitempty"`
	ReceivedAt time.Time              `json:"receivedAt"`
}

// JoinEvent is the envelope forwarded when a node starts a session.
type JoinEvent struct {
	Type     string    `json:"type"`
	DevEUI   string    `json:"devEUI"`
	DevAddr  string    `json:"devAddr"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Forwarder pushes ingested events to the configured external systems: an
// MQTT broker, an HTTP webhook, or both.
type Forwarder struct {
	cfg config.IntegrationConfig

	mqttClient mqtt.Client
	httpClient *http.Client
}

// NewForwarder builds a forwarder from static configuration. The MQTT client
// is created here but does not connect until Start.
func NewForwarder(cfg config.IntegrationConfig) *Forwarder {
	f := &Forwarder{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Webhook.Timeout,
		},
	}

	if cfg.MQTT.Enabled {
		f.mqttClient = mqtt.NewClient(f.mqttOptions())
	}

	return f
}

// Start connects the MQTT client and blocks until the context ends.
func (f *Forwarder) Start(ctx context.Context) error {
	if f.mqttClient != nil {
		// ConnectRetry keeps trying in the background; a broker that is down
		// at boot must not take the console down with it.
		token := f.mqttClient.Connect()
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			log.Error().Err(token.Error()).Msg("MQTT forwarder connect failed")
		}
	}

	log.Info().
		Bool("mqtt", f.cfg.MQTT.Enabled).
		Bool("webhook", f.cfg.Webhook.Enabled).
		Msg("Integration forwarder started")

	<-ctx.Done()

	if f.mqttClient != nil && f.mqttClient.IsConnected() {
		f.mqttClient.Disconnect(250)
	}

	return ctx.Err()
}

// ForwardUplink fans an uplink event out to the enabled integrations. Sends
// run in the background so the caller's receive window is not held up.
func (f *Forwarder) ForwardUplink(event UplinkEvent) {
	event.Type = "up"

	if f.cfg.MQTT.Enabled {
		go f.publish(f.topic(event.DevEUI, "up"), event)
	}
	if f.cfg.Webhook.Enabled {
		go f.post(event)
	}
}

// ForwardJoin fans a join event out to the enabled integrations.
func (f *Forwarder) ForwardJoin(event JoinEvent) {
	event.Type = "join"

	if f.cfg.MQTT.Enabled {
		go f.publish(f.topic(event.DevEUI, "join"), event)
	}
	if f.cfg.Webhook.Enabled {
		go f.post(event)
	}
}

func (f *Forwarder) mqttOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(f.cfg.MQTT.Broker)

	clientID := f.cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "pv-node-console"
	}
	opts.SetClientID(clientID)

	if f.cfg.MQTT.Username != "" {
		opts.SetUsername(f.cfg.MQTT.Username)
		opts.SetPassword(f.cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", f.cfg.MQTT.Broker).Msg("MQTT forwarder connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT forwarder connection lost")
	})

	return opts
}

func (f *Forwarder) topic(devEUI, suffix string) string {
	prefix := f.cfg.MQTT.TopicPrefix
	if prefix == "" {
		prefix = "pv-node"
	}
	return fmt.Sprintf("%s/%s/%s", prefix, devEUI, suffix)
}

func (f *Forwarder) publish(topic string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal MQTT event")
		return
	}

	token := f.mqttClient.Publish(topic, f.cfg.MQTT.QoS, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		log.Error().Str("topic", topic).Msg("MQTT publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish to MQTT")
		return
	}

	log.Debug().Str("topic", topic).Msg("Event published to MQTT")
}

func (f *Forwarder) post(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal webhook event")
		return
	}

	req, err := http.NewRequest(http.MethodPost, f.cfg.Webhook.URL, bytes.NewReader(data))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create webhook request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range f.cfg.Webhook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", f.cfg.Webhook.URL).Msg("Failed to post webhook")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("url", f.cfg.Webhook.URL).
			Msg("Webhook rejected event")
		return
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Str("url", f.cfg.Webhook.URL).
		Msg("Event posted to webhook")
}
