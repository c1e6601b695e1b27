package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lorawan-node/pv-node/internal/cycle"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// Config is the shared configuration for the node agent and the console.
type Config struct {
	Server      ServerConfig          `yaml:"server"`
	Log         LogConfig             `yaml:"log"`
	Device      DeviceConfig          `yaml:"device"`
	Schedule    []cycle.ScheduleEntry `yaml:"schedule"`
	Sleep       SleepConfig           `yaml:"sleep"`
	Battery     BatteryConfig         `yaml:"battery"`
	Policy      PolicyConfig          `yaml:"policy"`
	Modem       ModemConfig           `yaml:"modem"`
	Inverter    InverterConfig        `yaml:"inverter"`
	State       StateConfig           `yaml:"state"`
	API         APIConfig             `yaml:"api"`
	Database    DatabaseConfig        `yaml:"database"`
	NATS        NATSConfig            `yaml:"nats"`
	JWT         JWTConfig             `yaml:"jwt"`
	Integration IntegrationConfig     `yaml:"integration"`
}

// ServerConfig identifies the installation
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DeviceConfig carries the LoRaWAN identity of the node.
type DeviceConfig struct {
	DevEUI  lorawan.EUI64     `yaml:"dev_eui"`
	JoinEUI lorawan.EUI64     `yaml:"join_eui"`
	AppKey  lorawan.AES128Key `yaml:"app_key"`
	// NwkKey is only needed for LoRaWAN 1.1 activations.
	NwkKey lorawan.AES128Key `yaml:"nwk_key"`
	Region string            `yaml:"region"`
}

// SleepConfig holds the boot defaults for the sleep preferences and the
// non-negotiable floor.
type SleepConfig struct {
	Interval     uint16 `yaml:"interval"`      // seconds, default preference
	IntervalLong uint16 `yaml:"interval_long"` // seconds, weak-battery preference
	IntervalMin  uint16 `yaml:"interval_min"`  // seconds, hard floor
	Mode         string `yaml:"mode"`          // timer | rtc
}

// BatteryConfig holds the battery monitor wiring and thresholds.
type BatteryConfig struct {
	Monitor string  `yaml:"monitor"` // none | file
	Path    string  `yaml:"path"`    // voltage file for the file monitor
	Scale   float64 `yaml:"scale"`   // multiplier from file units to millivolts
	WeakMV  uint16  `yaml:"weak_mv"` // at or below: long sleep
	LowMV   uint16  `yaml:"low_mv"`  // at or below: skip the episode entirely
}

// PolicyConfig tunes radio behaviour per episode.
type PolicyConfig struct {
	ConfirmedEvery   uint32        `yaml:"confirmed_every"`    // frames, 0 disables
	LinkCheckEvery   uint32        `yaml:"link_check_every"`   // frames, 0 disables
	LWStatusInterval uint8         `yaml:"lw_status_interval"` // frames, 0 disables, default preference
	ClockSyncMaxAge  time.Duration `yaml:"clock_sync_max_age"`
	JoinBackoffBase  time.Duration `yaml:"join_backoff_base"`
	JoinBackoffMax   time.Duration `yaml:"join_backoff_max"`
}

// ModemConfig selects and configures the transport driver.
type ModemConfig struct {
	Driver        string        `yaml:"driver"` // at | nats
	Port          string        `yaml:"port"`   // serial device for the at driver
	Baud          int           `yaml:"baud"`
	URL           string        `yaml:"url"` // NATS URL for the nats driver
	RXWindow      time.Duration `yaml:"rx_window"`
	MaxPayloadLen int           `yaml:"max_payload_len"` // 0 derives the limit from the region
}

// InverterConfig configures the Modbus link to the PV inverter.
type InverterConfig struct {
	Transport string        `yaml:"transport"` // rtu | tcp
	Port      string        `yaml:"port"`      // serial device for rtu
	Baud      int           `yaml:"baud"`
	Address   string        `yaml:"address"` // host:port for tcp
	UnitID    uint8         `yaml:"unit_id"`
	Timeout   time.Duration `yaml:"timeout"`
}

// StateConfig locates the retained device state.
type StateConfig struct {
	Dir string `yaml:"dir"`
	// EncryptionKey is an optional hex-encoded 32-byte key. When set, the
	// session and nonce blobs are encrypted at rest.
	EncryptionKey string `yaml:"encryption_key"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// IntegrationConfig configures telemetry forwarding.
type IntegrationConfig struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// MQTTConfig represents the MQTT forwarder configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// WebhookConfig represents the HTTP forwarder configuration
type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// Default returns the configuration baseline. Load unmarshals on top of it,
// so absent keys keep these values while explicit zeros stick.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Name:    "pv-node",
			Version: "dev",
		},
		Log: LogConfig{
			Level: "info",
		},
		Device: DeviceConfig{
			Region: "EU868",
		},
		Schedule: []cycle.ScheduleEntry{
			{Port: 1, Multiplier: 1},
			{Port: 2, Multiplier: 5},
		},
		Sleep: SleepConfig{
			Interval:     360,
			IntervalLong: 900,
			IntervalMin:  60,
			Mode:         "timer",
		},
		Battery: BatteryConfig{
			Monitor: "none",
			Scale:   1,
			WeakMV:  3500,
			LowMV:   3200,
		},
		Policy: PolicyConfig{
			ConfirmedEvery:   64,
			LinkCheckEvery:   64,
			LWStatusInterval: 0,
			ClockSyncMaxAge:  24 * time.Hour,
			JoinBackoffBase:  time.Minute,
			JoinBackoffMax:   time.Hour,
		},
		Modem: ModemConfig{
			Driver:   "at",
			Baud:     115200,
			RXWindow: 6 * time.Second,
		},
		Inverter: InverterConfig{
			Transport: "rtu",
			Baud:      9600,
			UnitID:    1,
			Timeout:   2 * time.Second,
		},
		State: StateConfig{
			Dir: "/var/lib/pv-node",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		NATS: NATSConfig{
			MaxReconnects:     10,
			ReconnectInterval: 2 * time.Second,
		},
		JWT: JWTConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Integration: IntegrationConfig{
			Webhook: WebhookConfig{
				Timeout: 10 * time.Second,
			},
		},
	}
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if stateDir := os.Getenv("PVNODE_STATE_DIR"); stateDir != "" {
		c.State.Dir = stateDir
	}

	if driver := os.Getenv("PVNODE_MODEM_DRIVER"); driver != "" {
		c.Modem.Driver = driver
	}
}

// Validate rejects structurally broken configuration.
func (c *Config) Validate() error {
	for i, entry := range c.Schedule {
		if entry.Port == 0 {
			return fmt.Errorf("schedule entry %d: port must not be zero", i)
		}
	}

	if c.Sleep.IntervalMin == 0 {
		return fmt.Errorf("sleep.interval_min must not be zero")
	}

	switch c.Sleep.Mode {
	case "timer", "rtc":
	default:
		return fmt.Errorf("unknown sleep mode %q", c.Sleep.Mode)
	}

	switch c.Modem.Driver {
	case "at", "nats":
	default:
		return fmt.Errorf("unknown modem driver %q", c.Modem.Driver)
	}

	if _, ok := lorawan.Region(c.Device.Region); !ok {
		return fmt.Errorf("unknown region %q", c.Device.Region)
	}

	switch c.Inverter.Transport {
	case "rtu", "tcp":
	default:
		return fmt.Errorf("unknown inverter transport %q", c.Inverter.Transport)
	}

	if c.Battery.Monitor != "none" && c.Battery.Monitor != "file" {
		return fmt.Errorf("unknown battery monitor %q", c.Battery.Monitor)
	}

	// below low the node skips episodes entirely, below weak it merely
	// stretches the interval, so low must sit at or under weak
	if c.Battery.LowMV > c.Battery.WeakMV {
		return fmt.Errorf("battery.low_mv must not exceed battery.weak_mv")
	}

	return nil
}

// DefaultPrefs returns the preference defaults configured for first boot.
func (c *Config) DefaultPrefs() cycle.Prefs {
	return cycle.Prefs{
		SleepInterval:     c.Sleep.Interval,
		SleepIntervalLong: c.Sleep.IntervalLong,
		LWStatusInterval:  c.Policy.LWStatusInterval,
	}
}
