// Package config loads daemon settings from an optional YAML (or .env)
// file and TEMPLOGGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/temp-logger/internal/onewire"
	"github.com/sweeney/temp-logger/internal/sensor"
)

// EnvPrefix prefixes environment overrides, e.g. TEMPLOGGER_TRANSPORT_URL.
const EnvPrefix = "TEMPLOGGER"

// Transport kinds.
const (
	TransportHTTPS    = "https"
	TransportFallback = "fallback"
	TransportSerial   = "serial"
	TransportMQTT     = "mqtt"
	TransportNone     = "none"
)

// BusConfig locates one 1-Wire bus.
type BusConfig struct {
	Pin    int
	Master string
}

// Config is the complete daemon configuration.
type Config struct {
	SiteID   string
	DeviceID string

	OneWireRoot string
	BusA        BusConfig
	BusB        BusConfig
	Resolution  onewire.Resolution
	Names       sensor.Names
	Calibration []sensor.Coefficients

	Interval      time.Duration
	MinC          float64
	MaxC          float64
	RejectPowerOn bool

	LevelEnabled   bool
	LevelChip      string
	LevelPin       int
	LevelActiveLow bool

	DataDir       string
	QueueCapacity int

	RetryBase           time.Duration
	RetryMaxBackoff     time.Duration
	RetryMaxRetries     int
	RetryAttemptTimeout time.Duration

	Transport        string
	URL              string
	RelayURL         string
	APIKey           string
	HTTPTimeout      time.Duration
	SerialDevice     string
	SerialBaud       int
	SerialAckTimeout time.Duration
	MQTTBroker       string
	MQTTClientID     string

	ConsoleDevice string
	ConsoleBaud   int
	HTTPAddr      string

	WatchdogCycles int
	ClockFloor     time.Time
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site_id", "site")
	v.SetDefault("device_id", "temp-logger")

	v.SetDefault("onewire.root", onewire.DefaultSysfsRoot)
	v.SetDefault("onewire.bus_a.pin", 6)
	v.SetDefault("onewire.bus_a.master", "w1_bus_master1")
	v.SetDefault("onewire.bus_b.pin", 7)
	v.SetDefault("onewire.bus_b.master", "w1_bus_master2")
	v.SetDefault("onewire.resolution", 12)

	v.SetDefault("sample.interval", "60s")
	v.SetDefault("sample.min_c", -55.0)
	v.SetDefault("sample.max_c", 125.0)
	v.SetDefault("sample.reject_power_on", true)

	v.SetDefault("level.enabled", false)
	v.SetDefault("level.chip", "gpiochip0")
	v.SetDefault("level.pin", 5)
	v.SetDefault("level.active_low", true)

	v.SetDefault("storage.dir", "/mnt/sd")
	v.SetDefault("queue.capacity", 10)

	v.SetDefault("retry.base", "2s")
	v.SetDefault("retry.max_backoff", "5m")
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.attempt_timeout", "10s")

	v.SetDefault("transport.kind", TransportNone)
	v.SetDefault("transport.url", "")
	v.SetDefault("transport.relay_url", "")
	v.SetDefault("transport.api_key", "")
	v.SetDefault("transport.timeout", "10s")
	v.SetDefault("transport.serial.device", "/dev/ttyAMA0")
	v.SetDefault("transport.serial.baud", 115200)
	v.SetDefault("transport.serial.ack_timeout", "2s")
	v.SetDefault("transport.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("transport.mqtt.client_id", "")

	v.SetDefault("console.device", "")
	v.SetDefault("console.baud", 115200)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("watchdog.cycles", 60)
	v.SetDefault("clock.floor", "2024-01-01T00:00:00Z")
}

// Load reads path (if non-empty) and applies environment overrides on top
// of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		SiteID:   v.GetString("site_id"),
		DeviceID: v.GetString("device_id"),

		OneWireRoot: v.GetString("onewire.root"),
		BusA:        BusConfig{Pin: v.GetInt("onewire.bus_a.pin"), Master: v.GetString("onewire.bus_a.master")},
		BusB:        BusConfig{Pin: v.GetInt("onewire.bus_b.pin"), Master: v.GetString("onewire.bus_b.master")},
		Resolution:  onewire.Resolution(v.GetInt("onewire.resolution")),

		Interval:      v.GetDuration("sample.interval"),
		MinC:          v.GetFloat64("sample.min_c"),
		MaxC:          v.GetFloat64("sample.max_c"),
		RejectPowerOn: v.GetBool("sample.reject_power_on"),

		LevelEnabled:   v.GetBool("level.enabled"),
		LevelChip:      v.GetString("level.chip"),
		LevelPin:       v.GetInt("level.pin"),
		LevelActiveLow: v.GetBool("level.active_low"),

		DataDir:       v.GetString("storage.dir"),
		QueueCapacity: v.GetInt("queue.capacity"),

		RetryBase:           v.GetDuration("retry.base"),
		RetryMaxBackoff:     v.GetDuration("retry.max_backoff"),
		RetryMaxRetries:     v.GetInt("retry.max_retries"),
		RetryAttemptTimeout: v.GetDuration("retry.attempt_timeout"),

		Transport:        strings.ToLower(v.GetString("transport.kind")),
		URL:              v.GetString("transport.url"),
		RelayURL:         v.GetString("transport.relay_url"),
		APIKey:           v.GetString("transport.api_key"),
		HTTPTimeout:      v.GetDuration("transport.timeout"),
		SerialDevice:     v.GetString("transport.serial.device"),
		SerialBaud:       v.GetInt("transport.serial.baud"),
		SerialAckTimeout: v.GetDuration("transport.serial.ack_timeout"),
		MQTTBroker:       v.GetString("transport.mqtt.broker"),
		MQTTClientID:     v.GetString("transport.mqtt.client_id"),

		ConsoleDevice: v.GetString("console.device"),
		ConsoleBaud:   v.GetInt("console.baud"),
		HTTPAddr:      v.GetString("http.addr"),

		WatchdogCycles: v.GetInt("watchdog.cycles"),
	}

	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = cfg.DeviceID
	}

	floor, err := time.Parse(time.RFC3339, v.GetString("clock.floor"))
	if err != nil {
		return nil, fmt.Errorf("parse clock.floor: %w", err)
	}
	cfg.ClockFloor = floor

	cfg.Names = sensor.DefaultNames()
	if v.IsSet("sensor.names") {
		names := sensor.Names{}
		for k, val := range v.GetStringMapString("sensor.names") {
			names[strings.ToUpper(k)] = val
		}
		cfg.Names = names
	}

	if err := v.UnmarshalKey("calibration", &cfg.Calibration); err != nil {
		return nil, fmt.Errorf("parse calibration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is required"))
	}
	if !c.Resolution.Valid() {
		errs = append(errs, fmt.Errorf("onewire.resolution %d not in 9..12", c.Resolution))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sample.interval must be positive, got %s", c.Interval))
	}
	if c.MinC >= c.MaxC {
		errs = append(errs, fmt.Errorf("sample.min_c %.1f must be below sample.max_c %.1f", c.MinC, c.MaxC))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("queue.capacity must be positive, got %d", c.QueueCapacity))
	}
	if c.RetryMaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must be positive, got %d", c.RetryMaxRetries))
	}
	if c.RetryBase <= 0 || c.RetryMaxBackoff < c.RetryBase {
		errs = append(errs, fmt.Errorf("retry.base %s and retry.max_backoff %s must satisfy 0 < base <= max", c.RetryBase, c.RetryMaxBackoff))
	}
	if len(c.Calibration) > sensor.MaxSensors {
		errs = append(errs, fmt.Errorf("calibration has %d entries, max %d", len(c.Calibration), sensor.MaxSensors))
	}

	switch c.Transport {
	case TransportHTTPS:
		if c.URL == "" {
			errs = append(errs, errors.New("transport.url is required for https"))
		}
	case TransportFallback:
		if c.URL == "" || c.RelayURL == "" {
			errs = append(errs, errors.New("transport.url and transport.relay_url are required for fallback"))
		}
	case TransportSerial:
		if c.SerialDevice == "" {
			errs = append(errs, errors.New("transport.serial.device is required for serial"))
		}
	case TransportMQTT:
		if c.MQTTBroker == "" {
			errs = append(errs, errors.New("transport.mqtt.broker is required for mqtt"))
		}
	case TransportNone:
	default:
		errs = append(errs, fmt.Errorf("unknown transport.kind %q", c.Transport))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
