package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/afroash/soil-monitor/internal/adc"
)

// ADC drivers understood by the node.
const (
	DriverSim = "sim"
	DriverIIO = "iio"
)

// Config holds all configuration for a sensor node
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	ADC     ADCConfig     `yaml:"adc"`
	Uplink  UplinkConfig  `yaml:"uplink"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Logging LoggingConfig `yaml:"logging"`
}

// NodeConfig identifies the node
type NodeConfig struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
}

// ADCConfig selects the converter and the settings shared by all channels
type ADCConfig struct {
	// Driver is "sim" or "iio".
	Driver string `yaml:"driver"`
	// IIODevice is the sysfs directory of the converter, e.g.
	// /sys/bus/iio/devices/iio:device0. Only used by the iio driver.
	IIODevice      string `yaml:"iio_device"`
	ReferenceMV    int    `yaml:"reference_mv"`
	ResolutionBits int    `yaml:"resolution_bits"`
	Attenuation    string `yaml:"attenuation"`
}

// Resolution returns the configured conversion width.
func (a ADCConfig) Resolution() adc.Resolution {
	return adc.Resolution(a.ResolutionBits)
}

// UplinkConfig contains connection settings for the gateway. An empty URL
// disables the uplink.
type UplinkConfig struct {
	URL                  string        `yaml:"url"`
	AuthToken            string        `yaml:"auth_token"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	FlushInterval        time.Duration `yaml:"flush_interval"`
	BatchSize            int           `yaml:"batch_size"`
}

// Enabled reports whether reports are streamed to a gateway.
func (u UplinkConfig) Enabled() bool { return u.URL != "" }

// MQTTConfig contains broker settings. An empty broker disables publishing.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// Enabled reports whether reports are published to a broker.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// BufferConfig contains settings for the report buffer
type BufferConfig struct {
	Size       int  `yaml:"size"`
	DropOldest bool `yaml:"drop_oldest"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

func (l *LoggingConfig) applyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 100
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 10
	}
}

func (l LoggingConfig) validate() error {
	switch l.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be json or text, got %q", l.Format)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.ADC.Driver == "" {
		c.ADC.Driver = DriverSim
	}
	if c.ADC.ReferenceMV == 0 {
		c.ADC.ReferenceMV = 3300
	}
	if c.ADC.ResolutionBits == 0 {
		c.ADC.ResolutionBits = int(adc.Width12Bit)
	}
	if c.ADC.Attenuation == "" {
		c.ADC.Attenuation = adc.Atten11dB.String()
	}
	if c.Uplink.ConnectTimeout == 0 {
		c.Uplink.ConnectTimeout = 10 * time.Second
	}
	if c.Uplink.ReconnectInterval == 0 {
		c.Uplink.ReconnectInterval = 1 * time.Second
	}
	if c.Uplink.MaxReconnectInterval == 0 {
		c.Uplink.MaxReconnectInterval = 5 * time.Minute
	}
	if c.Uplink.PingInterval == 0 {
		c.Uplink.PingInterval = 30 * time.Second
	}
	if c.Uplink.PongTimeout == 0 {
		c.Uplink.PongTimeout = 10 * time.Second
	}
	if c.Uplink.FlushInterval == 0 {
		c.Uplink.FlushInterval = 10 * time.Second
	}
	if c.Uplink.BatchSize == 0 {
		c.Uplink.BatchSize = 50
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "soil-monitor/reports"
	}
	if c.MQTT.ClientID == "" && c.Node.ID != "" {
		c.MQTT.ClientID = "soil-monitor-" + c.Node.ID
	}
	if c.Buffer.Size == 0 {
		c.Buffer.Size = 1000
		c.Buffer.DropOldest = true
	}
	c.Logging.applyDefaults()
}

// OverrideFromEnv overrides config values from environment variables
func (c *Config) OverrideFromEnv() {
	if v := os.Getenv("NODE_ID"); v != "" {
		c.Node.ID = v
	}
	if v := os.Getenv("NODE_LOCATION"); v != "" {
		c.Node.Location = v
	}
	if v := os.Getenv("ADC_DRIVER"); v != "" {
		c.ADC.Driver = v
	}
	if v := os.Getenv("UPLINK_URL"); v != "" {
		c.Uplink.URL = v
	}
	if v := os.Getenv("UPLINK_AUTH_TOKEN"); v != "" {
		c.Uplink.AuthToken = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node ID is required")
	}

	switch c.ADC.Driver {
	case DriverSim:
	case DriverIIO:
		if c.ADC.IIODevice == "" {
			return fmt.Errorf("adc.iio_device is required for the iio driver")
		}
	default:
		return fmt.Errorf("unknown ADC driver %q", c.ADC.Driver)
	}
	if c.ADC.ReferenceMV <= 0 {
		return fmt.Errorf("adc reference voltage must be positive")
	}
	if !c.ADC.Resolution().Valid() {
		return fmt.Errorf("%w: %d bits", adc.ErrInvalidResolution, c.ADC.ResolutionBits)
	}
	if _, err := adc.ParseAttenuation(c.ADC.Attenuation); err != nil {
		return err
	}

	if c.Uplink.Enabled() {
		if !strings.HasPrefix(c.Uplink.URL, "ws://") && !strings.HasPrefix(c.Uplink.URL, "wss://") {
			return fmt.Errorf("uplink URL must start with ws:// or wss://")
		}
		if c.Uplink.AuthToken == "" {
			return fmt.Errorf("uplink auth token is required")
		}
		if c.Uplink.ReconnectInterval < 1*time.Second {
			return fmt.Errorf("reconnect interval must be at least 1 second")
		}
		if c.Uplink.BatchSize < 1 {
			return fmt.Errorf("batch size must be positive")
		}
	}

	if c.MQTT.Enabled() && c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}

	if c.Buffer.Size < 10 || c.Buffer.Size > 100000 {
		return fmt.Errorf("buffer size must be between 10 and 100000")
	}
	return c.Logging.validate()
}

// String returns a safe string representation (hides auth token)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Node: %+v, ADC: %+v, Uplink: [URL=%s, Token=%s], MQTT: %+v, Buffer: %+v, Logging: %+v}",
		c.Node,
		c.ADC,
		c.Uplink.URL,
		maskToken(c.Uplink.AuthToken),
		c.MQTT,
		c.Buffer,
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
