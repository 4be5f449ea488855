// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/afroash/soil-monitor/internal/adc"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	configPath := writeConfig(t, `
node:
  id: "bed-03"
  location: "Greenhouse 1"

adc:
  driver: "iio"
  iio_device: "/sys/bus/iio/devices/iio:device0"
  reference_mv: 3300
  resolution_bits: 12
  attenuation: "11db"

uplink:
  url: "wss://example.com/node-stream"
  auth_token: "test-token-12345"
  connect_timeout: 10s
  reconnect_interval: 1s
  max_reconnect_interval: 5m
  ping_interval: 30s
  pong_timeout: 10s
  flush_interval: 20s
  batch_size: 25

mqtt:
  broker: "tcp://localhost:1883"
  topic: "farm/soil"
  qos: 1

buffer:
  size: 1000
  drop_oldest: true

logging:
  level: "info"
  format: "json"
  file_path: "/var/log/soil-node.log"
  max_size_mb: 10
  max_backups: 3
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Node.ID != "bed-03" {
		t.Errorf("Node.ID = %v, want bed-03", cfg.Node.ID)
	}
	if cfg.ADC.Driver != DriverIIO {
		t.Errorf("ADC.Driver = %v, want iio", cfg.ADC.Driver)
	}
	if cfg.ADC.Resolution() != adc.Width12Bit {
		t.Errorf("ADC.Resolution() = %v, want 12", cfg.ADC.Resolution())
	}
	if cfg.Uplink.FlushInterval != 20*time.Second {
		t.Errorf("Uplink.FlushInterval = %v, want 20s", cfg.Uplink.FlushInterval)
	}
	if cfg.Uplink.BatchSize != 25 {
		t.Errorf("Uplink.BatchSize = %v, want 25", cfg.Uplink.BatchSize)
	}
	if !cfg.MQTT.Enabled() || cfg.MQTT.Topic != "farm/soil" || cfg.MQTT.QoS != 1 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.MQTT.ClientID != "soil-monitor-bed-03" {
		t.Errorf("MQTT.ClientID = %v", cfg.MQTT.ClientID)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadConfig(writeConfig(t, "node: [unclosed")); err == nil {
		t.Error("expected error for malformed YAML")
	}
	if _, err := LoadConfig(writeConfig(t, "adc:\n  driver: sim\n")); err == nil {
		t.Error("expected error for missing node ID")
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.ADC.Driver != DriverSim {
		t.Errorf("Default ADC.Driver = %v, want sim", cfg.ADC.Driver)
	}
	if cfg.ADC.ReferenceMV != 3300 {
		t.Errorf("Default ADC.ReferenceMV = %v, want 3300", cfg.ADC.ReferenceMV)
	}
	if cfg.ADC.ResolutionBits != 12 {
		t.Errorf("Default ADC.ResolutionBits = %v, want 12", cfg.ADC.ResolutionBits)
	}
	if cfg.ADC.Attenuation != "11db" {
		t.Errorf("Default ADC.Attenuation = %v, want 11db", cfg.ADC.Attenuation)
	}
	if cfg.Uplink.Enabled() || cfg.MQTT.Enabled() {
		t.Error("uplink and MQTT should be disabled by default")
	}
	if cfg.Buffer.Size != 1000 {
		t.Errorf("Default Buffer.Size = %v, want 1000", cfg.Buffer.Size)
	}
	if !cfg.Buffer.DropOldest {
		t.Error("Default Buffer.DropOldest should be true")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Default Logging = %+v", cfg.Logging)
	}
}

func TestConfig_OverrideFromEnv(t *testing.T) {
	t.Setenv("NODE_ID", "env-node-01")
	t.Setenv("ADC_DRIVER", "iio")
	t.Setenv("UPLINK_URL", "wss://env-server.com/ws")
	t.Setenv("UPLINK_AUTH_TOKEN", "env-token-xyz")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := &Config{
		Node:    NodeConfig{ID: "config-node"},
		ADC:     ADCConfig{Driver: DriverSim},
		Uplink:  UplinkConfig{URL: "wss://config-server.com/ws", AuthToken: "config-token"},
		Logging: LoggingConfig{Level: "info"},
	}

	cfg.OverrideFromEnv()

	if cfg.Node.ID != "env-node-01" {
		t.Errorf("Node.ID = %v, want env-node-01", cfg.Node.ID)
	}
	if cfg.ADC.Driver != DriverIIO {
		t.Errorf("ADC.Driver = %v, want iio", cfg.ADC.Driver)
	}
	if cfg.Uplink.URL != "wss://env-server.com/ws" {
		t.Errorf("Uplink.URL = %v", cfg.Uplink.URL)
	}
	if cfg.Uplink.AuthToken != "env-token-xyz" {
		t.Errorf("Uplink.AuthToken = %v", cfg.Uplink.AuthToken)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("MQTT.Broker = %v", cfg.MQTT.Broker)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func validConfig() Config {
	cfg := Config{
		Node:   NodeConfig{ID: "node-01"},
		Uplink: UplinkConfig{URL: "wss://example.com/ws", AuthToken: "token123"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"uplink disabled", func(c *Config) { c.Uplink.URL = ""; c.Uplink.AuthToken = "" }, false},
		{"missing node ID", func(c *Config) { c.Node.ID = "" }, true},
		{"unknown driver", func(c *Config) { c.ADC.Driver = "spi" }, true},
		{"iio without device", func(c *Config) { c.ADC.Driver = DriverIIO }, true},
		{"iio with device", func(c *Config) { c.ADC.Driver = DriverIIO; c.ADC.IIODevice = "/sys/x" }, false},
		{"resolution too wide", func(c *Config) { c.ADC.ResolutionBits = 16 }, true},
		{"resolution too narrow", func(c *Config) { c.ADC.ResolutionBits = 8 }, true},
		{"unknown attenuation", func(c *Config) { c.ADC.Attenuation = "3db" }, true},
		{"zero reference", func(c *Config) { c.ADC.ReferenceMV = -1 }, true},
		{"missing auth token", func(c *Config) { c.Uplink.AuthToken = "" }, true},
		{"invalid URL scheme", func(c *Config) { c.Uplink.URL = "http://example.com/ws" }, true},
		{"reconnect too short", func(c *Config) { c.Uplink.ReconnectInterval = 100 * time.Millisecond }, true},
		{"mqtt qos", func(c *Config) { c.MQTT.Broker = "tcp://b:1883"; c.MQTT.QoS = 3 }, true},
		{"buffer size too small", func(c *Config) { c.Buffer.Size = 5 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantError && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_String_MasksToken(t *testing.T) {
	cfg := &Config{
		Node:   NodeConfig{ID: "node-01"},
		Uplink: UplinkConfig{URL: "wss://example.com/ws", AuthToken: "secret-token-12345"},
	}

	str := cfg.String()

	if strings.Contains(str, "secret-token-12345") {
		t.Error("String() should mask auth token")
	}
	if !strings.Contains(str, "secr****") {
		t.Error("String() should contain masked token")
	}
}

func TestLoadGatewayConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  auth_token: "gateway-secret"
  allowed_origins: ["http://localhost:3000"]
storage:
  db_path: "/tmp/soil.db"
  retention_days: 7
logging:
  level: "debug"
`)

	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("LoadGatewayConfig failed: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr() = %v", cfg.Server.Addr())
	}
	if cfg.Storage.RetentionDays != 7 {
		t.Errorf("RetentionDays = %v, want 7", cfg.Storage.RetentionDays)
	}
	if cfg.Storage.BatchSize != 100 || cfg.Storage.FlushPeriod != 5*time.Second {
		t.Errorf("storage defaults not applied: %+v", cfg.Storage)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestGatewayConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *GatewayConfig)
		wantError bool
	}{
		{"valid", func(c *GatewayConfig) {}, false},
		{"memory only", func(c *GatewayConfig) { c.Storage.DBPath = "" }, false},
		{"missing token", func(c *GatewayConfig) { c.Server.AuthToken = "" }, true},
		{"bad port", func(c *GatewayConfig) { c.Server.Port = 70000 }, true},
		{"small buffer", func(c *GatewayConfig) { c.Storage.BufferSize = 5 }, true},
		{"channel smaller than batch", func(c *GatewayConfig) { c.Storage.ChannelSize = 10; c.Storage.BatchSize = 50 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GatewayConfig{
				Server:  ServerSettings{AuthToken: "token"},
				Storage: StorageSettings{DBPath: "soil.db"},
			}
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestGatewayConfig_String_MasksToken(t *testing.T) {
	cfg := &GatewayConfig{Server: ServerSettings{AuthToken: "gateway-secret"}}
	if str := cfg.String(); strings.Contains(str, "gateway-secret") {
		t.Errorf("String() leaked token: %s", str)
	}
}
