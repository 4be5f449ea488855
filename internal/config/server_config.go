package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig holds configuration for the gateway that collects reports
// from the nodes
type GatewayConfig struct {
	Server  ServerSettings  `yaml:"server"`
	Storage StorageSettings `yaml:"storage"`
	Logging LoggingConfig   `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AuthToken      string        `yaml:"auth_token"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageSettings contains storage configuration. An empty DBPath keeps
// reports in memory only.
type StorageSettings struct {
	BufferSize    int           `yaml:"buffer_size"`
	DBPath        string        `yaml:"db_path"`
	RetentionDays int           `yaml:"retention_days"`
	BatchSize     int           `yaml:"batch_size"`
	FlushPeriod   time.Duration `yaml:"flush_period"`
	ChannelSize   int           `yaml:"channel_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

// LoadGatewayConfig loads gateway configuration from a YAML file
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var config GatewayConfig
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

// ApplyDefaults sets default values for gateway config
func (gc *GatewayConfig) ApplyDefaults() {
	if gc.Server.Port == 0 {
		gc.Server.Port = 8081
	}
	if gc.Server.Host == "" {
		gc.Server.Host = "localhost"
	}
	if gc.Server.ReadTimeout == 0 {
		gc.Server.ReadTimeout = 60 * time.Second
	}
	if gc.Server.WriteTimeout == 0 {
		gc.Server.WriteTimeout = 10 * time.Second
	}
	if gc.Storage.BufferSize == 0 {
		gc.Storage.BufferSize = 100
	}
	if gc.Storage.RetentionDays == 0 {
		gc.Storage.RetentionDays = 30
	}
	if gc.Storage.BatchSize == 0 {
		gc.Storage.BatchSize = 100
	}
	if gc.Storage.FlushPeriod == 0 {
		gc.Storage.FlushPeriod = 5 * time.Second
	}
	if gc.Storage.ChannelSize == 0 {
		gc.Storage.ChannelSize = 1000
	}
	if gc.Storage.CleanupPeriod == 0 {
		gc.Storage.CleanupPeriod = 24 * time.Hour
	}
	gc.Logging.applyDefaults()
}

// OverrideFromEnv overrides config from environment variables
func (gc *GatewayConfig) OverrideFromEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			gc.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		gc.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		gc.Server.AuthToken = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		gc.Storage.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		gc.Logging.Level = v
	}
}

// Validate checks if gateway configuration is valid
func (gc *GatewayConfig) Validate() error {
	if gc.Server.Port < 1 || gc.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if gc.Server.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if gc.Storage.BufferSize < 10 {
		return fmt.Errorf("buffer size must be at least 10")
	}
	if gc.Storage.DBPath != "" {
		if gc.Storage.RetentionDays < 1 {
			return fmt.Errorf("retention days must be positive")
		}
		if gc.Storage.BatchSize < 1 || gc.Storage.ChannelSize < gc.Storage.BatchSize {
			return fmt.Errorf("channel size must be at least the batch size")
		}
	}
	return gc.Logging.validate()
}

// String returns a safe string representation (hides auth token)
func (gc *GatewayConfig) String() string {
	server := gc.Server
	server.AuthToken = maskToken(server.AuthToken)
	return fmt.Sprintf("GatewayConfig{Server: %+v, Storage: %+v, Logging: %+v}",
		server,
		gc.Storage,
		gc.Logging,
	)
}
