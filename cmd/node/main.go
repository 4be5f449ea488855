package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/adc"
	"github.com/afroash/soil-monitor/internal/client"
	"github.com/afroash/soil-monitor/internal/config"
	"github.com/afroash/soil-monitor/internal/logging"
	"github.com/afroash/soil-monitor/internal/models"
	"github.com/afroash/soil-monitor/internal/monitor"
	"github.com/afroash/soil-monitor/internal/sensor"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "configs/node.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	logger.Info().
		Str("version", version).
		Str("node_id", cfg.Node.ID).
		Str("driver", cfg.ADC.Driver).
		Msg("Starting soil monitor node")
	logger.Debug().Msg(cfg.String())

	hw, err := openPeripherals(cfg.ADC)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open ADC")
	}
	defer hw.Close()

	// The node samples until power-off; nothing ever cancels this context.
	if err := run(context.Background(), cfg, hw, clock.New(), logger); err != nil {
		logger.Fatal().Err(err).Msg("Monitor stopped")
	}
}

// openPeripherals selects the converter backend named in cfg
func openPeripherals(cfg config.ADCConfig) (adc.Peripherals, error) {
	switch cfg.Driver {
	case config.DriverSim:
		return adc.NewSimulated(adc.DefaultSimConfig()), nil
	case config.DriverIIO:
		if _, err := os.Stat(cfg.IIODevice); err != nil {
			return nil, fmt.Errorf("iio device: %w", err)
		}
		channels := make([]adc.Channel, 0, 3)
		for _, ch := range sensor.Channels() {
			channels = append(channels, ch.ADC)
		}
		return adc.NewIIOPeripherals(cfg.IIODevice, cfg.ResolutionBits, channels...), nil
	default:
		return nil, fmt.Errorf("unknown adc driver %q", cfg.Driver)
	}
}

// run wires the reporters and drives the monitor until ctx is done. Uplink
// and MQTT failures are logged and retried in the background; only a
// converter configuration fault ends the run early.
func run(ctx context.Context, cfg *config.Config, hw adc.Peripherals, clk clock.Clock, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	node := models.NewNodeInfo(cfg.Node.ID, cfg.Node.Location, cfg.ADC.Driver, version)
	reporters := []monitor.Reporter{monitor.NewLogReporter(logger)}

	if cfg.Uplink.Enabled() {
		buffer := client.NewReportBuffer(cfg.Buffer.Size, cfg.Buffer.DropOldest)
		conn := client.NewConnection(client.ConnectionConfig{
			URL:                  cfg.Uplink.URL,
			AuthToken:            cfg.Uplink.AuthToken,
			ConnectTimeout:       cfg.Uplink.ConnectTimeout,
			ReconnectInterval:    cfg.Uplink.ReconnectInterval,
			MaxReconnectInterval: cfg.Uplink.MaxReconnectInterval,
			PingInterval:         cfg.Uplink.PingInterval,
			PongTimeout:          cfg.Uplink.PongTimeout,
		}, node, buffer, logger)
		defer conn.Close()

		uplink := client.NewUplink(buffer, conn, client.UplinkConfig{
			BatchSize:     cfg.Uplink.BatchSize,
			FlushInterval: cfg.Uplink.FlushInterval,
		}, clk, logger)
		reporters = append(reporters, uplink)

		go func() {
			if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("Uplink connection stopped")
			}
		}()
		go uplink.Run(ctx)
	}

	if cfg.MQTT.Enabled() {
		publisher := client.NewMQTTPublisher(client.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		}, logger)
		// paho keeps retrying in the background when the first attempt fails
		if err := publisher.Connect(5 * time.Second); err != nil {
			logger.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT not connected yet")
		}
		defer publisher.Close()
		reporters = append(reporters, publisher)
	}

	atten, err := adc.ParseAttenuation(cfg.ADC.Attenuation)
	if err != nil {
		return err
	}
	m := monitor.New(monitor.Config{
		NodeID:      cfg.Node.ID,
		ReferenceMV: cfg.ADC.ReferenceMV,
		Resolution:  cfg.ADC.Resolution(),
		Attenuation: atten,
	}, hw, clk, logger, reporters...)

	return m.Run(ctx)
}
