package client

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/models"
)

// MQTTConfig holds broker settings for the publisher
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTPublisher publishes every report as JSON to <Topic>/<node id>.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger zerolog.Logger
}

// NewMQTTPublisher creates a paho client for cfg. It does not connect; call
// Connect before the first report.
func NewMQTTPublisher(cfg MQTTConfig, logger zerolog.Logger) *MQTTPublisher {
	logger = logger.With().Str("component", "mqtt").Logger()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn().Err(err).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		})

	return NewMQTTPublisherWithClient(mqtt.NewClient(opts), cfg.Topic, cfg.QoS, logger)
}

// NewMQTTPublisherWithClient wraps an existing client.
func NewMQTTPublisherWithClient(client mqtt.Client, topic string, qos byte, logger zerolog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}
}

// Connect starts connecting to the broker. With connect retry enabled the
// client keeps trying in the background, so only a configuration error is
// returned within timeout.
func (p *MQTTPublisher) Connect(timeout time.Duration) error {
	token := p.client.Connect()
	if token.WaitTimeout(timeout) && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Topic returns the topic reports of nodeID are published to.
func (p *MQTTPublisher) Topic(nodeID string) string {
	return p.topic + "/" + nodeID
}

// Report publishes r without waiting for the broker. Failures are logged.
func (p *MQTTPublisher) Report(r *models.Report) {
	if !p.client.IsConnectionOpen() {
		p.logger.Debug().Uint32("reading", r.Sequence).Msg("MQTT not connected, skipping report")
		return
	}

	payload, err := json.Marshal(r)
	if err != nil {
		p.logger.Error().Err(err).Msg("Error marshalling report")
		return
	}

	token := p.client.Publish(p.Topic(r.NodeID), p.qos, false, payload)
	go func(seq uint32) {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.logger.Warn().Err(err).Uint32("reading", seq).Msg("Failed to publish report")
		}
	}(r.Sequence)
}

// Close disconnects from the broker, allowing in-flight messages 250 ms.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
