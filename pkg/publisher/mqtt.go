package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const defaultPublishTimeout = 5 * time.Second

var ErrPublishTimeout = errors.New("mqtt publish timed out")

type MQTTPublisher struct {
	client mqtt.Client
	qos    byte
}

func NewMQTTPublisher(cfg Config) (*MQTTPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", cfg.QoS)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", cfg.Broker, err)
	}

	return &MQTTPublisher{client: client, qos: cfg.QoS}, nil
}

// Publish waits for the broker acknowledgement until ctx expires.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	timeout := defaultPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
