// Package publisher sends call events to a message broker.
package publisher

import "context"

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Config is read with the MQTT prefix. Publishing is disabled when Broker is empty.
type Config struct {
	Broker      string `split_words:"true"`
	ClientID    string `split_words:"true" default:"resto-voice-agent"`
	Username    string `split_words:"true"`
	Password    string `split_words:"true"`
	QoS         byte   `envconfig:"QOS" default:"1"`
	TopicPrefix string `split_words:"true" default:"resto"`
}

func (c Config) Enabled() bool {
	return c.Broker != ""
}
