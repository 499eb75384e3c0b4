package notify

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTConfig holds MQTT notifier settings.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	TopicPrefix    string
	PublishTimeout time.Duration
}

// MQTTNotifier publishes messages to a per-recipient topic on an MQTT
// broker. A home-automation bridge on the other side turns them into
// whatever the household actually reads (iMessage, push, a wall display).
type MQTTNotifier struct {
	client  paho.Client
	prefix  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewMQTTNotifier connects to the broker and returns a notifier.
func NewMQTTNotifier(cfg MQTTConfig, logger zerolog.Logger) (*MQTTNotifier, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "hubwatch"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "home/notify"
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTNotifier{
		client:  client,
		prefix:  cfg.TopicPrefix,
		timeout: cfg.PublishTimeout,
		logger:  logger.With().Str("component", "notify").Logger(),
	}, nil
}

// Send publishes the message to the recipient's topic.
func (n *MQTTNotifier) Send(ctx context.Context, recipient, message string) error {
	topic := fmt.Sprintf("%s/%s", n.prefix, recipient)

	// QoS 1 (at-least-once): warnings and shutdown notices must arrive.
	token := n.client.Publish(topic, 1, false, message)

	timeout := n.timeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until < timeout {
			timeout = until
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	n.logger.Info().Str("recipient", recipient).Str("message", message).Msg("Message sent")
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() error {
	n.client.Disconnect(1000) // 1 second timeout
	return nil
}
