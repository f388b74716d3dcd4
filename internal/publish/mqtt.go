// Package publish pushes built dashboards to remote displays over MQTT.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/forecast"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
)

// QoS and retain flag used for every dashboard topic.
const (
	qos    byte = 1
	retain      = true
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// tokenPublisher is the subset of mqtt.Client used for publishing.
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Config configures the MQTT publisher.
type Config struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Timeout     time.Duration
}

// Publisher publishes each dashboard to {prefix}/dashboard and the headline
// values to {prefix}/overall_min, {prefix}/overall_max and {prefix}/updated.
type Publisher struct {
	client  tokenPublisher
	closer  func()
	prefix  string
	timeout time.Duration
	enabled bool
	logger  *zap.Logger
}

// NewPublisher connects to the broker. A disabled config returns a Publisher
// whose Publish is a no-op.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Publisher{enabled: false, logger: logger}, nil
	}
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required when publishing is enabled")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "weather-forecast-display"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	timeout := timeoutOrDefault(cfg.Timeout)
	if !token.WaitTimeout(timeout) {
		logger.Warn("mqtt connect pending, retrying in background", zap.String("broker", cfg.Broker))
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	p := newPublisher(client, cfg.TopicPrefix, timeout, logger)
	p.closer = func() { client.Disconnect(250) }
	return p, nil
}

func newPublisher(client tokenPublisher, prefix string, timeout time.Duration, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:  client,
		prefix:  strings.TrimRight(prefix, "/"),
		timeout: timeoutOrDefault(timeout),
		enabled: true,
		logger:  logger,
	}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Enabled reports whether Publish sends anything.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Topic returns the full topic for name.
func (p *Publisher) Topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "/" + name
}

// Publish sends d. The dashboard topic is published first; headline topics
// follow and their failures are counted and logged, not returned.
func (p *Publisher) Publish(ctx context.Context, d *forecast.Dashboard) error {
	if !p.enabled || d == nil {
		return nil
	}
	payload, err := json.Marshal(d)
	if err != nil {
		observability.MQTTPublishesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal dashboard: %w", err)
	}
	if err := p.send(ctx, p.Topic("dashboard"), payload); err != nil {
		observability.MQTTPublishesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish dashboard: %w", err)
	}

	headlines := []struct {
		name  string
		value string
	}{
		{"overall_min", forecast.FormatTemperature(d.Overall.Min, 1)},
		{"overall_max", forecast.FormatTemperature(d.Overall.Max, 1)},
		{"updated", d.UpdatedLabel},
	}
	logger := observability.LoggerFrom(ctx, p.logger)
	for _, h := range headlines {
		topic := p.Topic(h.name)
		if err := p.send(ctx, topic, []byte(h.value)); err != nil {
			observability.MQTTPublishesTotal.WithLabelValues("partial").Inc()
			logger.Warn("failed to publish headline", zap.String("topic", topic), zap.Error(err))
			return nil
		}
	}
	observability.MQTTPublishesTotal.WithLabelValues("success").Inc()
	return nil
}

func (p *Publisher) send(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := p.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
