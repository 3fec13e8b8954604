// Package mqtt publishes sweep points to an MQTT topic so dashboards (for
// instance a home-automation panel) can show the current leave-now lateness
// risk as the sweep progresses.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/latecast/latecast/infra/metrics"
)

// Config holds the broker connection and topic settings.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "latecast"
	}
	if c.Topic == "" {
		c.Topic = "latecast/points"
	}
}

// Validate checks mandatory fields for an enabled publisher.
func (c Config) Validate() error {
	if c.Enabled && c.Broker == "" {
		return fmt.Errorf("mqtt broker is required when the publisher is enabled")
	}
	return nil
}

// client is the subset of the paho API the publisher uses.
type client interface {
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher sends sweep points to a broker.
type Publisher struct {
	client client
	cfg    Config
}

// NewPublisher connects to the broker and returns a publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	c := paho.NewClient(opts)
	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Publisher{client: c, cfg: cfg}, nil
}

type pointMessage struct {
	RunID       string    `json:"run_id"`
	LeaveTime   time.Time `json:"leave_time"`
	Probability float64   `json:"probability_late"`
	Samples     int       `json:"samples"`
	Gap         bool      `json:"gap"`
}

// PublishPoint sends one sweep point as JSON.
func (p *Publisher) PublishPoint(rec metrics.PointRecord) error {
	payload, err := json.Marshal(pointMessage{
		RunID:       rec.RunID,
		LeaveTime:   rec.LeaveTime,
		Probability: rec.Probability,
		Samples:     rec.Samples,
		Gap:         rec.Gap,
	})
	if err != nil {
		return err
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
