package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
)

// MQTTConfig configures the MQTT notifier.
type MQTTConfig struct {
	// Broker is host:port of the MQTT broker.
	Broker   string
	ClientID string
	// Topic is the prefix; alerts go to <Topic>/alerts and the indicator
	// level to <Topic>/status.
	Topic string
	QoS   byte
}

// MQTT publishes alerts and indicator levels to an MQTT broker.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

var (
	_ sink.Notifier  = (*MQTT)(nil)
	_ sink.Indicator = (*MQTT)(nil)
)

// alertMessage is the JSON payload on the alerts topic.
type alertMessage struct {
	Title    string        `json:"title"`
	Body     string        `json:"body"`
	Severity posture.Level `json:"severity"`
	Time     time.Time     `json:"time"`
}

// statusMessage is the JSON payload on the status topic.
type statusMessage struct {
	Level posture.Level `json:"level"`
	Time  time.Time     `json:"time"`
}

// NewMQTT creates an MQTT notifier. Call Connect before use.
func NewMQTT(cfg MQTTConfig) *MQTT {
	if cfg.Topic == "" {
		cfg.Topic = "posturepilot"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "posturepilot"
	}
	return &MQTT{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection. The client reconnects on its
// own after a lost connection.
func (m *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", m.cfg.Broker))
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		m.setConnected(true)
		log.Printf("MQTT connected to %s", m.cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.setConnected(false)
		log.Printf("MQTT connection lost: %v", err)
	}

	m.client = mqtt.NewClient(opts)

	if err := wait(ctx, m.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.cfg.Broker, err)
	}
	m.setConnected(true)
	return nil
}

// Notify publishes n to the alerts topic.
func (m *MQTT) Notify(ctx context.Context, n sink.Notification) error {
	return m.publish(ctx, m.cfg.Topic+"/alerts", alertMessage{
		Title:    n.Title,
		Body:     n.Body,
		Severity: n.Severity,
		Time:     time.Now(),
	}, false)
}

// SetIndicator publishes level to the status topic as a retained message.
func (m *MQTT) SetIndicator(level posture.Level) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.publish(ctx, m.cfg.Topic+"/status", statusMessage{Level: level, Time: time.Now()}, true)
}

// Disconnect closes the broker connection.
func (m *MQTT) Disconnect() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		log.Println("MQTT disconnected")
	}
	m.setConnected(false)
}

// MQTTStats reports publish counts.
type MQTTStats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns publish statistics.
func (m *MQTT) Stats() MQTTStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	published := make(map[string]uint64, len(m.published))
	for k, v := range m.published {
		published[k] = v
	}
	return MQTTStats{Connected: m.connected, Published: published, Errors: m.errors}
}

func (m *MQTT) publish(ctx context.Context, topic string, v any, retain bool) error {
	if !m.isConnected() {
		m.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		m.countError()
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	if err := wait(ctx, m.client.Publish(topic, m.cfg.QoS, retain, payload)); err != nil {
		m.countError()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	m.mu.Lock()
	m.published[topic]++
	m.mu.Unlock()
	return nil
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) isConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && m.client != nil
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MQTT) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}
