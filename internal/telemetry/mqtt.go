// Package telemetry bridges bus readings to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dynaflow/dynaflow/internal/config"
	"github.com/dynaflow/dynaflow/internal/storage"
)

// Publisher pushes samples and scan results to an MQTT broker. A nil
// Publisher is valid and drops everything, so callers need no enabled
// checks at every publish site.
type Publisher struct {
	client    mqtt.Client
	topicBase string
	qos       byte
}

// NewPublisher connects to the configured broker. Returns (nil, nil) when
// no broker is configured.
func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, nil
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "dynaflow-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetWill(cfg.TopicBase+"/status", "offline", byte(cfg.QoS), true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s failed: %w", cfg.Broker, err)
	}

	p := &Publisher{
		client:    client,
		topicBase: cfg.TopicBase,
		qos:       byte(cfg.QoS),
	}
	p.publish(cfg.TopicBase+"/status", "online", true)

	return p, nil
}

// PublishSample publishes one register reading.
func (p *Publisher) PublishSample(s storage.Sample) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return
	}
	topic := fmt.Sprintf("%s/servo/%d/%s", p.topicBase, s.ServoID, s.Register)
	p.publish(topic, payload, false)
}

// PublishScan publishes one bus sweep result.
func (p *Publisher) PublishScan(s storage.Scan) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return
	}
	p.publish(p.topicBase+"/scan", payload, true)
}

func (p *Publisher) publish(topic string, payload interface{}, retain bool) {
	token := p.client.Publish(topic, p.qos, retain, payload)
	token.WaitTimeout(time.Second)
}

// Close announces offline status and disconnects.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.publish(p.topicBase+"/status", "offline", true)
	p.client.Disconnect(250)
}
