package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// IPublisher publishes JSON events on a topic.
type IPublisher interface {
	PublishJSON(topic string, v any) error
}

// Publisher publishes on a shared MQTT client.
type Publisher struct {
	client mqtt.Client
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishJSON marshals v and publishes it with the QoS of its topic family.
// It waits at most publishTimeout for the broker acknowledgement.
func (p *Publisher) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	token := p.client.Publish(topic, qosFor(topic), retainedFor(topic), payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Topic joins topic levels, dropping empty ones and stray separators.
func Topic(levels ...string) string {
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		if l = strings.Trim(l, "/ "); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "/")
}

// valve states and config are retained so late subscribers see the current value.
func retainedFor(topic string) bool {
	return strings.Contains(topic, "/valve/") || strings.HasSuffix(topic, "/status")
}
