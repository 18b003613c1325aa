package broker

import (
	"context"
	"log"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Handler func(topic string, message mqtt.Message) error

// Consumer subscribes a handler to one or more topics.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
}

func NewConsumer(client mqtt.Client, handler Handler, topics ...string) *Consumer {
	return &Consumer{client: client, topics: topics, handler: handler}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// qosFor: commands and state changes must not be lost, telemetry can.
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasSuffix(t, "/config") ||
		strings.Contains(t, "/valve/") ||
		strings.Contains(t, "/watering/") {
		return 1
	}
	return 0
}

// ConsumeMessage subscribes to every topic and blocks until ctx is done,
// then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	c.subscribe(c.client)

	<-ctx.Done()

	if len(c.topics) > 0 && c.client.IsConnectionOpen() {
		c.client.Unsubscribe(c.topics...).WaitTimeout(publishTimeout)
	}
}

func (c *Consumer) dispatch(_ mqtt.Client, msg mqtt.Message) {
	if c.handler == nil {
		log.Printf("broker: no handler set for %s", msg.Topic())
		return
	}
	if err := c.handler(msg.Topic(), msg); err != nil {
		log.Printf("broker: error handling message on %s: %v", msg.Topic(), err)
	}
}

func (c *Consumer) subscribe(client mqtt.Client) {
	for _, topic := range c.topics {
		token := client.Subscribe(topic, qosFor(topic), c.dispatch)
		token.Wait()
		if token.Error() != nil {
			log.Printf("broker: error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("broker: subscribed to %s", topic)
		}
	}
}

// Subscriptions replays the subscriptions of registered consumers. Pass its
// OnConnect to Config so they survive a reconnect.
type Subscriptions struct {
	mu        sync.Mutex
	consumers []*Consumer
}

func (s *Subscriptions) Add(c *Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers = append(s.consumers, c)
}

func (s *Subscriptions) OnConnect(client mqtt.Client) {
	s.mu.Lock()
	consumers := append([]*Consumer(nil), s.consumers...)
	s.mu.Unlock()

	for _, c := range consumers {
		c.subscribe(client)
	}
}
