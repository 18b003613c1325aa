// Package broker wraps the MQTT client used for the local event bus.
package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
	// Will is published by the broker if the connection drops.
	WillTopic   string
	WillPayload string
	// OnConnect runs after the first connect and after every automatic
	// reconnect. The session is clean, so subscriptions must be replayed here.
	OnConnect mqtt.OnConnectHandler
}

// Connect dials the broker, retrying with exponential backoff, and closes the
// connection when ctx ends.
func Connect(ctx context.Context, cfg *Config) (mqtt.Client, error) {
	connAddr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 1, true)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Printf("broker: session established with %s", connAddr)
		if cfg.OnConnect != nil {
			cfg.OnConnect(c)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("broker: connection lost: %v", err)
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := 5

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("broker: failed to connect to %s: %v", connAddr, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Printf("broker: connected to %s", connAddr)

	go func() {
		<-ctx.Done()
		Close(client)
	}()

	return client, nil
}

// Close disconnects the client if it is still connected.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		log.Println("broker: connection closed")
	}
}
