// Package bus wraps the MQTT client used to talk to robots and to
// receive broker events. Publishes are best-effort: a failed or timed
// out publish returns false and the caller moves on, since the next
// robot event re-issues the state naturally.
package bus

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Publisher is the outbound half of the bus. The device and operator
// handlers depend on it so tests can capture publishes in memory.
type Publisher interface {
	Publish(topic string, payload []byte) bool
}

// Handler receives one inbound message.
type Handler func(topic, payload string)

// Config configures a bus client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// PublishTimeout bounds how long a publish may wait for the broker.
	PublishTimeout time.Duration
	Logger         zerolog.Logger
}

// Client is a connected MQTT client. Subscriptions are replayed after a
// reconnect.
type Client struct {
	cli     mqtt.Client
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// Connect dials the broker and blocks until the session is up.
func Connect(cfg Config) (*Client, error) {
	c := &Client{
		timeout: cfg.PublishTimeout,
		log:     cfg.Logger.With().Str("component", "bus").Logger(),
		subs:    make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.Warn().Err(err).Msg("broker connection lost")
		})

	c.cli = mqtt.NewClient(opts)
	token := c.cli.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("bus: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("bus: connect to %s: %w", cfg.Broker, err)
	}
	c.log.Info().Str("broker", cfg.Broker).Msg("connected")
	return c, nil
}

// onConnect replays subscriptions so a broker restart does not silently
// drop the ingress topics.
func (c *Client) onConnect(cli mqtt.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for filter, h := range c.subs {
		c.subscribe(cli, filter, h)
	}
}

// Publish sends one message at QoS 0. Returns false on timeout or error.
func (c *Client) Publish(topic string, payload []byte) bool {
	token := c.cli.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(c.timeout) {
		c.log.Warn().Str("topic", topic).Msg("publish timed out")
		return false
	}
	if err := token.Error(); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
		return false
	}
	return true
}

// Subscribe registers a handler for a topic filter ('+'/'#' wildcards).
func (c *Client) Subscribe(filter string, h Handler) bool {
	c.mu.Lock()
	c.subs[filter] = h
	c.mu.Unlock()
	return c.subscribe(c.cli, filter, h)
}

func (c *Client) subscribe(cli mqtt.Client, filter string, h Handler) bool {
	token := cli.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), string(msg.Payload()))
	})
	if !token.WaitTimeout(c.timeout) {
		c.log.Warn().Str("filter", filter).Msg("subscribe timed out")
		return false
	}
	if err := token.Error(); err != nil {
		c.log.Warn().Err(err).Str("filter", filter).Msg("subscribe failed")
		return false
	}
	c.log.Info().Str("filter", filter).Msg("subscribed")
	return true
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (c *Client) Close() {
	c.cli.Disconnect(250)
}
