// Package iotmqtt drives Ultralight 2.0 devices over MQTT. A Client
// plays the device side of the conversation with an IoT Agent:
// measurements go up to the agent's southbound topics, command
// requests come back down and are dispatched to registered handlers,
// and command results are reported so the agent can update the command
// status on the entity.
//
// Subscriptions survive reconnects: the client tracks every command
// subscription and restores it when the underlying connection comes
// back. Handlers run on the delivery goroutines of the MQTT library
// and are shielded from panics.
package iotmqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
	"github.com/SystemsPurge/FiLiP/pkg/ultralight"
)

// Static errors for the MQTT device client.
var (
	// ErrBrokerRequired is returned when no MQTT broker URL is
	// configured.
	ErrBrokerRequired = errors.New("mqtt broker URL is required")

	// ErrClientIDRequired is returned when no client id is configured.
	ErrClientIDRequired = errors.New("mqtt client id is required")

	// ErrNotConnected is returned for operations on a client whose
	// connection is down.
	ErrNotConnected = errors.New("mqtt client is not connected")

	// ErrConnectFailed is returned when the initial connection cannot
	// be established.
	ErrConnectFailed = errors.New("mqtt connect failed")

	// ErrPublishFailed is returned when a publish is not acknowledged.
	ErrPublishFailed = errors.New("mqtt publish failed")

	// ErrSubscribeFailed is returned when a subscription is not
	// acknowledged.
	ErrSubscribeFailed = errors.New("mqtt subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe is not
	// acknowledged.
	ErrUnsubscribeFailed = errors.New("mqtt unsubscribe failed")
)

const (
	keepAlive         = 60 * time.Second
	disconnectQuiesce = 1000 // milliseconds
)

// newPahoClient builds the underlying MQTT client; tests swap it to
// drive the client against a scripted broker double.
var newPahoClient = pahomqtt.NewClient

// CommandHandler consumes one decoded command request. Handlers run
// on the delivery goroutines of the MQTT library and must not block
// for long.
type CommandHandler func(cmd ultralight.Command)

// Config holds the connection settings of the device client.
type Config struct {
	// BrokerURL is the MQTT endpoint, e.g. "tcp://mosquitto:1883" or
	// "ssl://mosquitto:8883".
	BrokerURL string

	// ClientID identifies this client to the broker.
	ClientID string

	// Username and Password authenticate against the broker when set.
	Username string
	Password string

	// QoS is the delivery guarantee for publishes and subscriptions.
	// The zero value falls back to the default of 1 (at least once).
	QoS byte

	// ConnectTimeout bounds the initial connection attempt. Zero means
	// the package default.
	ConnectTimeout time.Duration

	// PublishTimeout bounds publish and subscribe acknowledgments.
	// Zero means the package default.
	PublishTimeout time.Duration

	// Logger receives handler panics and dropped-frame reports when
	// set.
	Logger ngsi.Logger
}

// Client is an Ultralight 2.0 device client on top of MQTT.
type Client struct {
	client         pahomqtt.Client
	qos            byte
	publishTimeout time.Duration
	logger         ngsi.Logger

	mu            sync.RWMutex
	subscriptions map[string]subscription
}

type subscription struct {
	topic   string
	qos     byte
	handler pahomqtt.MessageHandler
}

// Connect builds the MQTT connection and blocks until the broker
// accepts it or the connect timeout passes. The connection
// auto-reconnects afterwards; tracked subscriptions are restored on
// every reconnect.
func Connect(config *Config) (*Client, error) {
	if config == nil {
		return nil, ngsi.ErrConfigRequired
	}

	if config.BrokerURL == "" {
		return nil, ErrBrokerRequired
	}

	if config.ClientID == "" {
		return nil, ErrClientIDRequired
	}

	connectTimeout := config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = constants.DefaultMQTTConnectTimeout
	}

	c := &Client{
		qos:            config.QoS,
		publishTimeout: config.PublishTimeout,
		logger:         config.Logger,
		subscriptions:  make(map[string]subscription),
	}

	if c.qos == 0 {
		c.qos = constants.DefaultMQTTQoS
	}

	if c.publishTimeout == 0 {
		c.publishTimeout = constants.DefaultMQTTPublishTimeout
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logWarn("mqtt connection lost", map[string]any{"error": err.Error()})
	})

	c.client = newPahoClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectFailed, connectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	return c, nil
}

// PublishMeasurements encodes the groups as one Ultralight payload and
// publishes it on the device's measurement topic.
func (c *Client) PublishMeasurements(apikey, deviceID string, groups ...ultralight.Measurement) error {
	payload, err := ultralight.EncodeMeasurements(groups)
	if err != nil {
		return err
	}

	topic, err := MeasurementTopic(apikey, deviceID)
	if err != nil {
		return err
	}

	return c.publish(topic, payload)
}

// PublishCommandResult reports a command outcome on the device's
// result topic. The device is taken from the result frame.
func (c *Client) PublishCommandResult(apikey string, result ultralight.CommandResult) error {
	payload, err := result.Encode()
	if err != nil {
		return err
	}

	topic, err := CommandResultTopic(apikey, result.Device)
	if err != nil {
		return err
	}

	return c.publish(topic, payload)
}

// SubscribeCommands registers a handler for the command requests the
// agent publishes for a device. The subscription is restored on every
// reconnect until UnsubscribeCommands is called.
func (c *Client) SubscribeCommands(apikey, deviceID string, handler CommandHandler) error {
	if handler == nil {
		return &ngsi.ValidationError{Field: "handler", Reason: "must not be nil"}
	}

	topic, err := CommandTopic(apikey, deviceID)
	if err != nil {
		return err
	}

	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	wrapped := c.commandHandler(handler)

	c.mu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: c.qos, handler: wrapped}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, c.qos, wrapped)
	if !token.WaitTimeout(c.publishTimeout) {
		c.dropSubscription(topic)

		return fmt.Errorf("%w: timeout subscribing to %s", ErrSubscribeFailed, topic)
	}

	if err := token.Error(); err != nil {
		c.dropSubscription(topic)

		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// UnsubscribeCommands stops command delivery for a device and drops
// the subscription from reconnect restoration.
func (c *Client) UnsubscribeCommands(apikey, deviceID string) error {
	topic, err := CommandTopic(apikey, deviceID)
	if err != nil {
		return err
	}

	c.dropSubscription(topic)

	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("%w: timeout unsubscribing from %s", ErrUnsubscribeFailed, topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Close disconnects after letting in-flight messages drain.
func (c *Client) Close() {
	if c.client == nil {
		return
	}

	c.client.Disconnect(disconnectQuiesce)
}

func (c *Client) publish(topic, payload string) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.qos, false, []byte(payload))
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("%w: timeout publishing to %s", ErrPublishFailed, topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// commandHandler adapts a CommandHandler to the MQTT library, decoding
// the Ultralight frame and recovering panics so one bad handler cannot
// kill a delivery goroutine.
func (c *Client) commandHandler(handler CommandHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("command handler panicked", map[string]any{
					"topic": msg.Topic(),
					"panic": fmt.Sprint(r),
				})
			}
		}()

		cmd, err := ultralight.DecodeCommand(string(msg.Payload()))
		if err != nil {
			c.logWarn("dropping undecodable command frame", map[string]any{
				"topic": msg.Topic(),
				"error": err.Error(),
			})

			return
		}

		handler(cmd)
	}
}

// restoreSubscriptions re-subscribes every tracked topic. Runs on
// every connect; the broker forgets clean-session subscriptions
// between connections.
func (c *Client) restoreSubscriptions() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, sub.handler)
	}
}

func (c *Client) dropSubscription(topic string) {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()
}

func (c *Client) logWarn(msg string, fields map[string]any) {
	if c.logger != nil {
		c.logger.Warn(msg, fields)
	}
}

func (c *Client) logError(msg string, fields map[string]any) {
	if c.logger != nil {
		c.logger.Error(msg, fields)
	}
}
