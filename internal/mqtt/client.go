package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client owns the broker connection. Subscriber and Publisher share its
// native client; hooks registered with OnReconnect run after every
// reconnect so subscriptions survive a clean-session broker.
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger *zap.SugaredLogger

	mu        sync.Mutex
	connects  int
	reconnect []func()
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// NewClient connects to the broker and returns once the first connection is up
func NewClient(config ClientConfig, logger *zap.SugaredLogger) (*Client, error) {
	c := &Client{config: config, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		logger.Debugf("MQTT: Unrouted message on %s", msg.Topic())
	})
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warnf("MQTT: Connection to %s lost: %v", config.Broker, err)
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", config.Broker, token.Error())
	}

	logger.Infof("MQTT Client: Connected to broker %s as %s", config.Broker, config.ClientID)
	return c, nil
}

// OnReconnect registers fn to run after every reconnect. The initial
// connection does not trigger it.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect = append(c.reconnect, fn)
}

func (c *Client) handleConnect(mqtt.Client) {
	c.mu.Lock()
	c.connects++
	first := c.connects == 1
	hooks := append([]func(){}, c.reconnect...)
	c.mu.Unlock()

	if first {
		c.logger.Info("MQTT: Connection established")
		return
	}
	c.logger.Infof("MQTT: Reconnected, restoring %d subscription hook(s)", len(hooks))
	// Paho calls this on its own goroutine; blocking token waits in here stall it
	go func() {
		for _, fn := range hooks {
			fn()
		}
	}()
}

// GetNativeClient returns the underlying paho MQTT client
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects, allowing in-flight work 250ms to finish
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info("MQTT Client: Disconnected")
}
