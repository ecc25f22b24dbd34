package mqtt

import (
	"errors"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealChannel talks to an actual MQTT broker.
type RealChannel struct {
	client paho.Client
	opts   Options

	mu      sync.Mutex
	lastErr string
}

// NewRealChannel creates a channel for the broker. It does not connect.
func NewRealChannel(opts Options) *RealChannel {
	opts = opts.withDefaults()
	c := &RealChannel{opts: opts}

	// Reconnects are driven by the control loop, so paho must not retry
	// or resume sessions on its own.
	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetKeepAlive(opts.KeepAlive).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.setLastError(fmt.Sprintf("connection lost: %v", err))
		})
	if opts.TLS != nil {
		po.SetTLSConfig(opts.TLS)
	}

	c.client = paho.NewClient(po)
	return c
}

// Connect opens a new session with the broker. A successful connect clears
// the previous session's diagnostic.
func (c *RealChannel) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.opts.ConnectTimeout) {
		err := errors.New("connection timeout")
		c.setLastError(err.Error())
		return err
	}
	if err := token.Error(); err != nil {
		c.setLastError(err.Error())
		return fmt.Errorf("connect to broker: %w", err)
	}
	c.setLastError("")
	return nil
}

// Subscribe registers handler for topic at QoS 0.
func (c *RealChannel) Subscribe(topic string, handler func(payload []byte)) error {
	token := c.client.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		handler(m.Payload())
	})
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		c.setLastError("subscribe timeout")
		return errors.New("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		c.setLastError(err.Error())
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload at QoS 0 (at-most-once), not retained.
func (c *RealChannel) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the network connection is open.
func (c *RealChannel) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// LastError returns the most recent transport diagnostic.
func (c *RealChannel) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *RealChannel) setLastError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}

// Close disconnects from the broker.
func (c *RealChannel) Close() error {
	if c.client.IsConnectionOpen() {
		c.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}
