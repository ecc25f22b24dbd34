// Package mqtt provides the shadow message channel with abstraction for testing.
package mqtt

import (
	"crypto/tls"
	"time"
)

// DefaultPort is the MQTT-over-TLS port used by the shadow service.
const DefaultPort = 8883

// ShadowTopic returns the shadow update topic for a thing. The device both
// publishes and subscribes here, so it sees its own reports.
func ShadowTopic(thing string) string {
	return "$aws/things/" + thing + "/shadow/update"
}

// Channel is a connect/publish/subscribe session with the broker.
// Connection state is polled by the caller; nothing reconnects on its own.
type Channel interface {
	// Connect opens a fresh session. Subscriptions do not survive a reconnect.
	Connect() error

	// Subscribe registers handler for topic on the current session.
	// handler runs on the client's goroutine and must not block.
	Subscribe(topic string, handler func(payload []byte)) error

	// Publish sends payload at QoS 0, not retained.
	Publish(topic string, payload []byte) error

	// IsConnected reports whether the session is currently open.
	IsConnected() bool

	// LastError returns the most recent transport diagnostic, or "".
	LastError() string

	// Close disconnects from the broker.
	Close() error
}

// Options configures a RealChannel.
type Options struct {
	// Broker is a URL such as tls://host:8883 or tcp://host:1883.
	Broker   string
	ClientID string

	// TLS, if set, is used for tls:// and ssl:// brokers.
	TLS *tls.Config

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PublishTimeout == 0 {
		o.PublishTimeout = 5 * time.Second
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = 30 * time.Second
	}
	return o
}
