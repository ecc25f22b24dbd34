package mqtt

import (
	"errors"
	"sync"
)

// ErrNotConnected is returned by FakeChannel when the session is down.
var ErrNotConnected = errors.New("not connected")

// PublishedMsg is a message recorded by FakeChannel.
type PublishedMsg struct {
	Topic   string
	Payload []byte
}

// FakeChannel records channel calls for test assertions.
// Deliver simulates inbound traffic on any goroutine.
type FakeChannel struct {
	mu sync.Mutex

	// Published contains copies of every payload that was published.
	Published []PublishedMsg

	// Subscriptions lists every topic subscribed, across sessions.
	Subscriptions []string

	// ConnectAttempts counts calls to Connect.
	ConnectAttempts int

	// ConnectErrors are returned by successive Connect calls before one succeeds.
	ConnectErrors []error

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	connected bool
	lastErr   string
	handlers  map[string]func([]byte)
}

// NewFakeChannel creates a disconnected FakeChannel.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{handlers: make(map[string]func([]byte))}
}

// Connect succeeds unless a queued ConnectError is pending.
// A successful connect starts a session with no subscriptions.
func (f *FakeChannel) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ConnectAttempts++
	if len(f.ConnectErrors) > 0 {
		err := f.ConnectErrors[0]
		f.ConnectErrors = f.ConnectErrors[1:]
		f.lastErr = err.Error()
		return err
	}
	f.connected = true
	f.lastErr = ""
	f.handlers = make(map[string]func([]byte))
	return nil
}

// Subscribe records the topic and handler for the current session.
func (f *FakeChannel) Subscribe(topic string, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return ErrNotConnected
	}
	f.Subscriptions = append(f.Subscriptions, topic)
	f.handlers[topic] = handler
	return nil
}

// Publish records a copy of payload.
func (f *FakeChannel) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, PublishedMsg{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// Deliver invokes the subscribed handler for topic, if the session is up.
// Reports whether a handler received the payload.
func (f *FakeChannel) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	up := f.connected
	f.mu.Unlock()

	if !ok || !up {
		return false
	}
	h(payload)
	return true
}

// Drop simulates a lost connection and discards the session's subscriptions.
func (f *FakeChannel) Drop(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.lastErr = reason
	f.handlers = make(map[string]func([]byte))
}

// IsConnected reports whether the fake session is up.
func (f *FakeChannel) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// LastError returns the last simulated transport diagnostic.
func (f *FakeChannel) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Close marks the channel as closed and disconnected.
func (f *FakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.connected = false
	return nil
}

// PublishCount returns the number of recorded publishes.
func (f *FakeChannel) PublishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Published)
}

// Reset clears recorded calls. The connection state is kept.
func (f *FakeChannel) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = nil
	f.Subscriptions = nil
	f.ConnectAttempts = 0
	f.ConnectErrors = nil
	f.PublishError = nil
	f.Closed = false
}
