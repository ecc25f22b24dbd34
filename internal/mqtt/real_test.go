package mqtt

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/DrmagicE/gmqtt"
)

// startBroker runs an in-process broker on a random local port.
func startBroker(t *testing.T) (string, gmqtt.Server) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := gmqtt.NewServer(gmqtt.WithTCPListener(ln))
	srv.Run()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	return "tcp://" + ln.Addr().String(), srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRealChannelSelfEcho(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}

	broker, _ := startBroker(t)
	topic := ShadowTopic("test-valve")

	ch := NewRealChannel(Options{Broker: broker, ClientID: "test-valve"})
	defer ch.Close()

	if err := ch.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !ch.IsConnected() {
		t.Fatal("should be connected")
	}

	got := make(chan []byte, 4)
	if err := ch.Subscribe(topic, func(p []byte) { got <- append([]byte(nil), p...) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	payload := []byte(`{"state":{"reported":{"relay_state":0}}}`)
	if err := ch.Publish(topic, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case p := <-got:
		if string(p) != string(payload) {
			t.Errorf("echo mismatch: %s", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("did not receive own report")
	}
}

func TestRealChannelReceivesOperatorCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}

	broker, _ := startBroker(t)
	topic := ShadowTopic("test-valve")

	device := NewRealChannel(Options{Broker: broker, ClientID: "device"})
	defer device.Close()
	operator := NewRealChannel(Options{Broker: broker, ClientID: "operator"})
	defer operator.Close()

	if err := device.Connect(); err != nil {
		t.Fatalf("device connect: %v", err)
	}
	got := make(chan []byte, 1)
	device.Subscribe(topic, func(p []byte) { got <- append([]byte(nil), p...) })

	if err := operator.Connect(); err != nil {
		t.Fatalf("operator connect: %v", err)
	}
	cmd := []byte(`{"state":{"desired":{"relay_state":1}}}`)
	if err := operator.Publish(topic, cmd); err != nil {
		t.Fatalf("operator publish: %v", err)
	}

	select {
	case p := <-got:
		if string(p) != string(cmd) {
			t.Errorf("unexpected command: %s", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("device did not receive command")
	}
}

func TestRealChannelConnectionLost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := gmqtt.NewServer(gmqtt.WithTCPListener(ln))
	srv.Run()

	ch := NewRealChannel(Options{Broker: "tcp://" + ln.Addr().String(), ClientID: "device"})
	defer ch.Close()
	if err := ch.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	srv.Stop(context.Background())

	waitFor(t, "disconnect", func() bool { return !ch.IsConnected() })
	waitFor(t, "last error", func() bool { return strings.Contains(ch.LastError(), "connection lost") })
}

func TestRealChannelConnectFailureRecordsLastError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}

	// Grab a free port and close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ch := NewRealChannel(Options{
		Broker:         "tcp://" + addr,
		ClientID:       "device",
		ConnectTimeout: 2 * time.Second,
	})
	if err := ch.Connect(); err == nil {
		t.Fatal("expected connect to fail")
	}
	if ch.LastError() == "" {
		t.Error("expected a transport diagnostic")
	}
	if ch.IsConnected() {
		t.Error("should not be connected")
	}
}

func TestRealChannelReconnectClearsLastError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	srv := gmqtt.NewServer(gmqtt.WithTCPListener(ln))
	srv.Run()

	ch := NewRealChannel(Options{Broker: "tcp://" + addr, ClientID: "device"})
	defer ch.Close()
	if err := ch.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	srv.Stop(context.Background())
	waitFor(t, "last error", func() bool { return strings.Contains(ch.LastError(), "connection lost") })

	// Bring a broker back on the same address for the next session.
	ln2, err := net.Listen("tcp", addr)
	if err != nil {
		t.Skipf("address %s not reusable: %v", addr, err)
	}
	srv2 := gmqtt.NewServer(gmqtt.WithTCPListener(ln2))
	srv2.Run()
	t.Cleanup(func() { srv2.Stop(context.Background()) })

	if err := ch.Connect(); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if got := ch.LastError(); got != "" {
		t.Errorf("reconnect should clear the previous session's diagnostic, got %q", got)
	}
}
