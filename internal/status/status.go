// Package status provides a thread-safe status tracker for the irrigation-relay daemon.
// It is written by the control loop and the update handler, and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-relay/internal/relay"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ThingName   string
	Broker      string
	Topic       string
	HeartbeatMs int64
	RetryMs     int64
	HTTPAddr    string
}

// FirmwareInfo describes the last staged firmware image.
type FirmwareInfo struct {
	Path     string
	Size     int64
	SHA256   string
	Subject  string
	StagedAt time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Relay       relay.State
	RemainingMs uint32
	Counts      relay.Counts

	Session         string
	MQTTConnected   bool
	LastError       string
	ConnectFailures int
	Publishes       int
	LastPublish     time.Time

	Firmware *FirmwareInfo

	StartTime time.Time
	Now       time.Time
	Network   *NetworkInfo
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
// A nil *Tracker ignores all writes.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Relay:     relay.StateOff,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateRelay sets the relay state, remaining timer and transition counts.
// Called from the control loop on every iteration.
func (t *Tracker) UpdateRelay(r relay.Report, counts relay.Counts) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.Relay = r.State
	t.snap.RemainingMs = r.RemainingMs
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetSession sets the session state name and MQTT connection status.
func (t *Tracker) SetSession(session string, connected bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.Session = session
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// RecordConnectFailure counts a failed connect attempt and keeps its diagnostic.
func (t *Tracker) RecordConnectFailure(diag string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.ConnectFailures++
	t.snap.LastError = diag
	t.mu.Unlock()
}

// RecordPublish counts a successful report publish.
func (t *Tracker) RecordPublish(at time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.Publishes++
	t.snap.LastPublish = at
	t.mu.Unlock()
}

// SetFirmware records the last staged firmware image.
func (t *Tracker) SetFirmware(info FirmwareInfo) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.Firmware = &info
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Firmware != nil {
		fw := *s.Firmware
		s.Firmware = &fw
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
