// Package agent runs the reconnect/publish loop that ties the message
// channel to the relay controller.
package agent

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/irrigation-relay/internal/gpio"
	"github.com/sweeney/irrigation-relay/internal/mqtt"
	"github.com/sweeney/irrigation-relay/internal/relay"
	"github.com/sweeney/irrigation-relay/internal/shadow"
	"github.com/sweeney/irrigation-relay/internal/status"
)

// Session is the state of the broker session as seen by the loop.
type Session int

const (
	Disconnected Session = iota
	Connecting
	Connected
)

func (s Session) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("Session(%d)", int(s))
	}
}

// Config contains loop policy.
type Config struct {
	PublishTopic   string
	SubscribeTopic string

	// Heartbeat is the longest gap between reports. 0 disables heartbeats.
	Heartbeat time.Duration

	// RetryInterval is the wait between failed connect attempts.
	RetryInterval time.Duration

	// Blink is the diagnostic LED on/off time per failed attempt.
	Blink time.Duration

	// ReportBytes sizes the report encoder. 0 means shadow.DefaultReportBytes.
	ReportBytes int
}

// Deps are the loop's collaborators. Indicator, Tracker, Wall and Sleep are optional.
type Deps struct {
	Channel   mqtt.Channel
	Relay     *relay.Controller
	Indicator gpio.Indicator
	Tracker   *status.Tracker

	// Now returns the monotonic millisecond counter.
	Now func() relay.Millis

	// Wall returns wall-clock time for status display.
	Wall func() time.Time

	// Sleep blocks for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Loop owns the controller and the session lifecycle.
// Step must be called from a single goroutine.
type Loop struct {
	cfg       Config
	channel   mqtt.Channel
	ctrl      *relay.Controller
	indicator gpio.Indicator
	tracker   *status.Tracker
	enc       *shadow.Encoder
	inbox     *mailbox

	now   func() relay.Millis
	wall  func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	session     Session
	lastPublish relay.Millis
	reportDue   bool
}

// New creates a loop in the DISCONNECTED state.
func New(cfg Config, deps Deps) *Loop {
	if cfg.ReportBytes == 0 {
		cfg.ReportBytes = shadow.DefaultReportBytes
	}
	if cfg.SubscribeTopic == "" {
		cfg.SubscribeTopic = cfg.PublishTopic
	}

	l := &Loop{
		cfg:       cfg,
		channel:   deps.Channel,
		ctrl:      deps.Relay,
		indicator: deps.Indicator,
		tracker:   deps.Tracker,
		enc:       shadow.NewEncoder(cfg.ReportBytes),
		inbox:     newMailbox(),
		now:       deps.Now,
		wall:      deps.Wall,
		sleep:     deps.Sleep,
		session:   Disconnected,
	}
	if l.wall == nil {
		l.wall = time.Now
	}
	if l.sleep == nil {
		l.sleep = sleepContext
	}
	l.lastPublish = l.now()
	return l
}

// Session returns the current session state.
func (l *Loop) Session() Session {
	return l.session
}

// Run calls Step on every tick until ctx is done.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := l.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Step runs one loop iteration. When the channel is down it blocks
// retrying until connected; the only error it returns is ctx's.
func (l *Loop) Step(ctx context.Context) error {
	if !l.channel.IsConnected() {
		if l.session == Connected {
			// The transport may report the loss after IsConnected turns false.
			diag := l.channel.LastError()
			if diag == "" {
				diag = "no diagnostic yet"
			}
			log.Printf("mqtt: session down: %s", diag)
		}
		l.setSession(Disconnected)
		if err := l.reconnect(ctx); err != nil {
			return err
		}
	}

	now := l.now()
	if d, merged, ok := l.inbox.take(); ok {
		if merged > 0 {
			log.Debugf("shadow: merged %d queued commands", merged+1)
		}
		before, hadWindow := l.ctrl.Window()
		if ev, changed := l.ctrl.Apply(d.State, d.DurationMs, now); changed {
			l.logEvent(ev)
			l.reportDue = true
		}
		// A new or cleared window changes relay_on_timer even when the state holds.
		if after, hasWindow := l.ctrl.Window(); hasWindow != hadWindow || after != before {
			l.reportDue = true
		}
	}
	if ev, changed := l.ctrl.Tick(now); changed {
		l.logEvent(ev)
		l.reportDue = true
	}

	if l.reportDue || l.heartbeatDue(now) {
		l.publish(now)
	}
	l.tracker.UpdateRelay(l.ctrl.Report(now), l.ctrl.Counts())
	return nil
}

// Shutdown forces the relay OFF and sends a best-effort final report.
func (l *Loop) Shutdown() {
	now := l.now()
	if ev, changed := l.ctrl.Shutdown(now); changed {
		l.logEvent(ev)
	}
	l.tracker.UpdateRelay(l.ctrl.Report(now), l.ctrl.Counts())
	if l.channel.IsConnected() {
		l.publish(now)
	}
}

// reconnect retries connect+subscribe until it succeeds or ctx is done.
func (l *Loop) reconnect(ctx context.Context) error {
	l.setSession(Connecting)

	for attempt := 1; ; attempt++ {
		err := l.connect()
		if err == nil {
			l.setSession(Connected)
			l.reportDue = true
			log.Printf("mqtt: connected (attempt %d), subscribed to %s", attempt, l.cfg.SubscribeTopic)
			return nil
		}

		diag := l.channel.LastError()
		if diag == "" {
			diag = err.Error()
		}
		log.Printf("mqtt: connect failed (attempt %d): %s", attempt, diag)
		l.tracker.RecordConnectFailure(diag)

		if l.indicator != nil {
			if err := l.indicator.Blink(l.cfg.Blink); err != nil {
				log.Debugf("gpio: blink: %v", err)
			}
		}

		// The timer keeps its deadline while the link is down.
		now := l.now()
		if ev, changed := l.ctrl.Tick(now); changed {
			l.logEvent(ev)
			l.reportDue = true
		}
		l.tracker.UpdateRelay(l.ctrl.Report(now), l.ctrl.Counts())

		if err := l.sleep(ctx, l.cfg.RetryInterval); err != nil {
			return err
		}
	}
}

func (l *Loop) connect() error {
	if err := l.channel.Connect(); err != nil {
		return err
	}
	if err := l.channel.Subscribe(l.cfg.SubscribeTopic, l.onMessage); err != nil {
		l.channel.Close()
		return err
	}
	return nil
}

// onMessage runs on the channel's goroutine.
func (l *Loop) onMessage(payload []byte) {
	d := shadow.DecodeDelta(payload)
	if d.Empty() {
		log.Debugf("shadow: ignoring %d-byte message without desired fields", len(payload))
		return
	}
	l.inbox.put(d)
}

func (l *Loop) heartbeatDue(now relay.Millis) bool {
	if l.cfg.Heartbeat <= 0 {
		return false
	}
	return relay.Elapsed(now, l.lastPublish) >= uint32(l.cfg.Heartbeat.Milliseconds())
}

// publish sends one report. Failures drop the report; nothing is queued.
func (l *Loop) publish(now relay.Millis) {
	l.reportDue = false
	l.lastPublish = now

	r := l.ctrl.Report(now)
	payload, err := l.enc.Encode(shadow.Report{RelayState: r.State, RelayOnTimer: r.RemainingMs})
	if err != nil {
		log.Printf("shadow: skipping report: %v", err)
		return
	}
	if err := l.channel.Publish(l.cfg.PublishTopic, payload); err != nil {
		log.Printf("mqtt: publish error: %v", err)
		return
	}
	l.tracker.RecordPublish(l.wall())
}

func (l *Loop) setSession(s Session) {
	l.session = s
	l.tracker.SetSession(s.String(), s == Connected)
}

func (l *Loop) logEvent(ev relay.Event) {
	log.Printf("event: relay %s (%s) at %dms", ev.State, ev.Reason, ev.Time)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
