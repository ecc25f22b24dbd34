// Command valvectl sends a desired-state command to an irrigation valve
// through its device shadow.
//
// Usage:
//
//	valvectl [flags] on|off|stop|sprinkle|water|timer <duration>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/irrigation-relay/internal/config"
	"github.com/sweeney/irrigation-relay/internal/creds"
	"github.com/sweeney/irrigation-relay/internal/logger"
	"github.com/sweeney/irrigation-relay/internal/mqtt"
	"github.com/sweeney/irrigation-relay/internal/relay"
	"github.com/sweeney/irrigation-relay/internal/shadow"
)

// Preset timer windows.
const (
	sprinkleMs = 10 * 1000
	waterMs    = 30 * 60 * 1000
)

var errUsage = errors.New("usage: valvectl [flags] on|off|stop|sprinkle|water|timer <duration>")

func main() {
	logger.Init(os.Stderr, false)
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("valvectl: %v", err)
	}
}

func run(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("valvectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file (shared with irrigation-relay)")
	thing := fs.String("thing", "", "Thing name to command (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	delta, err := parseCommand(fs.Args())
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *thing != "" {
		cfg.ThingName = *thing
	}
	// Each invocation is its own session; reusing the device's ID would kick it off.
	cfg.ClientID = "valvectl-" + uuid.NewString()
	if err := cfg.Resolve(); err != nil {
		return err
	}

	payload, err := shadow.EncodeDesired(delta)
	if err != nil {
		return err
	}

	bundle, err := creds.Load(cfg.CertDir, cfg.CertFile, cfg.KeyFile, cfg.CAFile)
	if err != nil {
		return err
	}
	ch := mqtt.NewRealChannel(mqtt.Options{
		Broker:   cfg.Broker(),
		ClientID: cfg.ClientID,
		TLS:      bundle.TLSConfig(cfg.Endpoint, time.Now),
	})
	if err := ch.Connect(); err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Publish(cfg.SubscribeTopic, payload); err != nil {
		return err
	}
	log.Printf("sent %s to %s", payload, cfg.SubscribeTopic)
	return nil
}

// parseCommand maps an operator verb to a desired-state delta.
func parseCommand(args []string) (shadow.Delta, error) {
	if len(args) == 0 {
		return shadow.Delta{}, errUsage
	}

	verb, rest := args[0], args[1:]
	if verb != "timer" && len(rest) > 0 {
		return shadow.Delta{}, fmt.Errorf("%s takes no arguments: %w", verb, errUsage)
	}

	switch verb {
	case "on":
		return withState(relay.StateOn), nil
	case "off", "stop":
		return withState(relay.StateOff), nil
	case "sprinkle":
		return withTimer(sprinkleMs), nil
	case "water":
		return withTimer(waterMs), nil
	case "timer":
		if len(rest) != 1 {
			return shadow.Delta{}, fmt.Errorf("timer needs one duration: %w", errUsage)
		}
		d, err := time.ParseDuration(rest[0])
		if err != nil {
			return shadow.Delta{}, fmt.Errorf("timer: %w", err)
		}
		if d < 0 || d.Milliseconds() > relay.MaxDurationMs {
			return shadow.Delta{}, fmt.Errorf("timer: %v out of range", d)
		}
		return withTimer(uint32(d.Milliseconds())), nil
	}
	return shadow.Delta{}, fmt.Errorf("unknown command %q: %w", verb, errUsage)
}

func withState(s relay.State) shadow.Delta {
	return shadow.Delta{State: &s}
}

func withTimer(ms uint32) shadow.Delta {
	return shadow.Delta{DurationMs: &ms}
}
