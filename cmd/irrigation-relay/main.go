// Command irrigation-relay drives a single irrigation valve relay from a
// cloud device shadow over MQTT, and serves a local status and firmware
// upload surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/irrigation-relay/internal/agent"
	"github.com/sweeney/irrigation-relay/internal/config"
	"github.com/sweeney/irrigation-relay/internal/creds"
	"github.com/sweeney/irrigation-relay/internal/discovery"
	"github.com/sweeney/irrigation-relay/internal/gpio"
	"github.com/sweeney/irrigation-relay/internal/logger"
	"github.com/sweeney/irrigation-relay/internal/mqtt"
	"github.com/sweeney/irrigation-relay/internal/relay"
	"github.com/sweeney/irrigation-relay/internal/status"
	"github.com/sweeney/irrigation-relay/internal/web"
)

func main() {
	cfg, opts, err := loadConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	logger.Init(os.Stderr, cfg.Verbose)
	if opts.printConfig {
		out, yerr := cfg.YAML()
		if yerr != nil {
			log.Fatalf("fatal: %v", yerr)
		}
		os.Stdout.Write(out)
		if err != nil {
			log.Printf("warning: %v", err)
		}
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type options struct {
	configPath  string
	printConfig bool
}

// bindFlags registers every flag against cfg, using cfg's current values as
// defaults, so a flag only overrides what the user actually passes.
func bindFlags(fs *flag.FlagSet, cfg *config.Config, opts *options) {
	fs.StringVar(&opts.configPath, "config", opts.configPath, "YAML configuration file")
	fs.BoolVar(&opts.printConfig, "print-config", opts.printConfig, "Print effective configuration as YAML and exit")

	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "MQTT broker host name")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "MQTT broker port")
	fs.StringVar(&cfg.ThingName, "thing", cfg.ThingName, "Thing name (shadow and default client ID)")
	fs.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "MQTT client ID (defaults to thing name)")
	fs.StringVar(&cfg.CertDir, "cert-dir", cfg.CertDir, "Directory holding cert, key and CA files")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "Heartbeat report interval (0 to disable)")
	fs.DurationVar(&cfg.RetryInterval, "retry", cfg.RetryInterval, "Wait between failed connect attempts")
	fs.DurationVar(&cfg.Poll, "poll", cfg.Poll, "Control loop interval")
	fs.IntVar(&cfg.PinRelay, "pin-relay", cfg.PinRelay, "BCM pin number for the valve relay")
	fs.IntVar(&cfg.PinLED, "pin-led", cfg.PinLED, "BCM pin number for the diagnostic LED")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status and update address (empty to disable)")
	fs.BoolVar(&cfg.MDNSEnabled, "mdns", cfg.MDNSEnabled, "Advertise the update endpoint over mDNS")
	fs.StringVar(&cfg.FirmwareDir, "firmware-dir", cfg.FirmwareDir, "Directory for staged firmware images")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Verbose logging")
}

// loadConfig layers defaults, the YAML file, the environment and finally the
// flags given in args. The flags are parsed twice: once to find -config,
// then again over the loaded values.
func loadConfig(args []string, stderr io.Writer) (config.Config, options, error) {
	var opts options
	pre := config.Default()
	fs := flag.NewFlagSet("irrigation-relay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &pre, &opts)
	if err := fs.Parse(args); err != nil {
		return pre, opts, err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, opts, err
	}

	fs = flag.NewFlagSet("irrigation-relay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bindFlags(fs, &cfg, &opts)
	if err := fs.Parse(args); err != nil {
		return cfg, opts, err
	}

	return cfg, opts, cfg.Resolve()
}

func run(cfg config.Config) error {
	start := time.Now()

	tracker := status.NewTracker(start, status.Config{
		ThingName:   cfg.ThingName,
		Broker:      cfg.Broker(),
		Topic:       cfg.PublishTopic,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		RetryMs:     cfg.RetryInterval.Milliseconds(),
		HTTPAddr:    cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Initialize GPIO; the relay line is requested OFF.
	relayPin, err := gpio.NewRealRelay(cfg.GPIOChip, cfg.PinRelay)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relayPin.Close()

	var indicator gpio.Indicator
	if led, err := gpio.NewRealIndicator(cfg.GPIOChip, cfg.PinLED); err != nil {
		log.Printf("gpio: diagnostic led unavailable: %v", err)
	} else {
		defer led.Close()
		indicator = led
	}

	// Missing credentials are not fatal: the update surface stays reachable
	// and every connect attempt fails with a TLS error instead.
	bundle, err := creds.Load(cfg.CertDir, cfg.CertFile, cfg.KeyFile, cfg.CAFile)
	if err != nil {
		log.Printf("creds: continuing with incomplete credentials")
	}

	channel := mqtt.NewRealChannel(mqtt.Options{
		Broker:   cfg.Broker(),
		ClientID: cfg.ClientID,
		TLS:      bundle.TLSConfig(cfg.Endpoint, time.Now),
	})
	defer channel.Close()

	// Start HTTP status and update server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, web.UpdateConfig{
			Secret:   cfg.UpdateSecret,
			Dir:      cfg.FirmwareDir,
			MaxBytes: cfg.MaxImageBytes,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http server listening on %s", cfg.HTTPAddr)

		if cfg.MDNSEnabled {
			if adv := startDiscovery(cfg); adv != nil {
				defer adv.Stop()
			}
		}
	}

	loop := agent.New(agent.Config{
		PublishTopic:   cfg.PublishTopic,
		SubscribeTopic: cfg.SubscribeTopic,
		Heartbeat:      cfg.Heartbeat,
		RetryInterval:  cfg.RetryInterval,
		Blink:          cfg.Blink,
	}, agent.Deps{
		Channel:   channel,
		Relay:     relay.NewController(relayPin),
		Indicator: indicator,
		Tracker:   tracker,
		Now:       func() relay.Millis { return relay.Since(start, time.Now()) },
	})

	log.Printf("started: thing=%s broker=%s topic=%s heartbeat=%v retry=%v",
		cfg.ThingName, cfg.Broker(), cfg.PublishTopic, cfg.Heartbeat, cfg.RetryInterval)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runLoop(ctx, loop, ticker.C)
}

// runLoop steps the loop until ctx is cancelled, then leaves the valve closed.
func runLoop(ctx context.Context, loop *agent.Loop, tick <-chan time.Time) error {
	err := loop.Run(ctx, tick)
	log.Printf("shutting down")
	loop.Shutdown()
	return err
}

func startDiscovery(cfg config.Config) *discovery.Advertiser {
	port, err := discovery.PortFromAddr(cfg.HTTPAddr)
	if err != nil {
		log.Printf("mdns: %v", err)
		return nil
	}
	adv := discovery.NewAdvertiser(discovery.Config{
		Instance: cfg.MDNSInstance,
		Port:     port,
		Thing:    cfg.ThingName,
	})
	if err := adv.Start(); err != nil {
		log.Printf("mdns: %v", err)
		return nil
	}
	log.Printf("mdns: advertising %s %s on port %d", cfg.MDNSInstance, discovery.ServiceType, port)
	return adv
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
