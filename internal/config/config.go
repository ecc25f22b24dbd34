// Package config loads daemon configuration from defaults, an optional YAML
// file and IRRIGATION_* environment variables. Command-line flags are
// applied on top by the caller before Resolve.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/irrigation-relay/internal/creds"
	"github.com/sweeney/irrigation-relay/internal/gpio"
	"github.com/sweeney/irrigation-relay/internal/mqtt"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full daemon configuration.
type Config struct {
	Endpoint       string `yaml:"endpoint" env:"IRRIGATION_ENDPOINT,strict"`
	Port           int    `yaml:"port" env:"IRRIGATION_PORT,strict"`
	ThingName      string `yaml:"thing_name" env:"IRRIGATION_THING_NAME,strict"`
	ClientID       string `yaml:"client_id" env:"IRRIGATION_CLIENT_ID,strict"`
	PublishTopic   string `yaml:"publish_topic" env:"IRRIGATION_PUBLISH_TOPIC,strict"`
	SubscribeTopic string `yaml:"subscribe_topic" env:"IRRIGATION_SUBSCRIBE_TOPIC,strict"`

	CertDir  string `yaml:"cert_dir" env:"IRRIGATION_CERT_DIR,strict"`
	CertFile string `yaml:"cert_file" env:"IRRIGATION_CERT_FILE,strict"`
	KeyFile  string `yaml:"key_file" env:"IRRIGATION_KEY_FILE,strict"`
	CAFile   string `yaml:"ca_file" env:"IRRIGATION_CA_FILE,strict"`

	Heartbeat     time.Duration `yaml:"heartbeat" env:"IRRIGATION_HEARTBEAT,strict"`
	RetryInterval time.Duration `yaml:"retry_interval" env:"IRRIGATION_RETRY_INTERVAL,strict"`
	Poll          time.Duration `yaml:"poll" env:"IRRIGATION_POLL,strict"`
	Blink         time.Duration `yaml:"blink" env:"IRRIGATION_BLINK,strict"`

	GPIOChip string `yaml:"gpio_chip" env:"IRRIGATION_GPIO_CHIP,strict"`
	PinRelay int    `yaml:"pin_relay" env:"IRRIGATION_PIN_RELAY,strict"`
	PinLED   int    `yaml:"pin_led" env:"IRRIGATION_PIN_LED,strict"`

	HTTPAddr      string `yaml:"http_addr" env:"IRRIGATION_HTTP_ADDR,strict"`
	MDNSEnabled   bool   `yaml:"mdns_enabled" env:"IRRIGATION_MDNS_ENABLED,strict"`
	MDNSInstance  string `yaml:"mdns_instance" env:"IRRIGATION_MDNS_INSTANCE,strict"`
	UpdateSecret  string `yaml:"update_secret" env:"IRRIGATION_UPDATE_SECRET,strict"`
	FirmwareDir   string `yaml:"firmware_dir" env:"IRRIGATION_FIRMWARE_DIR,strict"`
	MaxImageBytes int64  `yaml:"max_image_bytes" env:"IRRIGATION_MAX_IMAGE_BYTES,strict"`

	Verbose bool `yaml:"verbose" env:"IRRIGATION_VERBOSE,strict"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:          mqtt.DefaultPort,
		CertDir:       "/etc/irrigation-relay",
		CertFile:      creds.DefaultCertFile,
		KeyFile:       creds.DefaultKeyFile,
		CAFile:        creds.DefaultCAFile,
		Heartbeat:     10 * time.Second,
		RetryInterval: 5 * time.Second,
		Poll:          50 * time.Millisecond,
		Blink:         50 * time.Millisecond,
		GPIOChip:      gpio.DefaultChip,
		PinRelay:      gpio.DefaultPinRelay,
		PinLED:        gpio.DefaultPinLED,
		HTTPAddr:      ":81",
		MDNSEnabled:   true,
		MDNSInstance:  "irrigation-webupdate",
		FirmwareDir:   "/var/lib/irrigation-relay/firmware",
		MaxImageBytes: 16 << 20,
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then with any IRRIGATION_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// Resolve fills derived fields and validates the result.
func (c *Config) Resolve() error {
	if c.ClientID == "" {
		c.ClientID = c.ThingName
	}
	if c.PublishTopic == "" {
		c.PublishTopic = mqtt.ShadowTopic(c.ThingName)
	}
	if c.SubscribeTopic == "" {
		c.SubscribeTopic = c.PublishTopic
	}

	var errs []error
	if c.ThingName == "" {
		errs = append(errs, errors.New("thing_name is required"))
	}
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RetryInterval <= 0 {
		errs = append(errs, errors.New("retry_interval must be positive"))
	}
	if c.Poll <= 0 {
		errs = append(errs, errors.New("poll must be positive"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	if c.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("max_image_bytes must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Broker returns the broker URL for the configured endpoint.
func (c Config) Broker() string {
	return "tls://" + net.JoinHostPort(c.Endpoint, strconv.Itoa(c.Port))
}

// YAML renders the configuration with the update secret redacted.
func (c Config) YAML() ([]byte, error) {
	if c.UpdateSecret != "" {
		c.UpdateSecret = "REDACTED"
	}
	return yaml.Marshal(c)
}
