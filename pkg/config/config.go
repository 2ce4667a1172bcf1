package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "WIFISIM"

// Defaults.
const (
	DefaultPSK            = "correcthorsebattery"
	DefaultAPBSSID        = "AP1"
	DefaultDeviceID       = "Device1"
	DefaultAPURL          = "localhost:3000"
	DefaultListenAddr     = ":3000"
	DefaultAdminPort      = 3001
	DefaultUplinkInterval = 2 * time.Second
	DefaultDemoInterval   = 5 * time.Second
	DefaultKeysDir        = "keys"
	DefaultSessionTTL     = 10 * time.Minute
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the process configuration.
type Config struct {
	// Shared secret and identities.
	PSK      string `yaml:"psk" envconfig:"PSK"`
	APBSSID  string `yaml:"apBssid" envconfig:"AP_BSSID"`
	DeviceID string `yaml:"deviceId" envconfig:"DEVICE_ID"`

	// Suite names the AEAD used for uplink frames. Both peers must agree.
	Suite string `yaml:"suite" envconfig:"SUITE"`

	// APURL is where devices reach the hub. A scheme is accepted and
	// ignored, so "http://localhost:3000" works too.
	APURL string `yaml:"apUrl" envconfig:"AP_URL"`

	// ListenAddr is the hub listen address on the AP.
	ListenAddr string `yaml:"listenAddr" envconfig:"LISTEN_ADDR"`

	// AdminPort is the AP's HTTP admin port. Zero disables it.
	AdminPort int `yaml:"adminPort" envconfig:"PORT"`

	// DemoMode seals every frame with a fresh random key that travels with
	// the frame. INSECURE; for classroom display only.
	DemoMode bool `yaml:"demoMode" envconfig:"DEMO_MODE"`

	// AllowDemo lets the AP open demo frames.
	AllowDemo bool `yaml:"allowDemo" envconfig:"ALLOW_DEMO"`

	UplinkInterval time.Duration `yaml:"uplinkInterval" envconfig:"UPLINK_INTERVAL"`
	DemoInterval   time.Duration `yaml:"demoInterval" envconfig:"DEMO_INTERVAL"`

	TopologyFile string `yaml:"topologyFile" envconfig:"TOPOLOGY_FILE"`
	KeysDir      string `yaml:"keysDir" envconfig:"KEYS_DIR"`

	// Discovery enables mDNS advertisement (AP) or browsing (device, when
	// APURL is empty).
	Discovery bool `yaml:"discovery" envconfig:"DISCOVERY"`

	// SessionDB is a SQLite file for the session ledger. Redis takes
	// precedence when both are set; neither keeps sessions in memory.
	SessionDB string `yaml:"sessionDb" envconfig:"SESSION_DB"`

	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`

	LogLevel    string `yaml:"logLevel" envconfig:"LOG_LEVEL"`
	ProtocolLog string `yaml:"protocolLog" envconfig:"PROTOCOL_LOG"`
}

// RedisConfig selects the Redis session store. An empty Addr keeps sessions
// in memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		PSK:            DefaultPSK,
		APBSSID:        DefaultAPBSSID,
		DeviceID:       DefaultDeviceID,
		Suite:          string(wpacrypto.DefaultSuite),
		APURL:          DefaultAPURL,
		ListenAddr:     DefaultListenAddr,
		AdminPort:      DefaultAdminPort,
		UplinkInterval: DefaultUplinkInterval,
		DemoInterval:   DefaultDemoInterval,
		KeysDir:        DefaultKeysDir,
		Redis:          RedisConfig{TTL: DefaultSessionTTL},
		LogLevel:       "info",
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the environment. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the values the services depend on.
func (c *Config) Validate() error {
	if c.PSK == "" {
		return fmt.Errorf("%w: psk must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.APBSSID) == "" {
		return fmt.Errorf("%w: apBssid must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		return fmt.Errorf("%w: deviceId must not be empty", ErrInvalidConfig)
	}
	if _, err := wpacrypto.ParseSuite(c.Suite); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.UplinkInterval <= 0 {
		return fmt.Errorf("%w: uplinkInterval must be positive", ErrInvalidConfig)
	}
	if c.DemoInterval <= 0 {
		return fmt.Errorf("%w: demoInterval must be positive", ErrInvalidConfig)
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.AdminPort)
	}
	if c.APURL != "" {
		if _, err := c.HubAddress(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Interval returns the uplink period for the configured mode.
func (c *Config) Interval() time.Duration {
	if c.DemoMode {
		return c.DemoInterval
	}
	return c.UplinkInterval
}

// HubAddress returns APURL as host:port.
func (c *Config) HubAddress() (string, error) {
	raw := c.APURL
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("apUrl: %w", err)
		}
		raw = u.Host
	}
	if _, _, err := net.SplitHostPort(raw); err != nil {
		return "", fmt.Errorf("apUrl %q: %w", c.APURL, err)
	}
	return raw, nil
}

// AdminAddress returns the admin listen address, or "" when disabled.
func (c *Config) AdminAddress() string {
	if c.AdminPort == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.AdminPort)
}
