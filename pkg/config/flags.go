package config

import (
	"flag"
	"time"
)

// Flags binds command-line flags that override a loaded Config. Only flags
// the user actually set are applied, so file and environment values survive
// unset flags.
type Flags struct {
	fs    *flag.FlagSet
	path  string
	apply map[string]func(*Config)
}

// RegisterFlags adds the shared flags to fs. Call before fs.Parse.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs, apply: make(map[string]func(*Config))}
	def := Default()

	fs.StringVar(&f.path, "config", "", "Configuration file path (YAML)")

	f.stringVar("psk", def.PSK, "Pre-shared key", func(c *Config, v string) { c.PSK = v })
	f.stringVar("bssid", def.APBSSID, "Access point identity", func(c *Config, v string) { c.APBSSID = v })
	f.stringVar("device-id", def.DeviceID, "Device identity", func(c *Config, v string) { c.DeviceID = v })
	f.stringVar("suite", def.Suite, "AEAD suite: AES-256-GCM, CHACHA20-POLY1305", func(c *Config, v string) { c.Suite = v })
	f.stringVar("ap-url", def.APURL, "Hub address (host:port)", func(c *Config, v string) { c.APURL = v })
	f.stringVar("listen", def.ListenAddr, "Hub listen address", func(c *Config, v string) { c.ListenAddr = v })
	f.intVar("port", def.AdminPort, "Admin HTTP port (0 disables)", func(c *Config, v int) { c.AdminPort = v })
	f.boolVar("demo", def.DemoMode, "Seal frames with per-message random keys (INSECURE teaching mode)", func(c *Config, v bool) { c.DemoMode = v })
	f.boolVar("allow-demo", def.AllowDemo, "Accept demo frames on the AP", func(c *Config, v bool) { c.AllowDemo = v })
	f.durationVar("interval", def.UplinkInterval, "Uplink interval in session mode", func(c *Config, v time.Duration) { c.UplinkInterval = v })
	f.durationVar("demo-interval", def.DemoInterval, "Uplink interval in demo mode", func(c *Config, v time.Duration) { c.DemoInterval = v })
	f.stringVar("topology", def.TopologyFile, "Topology seed file (YAML)", func(c *Config, v string) { c.TopologyFile = v })
	f.stringVar("keys-dir", def.KeysDir, "Directory for saved key files", func(c *Config, v string) { c.KeysDir = v })
	f.boolVar("discovery", def.Discovery, "Enable mDNS advertise/browse", func(c *Config, v bool) { c.Discovery = v })
	f.stringVar("session-db", def.SessionDB, "SQLite file for the session ledger", func(c *Config, v string) { c.SessionDB = v })
	f.stringVar("redis", def.Redis.Addr, "Redis address for the session store (empty keeps sessions in memory)", func(c *Config, v string) { c.Redis.Addr = v })
	f.stringVar("log-level", def.LogLevel, "Log level: debug, info, warn, error", func(c *Config, v string) { c.LogLevel = v })
	f.stringVar("protocol-log", def.ProtocolLog, "Write protocol events to this .wlog file", func(c *Config, v string) { c.ProtocolLog = v })

	return f
}

// Path returns the -config value.
func (f *Flags) Path() string {
	return f.path
}

// Load runs config.Load with the -config path, applies explicitly set flags
// and validates the result.
func (f *Flags) Load() (*Config, error) {
	cfg, err := Load(f.path)
	if err != nil {
		return nil, err
	}
	f.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply copies explicitly set flags into cfg.
func (f *Flags) Apply(cfg *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		if fn, ok := f.apply[fl.Name]; ok {
			fn(cfg)
		}
	})
}

func (f *Flags) stringVar(name, value, usage string, set func(*Config, string)) {
	p := f.fs.String(name, value, usage)
	f.apply[name] = func(c *Config) { set(c, *p) }
}

func (f *Flags) intVar(name string, value int, usage string, set func(*Config, int)) {
	p := f.fs.Int(name, value, usage)
	f.apply[name] = func(c *Config) { set(c, *p) }
}

func (f *Flags) boolVar(name string, value bool, usage string, set func(*Config, bool)) {
	p := f.fs.Bool(name, value, usage)
	f.apply[name] = func(c *Config) { set(c, *p) }
}

func (f *Flags) durationVar(name string, value time.Duration, usage string, set func(*Config, time.Duration)) {
	p := f.fs.Duration(name, value, usage)
	f.apply[name] = func(c *Config) { set(c, *p) }
}
