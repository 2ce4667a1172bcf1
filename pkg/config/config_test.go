package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wifisim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "correcthorsebattery", cfg.PSK)
	assert.Equal(t, "AP1", cfg.APBSSID)
	assert.Equal(t, 2*time.Second, cfg.Interval())
	assert.Equal(t, ":3001", cfg.AdminAddress())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
psk: fromfile
apBssid: AP-file
deviceId: Device7
suite: chacha20-poly1305
uplinkInterval: 750ms
redis:
  addr: localhost:6379
  ttl: 1m
`)
	t.Setenv("WIFISIM_PSK", "fromenv")
	t.Setenv("WIFISIM_REDIS_DB", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fromenv", cfg.PSK)
	assert.Equal(t, "AP-file", cfg.APBSSID)
	assert.Equal(t, "Device7", cfg.DeviceID)
	assert.Equal(t, "chacha20-poly1305", cfg.Suite)
	assert.Equal(t, 750*time.Millisecond, cfg.UplinkInterval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 2, cfg.Redis.DB)

	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultDemoInterval, cfg.DemoInterval)
	assert.Equal(t, DefaultKeysDir, cfg.KeysDir)
}

func TestLoad_UnprefixedEnv(t *testing.T) {
	t.Setenv("AP_URL", "http://ap.local:4000")
	t.Setenv("DEVICE_ID", "Device2")
	t.Setenv("PORT", "8080")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "Device2", cfg.DeviceID)
	assert.Equal(t, 8080, cfg.AdminPort)
	addr, err := cfg.HubAddress()
	require.NoError(t, err)
	assert.Equal(t, "ap.local:4000", addr)
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	t.Setenv("DEVICE_ID", "Device2")
	t.Setenv("WIFISIM_DEVICE_ID", "Device3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Device3", cfg.DeviceID)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "psk: [unterminated"))
	assert.Error(t, err)

	t.Setenv("WIFISIM_UPLINK_INTERVAL", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty psk", func(c *Config) { c.PSK = "" }},
		{"blank bssid", func(c *Config) { c.APBSSID = "  " }},
		{"empty device id", func(c *Config) { c.DeviceID = "" }},
		{"unknown suite", func(c *Config) { c.Suite = "rot13" }},
		{"zero interval", func(c *Config) { c.UplinkInterval = 0 }},
		{"negative demo interval", func(c *Config) { c.DemoInterval = -time.Second }},
		{"port out of range", func(c *Config) { c.AdminPort = 70000 }},
		{"ap url without port", func(c *Config) { c.APURL = "localhost" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestInterval_DemoMode(t *testing.T) {
	cfg := Default()
	cfg.DemoMode = true
	assert.Equal(t, 5*time.Second, cfg.Interval())
}

func TestAdminAddress_Disabled(t *testing.T) {
	cfg := Default()
	cfg.AdminPort = 0
	assert.Empty(t, cfg.AdminAddress())
}

func TestFlags_OnlyExplicitOverride(t *testing.T) {
	path := writeFile(t, "deviceId: Device9\nsuite: chacha20-poly1305\n")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-psk", "fromflag", "-demo", "-interval", "3s"}))
	assert.Equal(t, path, flags.Path())

	cfg, err := flags.Load()
	require.NoError(t, err)

	assert.Equal(t, "fromflag", cfg.PSK)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, 3*time.Second, cfg.UplinkInterval)
	// Not set on the command line, so the file wins over the flag default.
	assert.Equal(t, "Device9", cfg.DeviceID)
	assert.Equal(t, "chacha20-poly1305", cfg.Suite)
}

func TestFlags_LoadValidates(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-suite", "rot13"}))

	_, err := flags.Load()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
