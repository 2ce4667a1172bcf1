package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPService(t *testing.T) {
	svc := newAPService("wifisim-AP1", "ap.local.", 3000,
		[]string{"bssid=AP1", "suite=CHACHA20-POLY1305", "admin=3001"},
		[]string{"192.168.1.10", "fe80::1"})
	require.NotNil(t, svc)

	assert.Equal(t, "AP1", svc.BSSID)
	assert.Equal(t, "CHACHA20-POLY1305", svc.Suite)
	assert.Equal(t, uint16(3001), svc.AdminPort)
	assert.Equal(t, "192.168.1.10:3000", svc.HubAddress())
}

func TestNewAPServiceRejectsForeignRecords(t *testing.T) {
	assert.Nil(t, newAPService("other", "h", 80, []string{"foo=bar"}, nil))
}

func TestNewAPServiceDefaultPort(t *testing.T) {
	svc := newAPService("wifisim-AP1", "ap.local.", 0, []string{"bssid=AP1", "suite=AES-256-GCM"}, nil)
	require.NotNil(t, svc)
	assert.Equal(t, uint16(DefaultPort), svc.Port)
	assert.Equal(t, "ap.local.:3000", svc.HubAddress())
}

func TestHubAddressIPv6(t *testing.T) {
	svc := &APService{Port: 3000, Addresses: []string{"fe80::1"}}
	assert.Equal(t, "[fe80::1]:3000", svc.HubAddress())
}

func TestMergeAndRemoveAddresses(t *testing.T) {
	addrs := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, addrs)

	addrs = removeAddresses(addrs, []string{"10.0.0.1"})
	assert.Equal(t, []string{"10.0.0.2"}, addrs)

	assert.Empty(t, removeAddresses(addrs, []string{"10.0.0.2"}))
}

func TestFirstMatch(t *testing.T) {
	results := make(chan *APService, 2)
	results <- &APService{BSSID: "AP2"}
	results <- &APService{BSSID: "AP1"}

	svc, err := firstMatch(context.Background(), results, "AP1")
	require.NoError(t, err)
	assert.Equal(t, "AP1", svc.BSSID)
}

func TestFirstMatchSkipsIncompatible(t *testing.T) {
	results := make(chan *APService, 2)
	results <- &APService{BSSID: "AP1", Version: "2.0"}
	results <- &APService{BSSID: "AP1", Version: "1.3", Port: 4000}

	svc, err := firstMatch(context.Background(), results, "AP1")
	require.NoError(t, err)
	assert.Equal(t, uint16(4000), svc.Port)
}

func TestFirstMatchClosed(t *testing.T) {
	results := make(chan *APService)
	close(results)

	_, err := firstMatch(context.Background(), results, "AP1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFirstMatchTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := firstMatch(ctx, make(chan *APService), "AP1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFirstMatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := firstMatch(ctx, make(chan *APService), "AP1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdvertiserValidation(t *testing.T) {
	adv := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	defer adv.StopAll()

	err := adv.Advertise(context.Background(), &APInfo{BSSID: "AP1"})
	assert.ErrorIs(t, err, ErrMissingRequired)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = adv.Advertise(ctx, &APInfo{BSSID: "AP1", Suite: "AES-256-GCM"})
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, adv.Update(&APInfo{BSSID: "AP1"}), ErrNotFound)
	assert.ErrorIs(t, adv.Stop("AP1"), ErrNotFound)
}

func TestDefaultConfigs(t *testing.T) {
	assert.Equal(t, 120*time.Second, DefaultAdvertiserConfig().TTL)
	assert.Equal(t, BrowseTimeout, DefaultBrowserConfig().BrowseTimeout)
}
