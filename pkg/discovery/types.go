package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/wifisim/wifisim-go/pkg/version"
)

// ProtocolVersion is advertised in the v record.
const ProtocolVersion = version.Protocol

const (
	// ServiceType is the DNS-SD service type of a simulated access point.
	ServiceType = "_wifisim._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is used when an advertisement carries no port.
	DefaultPort = 3000

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// BrowseTimeout bounds FindByBSSID when the caller sets no deadline.
	BrowseTimeout = 10 * time.Second
)

// TXT record keys.
const (
	TXTKeyBSSID     = "bssid"
	TXTKeySuite     = "suite"
	TXTKeyVersion   = "v"
	TXTKeyAdminPort = "admin"
)

var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// APInfo is what an access point advertises about itself.
type APInfo struct {
	BSSID     string
	Suite     string
	Version   string
	Port      uint16
	AdminPort uint16
}

// InstanceName returns the DNS-SD instance name for the access point.
func (i *APInfo) InstanceName() string {
	name := "wifisim-" + i.BSSID
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// APService is a discovered access point.
type APService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	BSSID     string
	Suite     string
	Version   string
	AdminPort uint16
}

// HubAddress returns host:port for dialing the access point hub, preferring
// a resolved address over the advertised host name.
func (s *APService) HubAddress() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: 120 * time.Second}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout is applied by FindByBSSID when ctx has no deadline.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}
