package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/wifisim/wifisim-go/pkg/version"
)

// Advertiser publishes access points.
type Advertiser interface {
	Advertise(ctx context.Context, info *APInfo) error
	Update(info *APInfo) error
	Stop(bssid string) error
	StopAll()
}

// Browser finds access points.
type Browser interface {
	Browse(ctx context.Context) (<-chan *APService, error)
	FindByBSSID(ctx context.Context, bssid string) (*APService, error)
}

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by BSSID
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// Advertise registers info, replacing an earlier advertisement for the
// same BSSID.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *APInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if info.BSSID == "" || info.Suite == "" {
		return fmt.Errorf("%w: bssid and suite", ErrMissingRequired)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if server, exists := a.servers[info.BSSID]; exists {
		server.Shutdown()
		delete(a.servers, info.BSSID)
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.InstanceName(),
		ServiceType,
		Domain,
		port,
		TXTRecordsToStrings(EncodeAPTXT(info)),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.InstanceName(), err)
	}

	a.servers[info.BSSID] = server
	return nil
}

// Update replaces the TXT records of a running advertisement.
func (a *MDNSAdvertiser) Update(info *APInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[info.BSSID]
	if !exists {
		return ErrNotFound
	}
	server.SetText(TXTRecordsToStrings(EncodeAPTXT(info)))
	return nil
}

// Stop withdraws the advertisement for bssid.
func (a *MDNSAdvertiser) Stop(bssid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[bssid]
	if !exists {
		return ErrNotFound
	}
	server.Shutdown()
	delete(a.servers, bssid)
	return nil
}

// StopAll withdraws every advertisement.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for bssid, server := range a.servers {
		server.Shutdown()
		delete(a.servers, bssid)
	}
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{config: config}
}

// Browse streams access points until ctx is done. Instances are aggregated
// by name: addresses learned on several interfaces are merged and an
// instance is emitted once.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *APService, error) {
	out := make(chan *APService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go aggregate(ctx, entries, removed, out)

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// FindByBSSID returns the first access point advertising bssid with a
// compatible protocol version.
func (b *MDNSBrowser) FindByBSSID(ctx context.Context, bssid string) (*APService, error) {
	if _, ok := ctx.Deadline(); !ok && b.config.BrowseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}

	browseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := b.Browse(browseCtx)
	if err != nil {
		return nil, err
	}
	return firstMatch(ctx, results, bssid)
}

func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

// firstMatch drains results until an access point with bssid shows up.
func firstMatch(ctx context.Context, results <-chan *APService, bssid string) (*APService, error) {
	for {
		select {
		case svc, ok := <-results:
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, bssid)
			}
			if svc.BSSID == bssid && version.Supports(svc.Version) {
				return svc, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, bssid)
			}
			return nil, ctx.Err()
		}
	}
}

func aggregate(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, out chan<- *APService) {
	defer close(out)

	services := make(map[string]*APService)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			svc := entryToAP(entry)
			if svc == nil {
				continue
			}
			if existing, found := services[svc.InstanceName]; found {
				existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
				continue
			}
			services[svc.InstanceName] = svc
			select {
			case out <- svc:
			case <-ctx.Done():
				return
			}

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if existing, found := services[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, entryAddresses(entry))
				if len(existing.Addresses) == 0 {
					delete(services, entry.Instance)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func entryToAP(entry *zeroconf.ServiceEntry) *APService {
	return newAPService(entry.Instance, entry.HostName, entry.Port, entry.Text, entryAddresses(entry))
}

// newAPService builds a service from raw DNS-SD data, or nil if the TXT
// records are not a valid access point advertisement.
func newAPService(instance, host string, port int, text, addrs []string) *APService {
	info, err := DecodeAPTXT(StringsToTXTRecords(text))
	if err != nil {
		return nil
	}
	if port <= 0 || port > 65535 {
		port = DefaultPort
	}
	return &APService{
		InstanceName: instance,
		Host:         host,
		Port:         uint16(port),
		Addresses:    addrs,
		BSSID:        info.BSSID,
		Suite:        info.Suite,
		Version:      info.Version,
		AdminPort:    info.AdminPort,
	}
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses appends the addresses of add not already in existing.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range add {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses returns addresses without the ones in drop.
func removeAddresses(addresses, drop []string) []string {
	toRemove := make(map[string]bool, len(drop))
	for _, addr := range drop {
		toRemove[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// interfaces resolves a configured interface name; nil means all.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

var (
	_ Advertiser = (*MDNSAdvertiser)(nil)
	_ Browser    = (*MDNSBrowser)(nil)
)
