package discovery

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Collect and FindFirst (default: 3s).
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}

// ServiceEntry is a resolved DNS-SD entry, decoupled from the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToGateway decodes the entry's TXT records into a Gateway.
func (e *ServiceEntry) ToGateway() (*Gateway, error) {
	info, err := DecodeGatewayTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	return &Gateway{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		DisplayName:  info.DisplayName,
		GatewayPort:  info.GatewayPort,
		TLS:          info.TLS,
		Path:         info.Path,
	}, nil
}

// Browser discovers gateways with mDNS.
type Browser struct {
	config BrowserConfig

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &Browser{config: config}
}

// Browse emits each gateway the first time it is seen. Addresses from
// several interfaces are merged into the emitted entry; an entry whose
// addresses all disappear is forgotten and emitted again if it returns.
// The channel closes when ctx ends or Stop is called.
func (b *Browser) Browse(ctx context.Context) (<-chan *Gateway, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan *Gateway)

	go func() {
		defer close(out)
		agg := newAggregator()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				gw, isNew := agg.add(fromZeroconf(entry))
				if !isNew {
					continue
				}
				select {
				case out <- gw.clone():
				case <-ctx.Done():
					return
				}
			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				agg.remove(fromZeroconf(entry))
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// Collect browses for the configured timeout and returns every gateway
// seen, sorted by name.
func (b *Browser) Collect(ctx context.Context) ([]*Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	found, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	var gws []*Gateway
	for gw := range found {
		gws = append(gws, gw)
	}
	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return gws, err
	}
	sort.Slice(gws, func(i, j int) bool { return gws[i].Name() < gws[j].Name() })
	return gws, nil
}

// FindFirst returns the first gateway seen within the browse timeout.
func (b *Browser) FindFirst(ctx context.Context) (*Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	found, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	select {
	case gw, ok := <-found:
		if ok {
			return gw, nil
		}
	case <-ctx.Done():
	}
	return nil, ErrNotFound
}

// Stop cancels all active browse operations.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

// browserOptions returns zeroconf client options based on config.
func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func fromZeroconf(entry *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// aggregator tracks gateways by instance name.
type aggregator struct {
	gateways map[string]*Gateway
}

func newAggregator() *aggregator {
	return &aggregator{gateways: make(map[string]*Gateway)}
}

// add records an entry. It returns the gateway and whether it is new.
// Entries with malformed TXT records are ignored.
func (a *aggregator) add(e ServiceEntry) (*Gateway, bool) {
	if existing, ok := a.gateways[e.Instance]; ok {
		existing.Addresses = mergeAddresses(existing.Addresses, e.Addrs)
		return existing, false
	}
	gw, err := e.ToGateway()
	if err != nil {
		return nil, false
	}
	a.gateways[e.Instance] = gw
	return gw, true
}

// remove drops the entry's addresses and forgets the gateway when none
// remain.
func (a *aggregator) remove(e ServiceEntry) {
	existing, ok := a.gateways[e.Instance]
	if !ok {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, e.Addrs)
	if len(existing.Addresses) == 0 {
		delete(a.gateways, e.Instance)
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses returns addresses without the ones in gone.
func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}
