package discovery

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of gateways.
	ServiceType = "_openclaw-gw._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// BrowseTimeout is how long Collect listens by default.
	BrowseTimeout = 3 * time.Second
)

// TXT record keys.
const (
	TXTKeyDisplayName = "displayName"
	TXTKeyGatewayPort = "gatewayPort"
	TXTKeyTLS         = "tls"
	TXTKeyPath        = "path"
)

// Errors.
var (
	ErrInvalidTXTRecord = errors.New("invalid TXT record format")
	ErrNotFound         = errors.New("no gateway found")
)

// Gateway is a discovered gateway.
type Gateway struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// Host is the advertised hostname.
	Host string

	// Port is the SRV port.
	Port uint16

	// Addresses are the IP addresses seen for this instance.
	Addresses []string

	// DisplayName is the human-readable name, if advertised.
	DisplayName string

	// GatewayPort overrides Port for the WebSocket endpoint when non-zero.
	GatewayPort uint16

	// TLS reports whether the gateway expects wss://.
	TLS bool

	// Path is the WebSocket path.
	Path string
}

// clone returns a copy that does not share the address slice.
func (g *Gateway) clone() *Gateway {
	cp := *g
	cp.Addresses = append([]string(nil), g.Addresses...)
	return &cp
}

// Name returns DisplayName, falling back to the instance name.
func (g *Gateway) Name() string {
	if g.DisplayName != "" {
		return g.DisplayName
	}
	return g.InstanceName
}

// URL builds the WebSocket endpoint. The first IPv4 address is preferred,
// then any address, then the hostname.
func (g *Gateway) URL() string {
	scheme := "ws"
	if g.TLS {
		scheme = "wss"
	}
	port := g.Port
	if g.GatewayPort != 0 {
		port = g.GatewayPort
	}
	path := g.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(g.dialHost(), strconv.Itoa(int(port))),
		Path:   path,
	}
	return u.String()
}

func (g *Gateway) dialHost() string {
	for _, addr := range g.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return addr
		}
	}
	if len(g.Addresses) > 0 {
		return g.Addresses[0]
	}
	return strings.TrimSuffix(g.Host, ".")
}
