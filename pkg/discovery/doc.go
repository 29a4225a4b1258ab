// Package discovery finds gateways on the local network with mDNS/DNS-SD.
//
// Gateways advertise the _openclaw-gw._tcp service. TXT records carry:
//
//   - displayName: human-readable gateway name
//   - gatewayPort: WebSocket port when it differs from the SRV port
//   - tls: "1" or "true" when the gateway expects wss://
//   - path: WebSocket path, e.g. "/ws"
//
// Entries seen on several interfaces are aggregated by instance name, and
// each Gateway can build the URL a gateway.Client dials.
package discovery
