// Package transport provides the connection layer under the gateway client.
//
// The transport layer handles:
//   - WebSocket connections carrying one JSON text frame per message
//   - An in-memory Pipe with the same semantics, for tests
//   - Raw frame capture into the protocol log
//   - Tick-based liveness monitoring
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON frames (pkg/wire)    │
//	├────────────────────────────────┤
//	│   WebSocket text messages      │
//	├────────────────────────────────┤
//	│      TLS (wss://, optional)    │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Close Codes
//
// The client closes connections with standard WebSocket status codes plus one
// application code:
//   - 1000 normal closure (client stopped)
//   - 1008 policy violation (connect handshake failed)
//   - 4000 tick timeout (heartbeat gap exceeded)
//
// # Liveness
//
// The gateway emits a "tick" event at the negotiated interval. TickMonitor
// checks every max(interval, 1s) and reports the connection stale once more
// than twice the interval has passed without a tick.
package transport
