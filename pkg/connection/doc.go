// Package connection provides connection lifecycle primitives for the
// gateway client.
//
// This package handles:
//   - Exponential backoff for reconnection attempts
//   - The connection state machine shared by the client and its observers
//
// # Reconnection Strategy
//
// When a connection is lost, the client waits before dialling again:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to 1s after a successful handshake
//
// A transport that opens but then fails the connect negotiation does NOT
// reset the backoff. Only a completed handshake counts as success.
//
// # States
//
//	Disconnected -> Connecting -> Open -> AwaitingChallenge -> Handshaking -> Ready
//
// Any non-terminal state falls back to Disconnected on transport loss.
// Stopped is terminal and only reachable through an explicit stop.
package connection
