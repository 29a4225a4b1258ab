// Package gatewaytest provides fake gateways for tests: an in-memory
// PipeDialer whose Peers are scripted frame by frame, and a WebSocket
// Server that speaks the gateway protocol over httptest.
package gatewaytest
