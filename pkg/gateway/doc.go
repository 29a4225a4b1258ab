// Package gateway implements the persistent gateway client.
//
// A Client owns at most one transport at a time and drives it through the
// connection state machine:
//
//	Disconnected -> Connecting -> Open -> AwaitingChallenge -> Handshaking -> Ready
//
// Any transport loss returns the client to Disconnected, fails the requests of
// that attempt and schedules a reconnect with exponential backoff. Stop is
// terminal.
//
// Basic usage:
//
//	client, err := gateway.New(gateway.Config{URL: "ws://127.0.0.1:18789"})
//	if err != nil {
//	    return err
//	}
//	defer client.Stop()
//
//	if err := client.EnsureReady(ctx); err != nil {
//	    return err
//	}
//	payload, err := client.Request(ctx, "health", nil)
package gateway
