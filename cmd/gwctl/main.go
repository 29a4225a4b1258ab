// Command gwctl talks to a gateway from the command line.
//
// Usage:
//
//	gwctl [global flags] <command> [flags]
//
// Commands:
//
//	connect    Connect, print the negotiated session and wait for events
//	call       Send one request and print the final payload
//	chat       Interactive agent session
//	discover   Browse the local network for gateways
//	version    Print the build version
//
// Examples:
//
//	# Connect to the default local gateway and watch events
//	gwctl connect --watch
//
//	# Query health on a remote gateway
//	gwctl --url wss://gw.example:18789 --token $TOKEN call health
//
//	# Run an agent turn and wait for its final result
//	gwctl call agent '{"message":"status?"}' --expect-final
//
//	# Chat with the first gateway found via mDNS, capturing the protocol
//	gwctl --discover --protocol-log chat.glog chat
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
