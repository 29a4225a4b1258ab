// Package handshake implements the connect negotiation that gates every
// gateway connection.
//
// After the socket opens the gateway may send a connect.challenge event. The
// client answers it (or, if none arrives in time, proceeds on its own) with a
// single "connect" request carrying the protocol range, client identity,
// optional token, role and scopes. The hello payload of a successful reply
// carries the session policy, most importantly the tick interval used for
// liveness monitoring.
//
// The challenge nonce is recorded on the Session but not sent back.
package handshake
