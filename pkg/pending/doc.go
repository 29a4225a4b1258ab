// Package pending correlates outbound gateway requests with their responses.
//
// A Registry hands out a fresh id per request, stores a Future for it and
// transmits the request frame. Responses are routed back by id:
//
//	reg := pending.NewRegistry(pending.Options{})
//	fut, err := reg.Send(conn, "agent", params, pending.SendOptions{ExpectFinal: true})
//	...
//	reg.Resolve(resp) // from the read loop
//	payload, err := fut.Wait(ctx)
//
// # Two-Phase Completion
//
// With ExpectFinal set, a response whose payload status is "accepted" is an
// interim acknowledgement: the entry stays pending and the future is not
// completed. The next response for the same id that is not an
// acknowledgement completes it.
//
// # Flushing
//
// FlushAll fails every pending entry with one error. Close does the same and
// also refuses further sends; the gateway client closes a registry when its
// transport goes away and starts the next connection with a new one.
//
// Responses for unknown ids (late answers after a flush, duplicates) are
// dropped without error.
package pending
