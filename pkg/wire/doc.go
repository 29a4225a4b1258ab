// Package wire defines the JSON frame format spoken with the gateway.
//
// Every WebSocket text message carries exactly one frame. Frames form a
// closed set:
//   - EventFrame: gateway to client (connect.challenge, tick, agent, ...)
//   - RequestFrame: client to gateway, correlated by a string id
//   - ResponseFrame: gateway to client, carries the id of its request
//
// # Frame Encoding
//
//	{"type":"event","event":"tick","payload":{"ts":1700000000000}}
//	{"type":"req","id":"6f1c...","method":"agent","params":{...}}
//	{"type":"res","id":"6f1c...","ok":true,"payload":{...}}
//
// The "type" discriminator is always written. When decoding, frames that
// omit it are classified by their fields: "event" marks an event, "method"
// a request, and a bare "id" a response.
//
// # Two-Phase Responses
//
// A request may be answered twice under the same id: first with an interim
// payload {"status":"accepted"}, later with the terminal result. Whether the
// interim frame is terminal is decided by the caller, see ResponseFrame.IsAccepted.
package wire
