// Package wire defines the messages exchanged between simulated devices and
// the access point, and their CBOR encoding.
//
// Every message is a CBOR map with integer keys. Key 1 is always the message
// type, which Decode uses to pick the concrete Go type:
//
//	{ 1: msgType, 2: deviceID, ... }
//
// # Message Flow
//
//	device                         AP
//	  | -- Register ---------------> |
//	  | -- HandshakeInit (SNonce) -> |
//	  | <- HandshakeChallenge ------ |  (ANonce)
//	  | -- HandshakeComplete (MIC) > |
//	  | <- HandshakeResult (ok) ---- |
//	  | -- UplinkFrame ------------> |  (repeated)
//	  | <- Ack --------------------- |
//
// The channel is a broadcast bus, so each message names the device identity
// it concerns and receivers drop messages addressed to someone else.
package wire
