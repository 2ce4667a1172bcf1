// Package transport carries wire messages between simulated peers.
//
// All peers share one broadcast channel: every message published on a Bus
// reaches every subscriber, and each peer filters by identity and message
// type. Two implementations exist:
//
//   - MemoryBus: in-process, for tests and single-binary simulations
//   - Server/Client: a TCP hub in the access point process and a client in
//     each device process
//
// Messages always cross the bus in encoded form, so peers never share
// memory even in a single process.
//
// # Framing
//
// On TCP, every CBOR message is prefixed with its length:
//
//	┌──────────────┬──────────────────────────┐
//	│ length (4B)  │ CBOR payload (≤ 64 KiB)  │
//	│ big-endian   │                          │
//	└──────────────┴──────────────────────────┘
//
// Delivery is ordered per sender. There is no retransmission or
// reordering tolerance.
package transport
