// Package sessionstore records which devices hold an active session with
// the access point. A Record carries bookkeeping only (when the session was
// established, how many frames arrived, the key fingerprint); the session
// key itself never leaves the handshake instance.
//
// Three backends are provided: an in-process MemoryStore, a SQLiteStore
// that survives restarts on a single host, and a RedisStore that shares the
// ledger between AP restarts or several admin processes.
package sessionstore
