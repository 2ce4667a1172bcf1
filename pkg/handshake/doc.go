// Package handshake implements the nonce/MIC handshake that installs a
// session key on a simulated device and on the access point.
//
// The two sides run mirrored state machines that share nothing but the
// messages in package wire:
//
//	Supplicant (device)               Authenticator (AP)
//	IDLE                              IDLE
//	  Start() ──HandshakeInit──────►    HandleInit
//	NONCE_SENT                        AWAITING_MIC
//	  ◄──────HandshakeChallenge──────
//	AWAITING_ANONCE
//	  ───────HandshakeComplete─────►    verify MIC
//	  ◄──────HandshakeResult─────────   KEY_DERIVED → ACTIVE | FAILED
//	KEY_DERIVED → ACTIVE | FAILED
//
// FAILED is terminal. Nothing retries automatically; the device must call
// Start again, which draws a new nonce and discards any old key.
//
// Messages for another identity are ignored. Messages that arrive in the
// wrong state return ErrProtocolSequence and leave the state unchanged.
//
// Each instance guards its own state with a mutex. The AP keeps one
// Authenticator per device identity in a Table, so handshakes for different
// devices never share nonce state.
package handshake
