// Package uplink turns application messages into sealed frames once a
// session key is installed, and opens them again on the access point.
//
// A Sealer belongs to one device. It holds the session key and a sequence
// counter that restarts whenever a new key is installed:
//
//	s := uplink.NewSealer("Device1", uplink.SealerConfig{})
//	s.Reset(key)
//	frame, err := s.Seal([]byte("hello"), "")
//
// An Opener belongs to the access point. It looks up the sender's session
// key through a KeySource and rejects frames from identities without one.
//
// Demo mode seals every frame under a fresh random key that travels in the
// clear inside the frame. It is INSECURE and exists only so the AEAD fields
// can be inspected by hand; it still requires an active session.
package uplink
