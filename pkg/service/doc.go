// Package service ties the handshake, uplink and transport packages into
// the two long-running roles of the simulator.
//
// # APService
//
// APService is the access point coordinator. It subscribes to a Bus and:
//   - answers handshake:init with a fresh ANonce
//   - verifies handshake:complete MICs and reports the result
//   - keeps one handshake instance per device identity
//   - opens uplink frames from ACTIVE devices and acks every frame
//   - records sessions in a sessionstore.Store and devices in the topology
//
// # DeviceService
//
// DeviceService drives one simulated device. On Start it registers,
// initiates the handshake and, once ACTIVE, emits a sealed uplink frame
// every UplinkInterval until the session is torn down.
//
// Example usage:
//
//	bus := transport.NewMemoryBus()
//	ap, _ := service.NewAPService(bus, service.DefaultAPConfig())
//	ap.Start(ctx)
//	defer ap.Stop()
//
//	dev, _ := service.NewDeviceService(bus, service.DefaultDeviceConfig("Device1"))
//	dev.Start(ctx)
//	defer dev.Stop()
//
// # Event Callbacks
//
// Both services emit events for handshake outcomes and uplink traffic:
//
//	ap.OnEvent(func(e service.Event) {
//	    switch e.Type {
//	    case service.EventSessionActive:
//	        log.Printf("session up: %s", e.DeviceID)
//	    case service.EventUplinkReceived:
//	        log.Printf("%s: %s", e.DeviceID, e.Message.Plaintext)
//	    }
//	})
//
// Handlers run on their own goroutine and must not assume ordering
// between events.
package service
