// Package discovery advertises and finds simulated access points over
// mDNS/DNS-SD.
//
// An access point registers one instance of _wifisim._tcp per BSSID. The
// instance port is the hub port devices dial. TXT records:
//
//	bssid  access point identity (required)
//	suite  AEAD suite for uplink frames (required)
//	v      wire protocol version (optional)
//	admin  admin HTTP port (optional)
//
// Devices browse for the service and pick the instance whose bssid matches
// their configured access point.
package discovery
