// Package version holds the build version and the wire protocol version.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the build version, set with
// -ldflags "-X github.com/wifisim/wifisim-go/pkg/version.Version=v1.2.3".
var Version = "dev"

// Protocol is the wire protocol version spoken by this build.
const Protocol = "1.0"

// ProtocolVersion is a parsed "major.minor" protocol version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (ProtocolVersion, error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minorStr, ".") {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(majorStr, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	minor, err := strconv.ParseUint(minorStr, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return ProtocolVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other shares the major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// Supports reports whether a peer advertising remote can talk to this
// build. An empty remote is accepted as the current protocol.
func Supports(remote string) bool {
	if remote == "" {
		return true
	}
	peer, err := Parse(remote)
	if err != nil {
		return false
	}
	current, _ := Parse(Protocol)
	return current.Compatible(peer)
}
