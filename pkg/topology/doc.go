// Package topology keeps the simulated network layout: access points and
// the devices known to them. The registry is the display-side view; it has
// no part in authentication.
package topology
