// Package config holds the process configuration shared by the AP and
// device binaries.
//
// A Config is assembled once at startup in four layers, each overriding the
// previous one:
//
//  1. Default()
//  2. an optional YAML file (-config)
//  3. environment variables with the WIFISIM_ prefix; AP_URL, DEVICE_ID and
//     PORT are also honored without the prefix
//  4. command-line flags that were explicitly set
//
// The result is validated and then treated as read-only.
package config
