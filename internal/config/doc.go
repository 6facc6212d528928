// Package config defines the deploy targets and shared options used by the
// CLI and provides helpers to load, validate and save them in YAML format.
//
// A Target bundles the remote host, the installed binary path, the service
// unit to restart and the build recipe producing the binary.
package config
