// Package builder drives the external cross-compilation tool, verifies the
// produced binary and stages it into the dist directory together with a
// release manifest (version plus checksum) for upload.
package builder
