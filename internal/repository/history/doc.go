// Package history persists the latest deploy record per target in a JSON
// file, so the CLI can show what currently runs where.
package history
