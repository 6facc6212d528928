// Package remote ships releases over SSH: it uploads the staged binary via
// SFTP with an atomic rename into place, verifies the transfer with a
// remote checksum and restarts the target's service unit.
package remote
