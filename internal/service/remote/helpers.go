package remote

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/councillor-bot/councillor-deploy/internal/config"
)

var errUnexpectedChecksumOutput = errors.New("unexpected checksum output")

// hostAddr joins the target's host and port into a dialable address.
func hostAddr(target *config.Target) string {
	port := target.Port
	if port <= 0 {
		port = config.DefaultSSHPort
	}

	return net.JoinHostPort(target.Host, strconv.Itoa(port))
}

// valueOrDefault returns value unless it is empty.
func valueOrDefault(value, fallback string) string {
	if value != "" {
		return value
	}

	return fallback
}

// expandHome resolves a leading "~/" against the current user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, path[2:]), nil
}

// shellQuote wraps a value in single quotes for safe use in a remote shell command.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// parseChecksumOutput extracts the digest from `sha512sum` output
// ("<hex digest>  <path>").
func parseChecksumOutput(output string) ([]byte, error) {
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return nil, errUnexpectedChecksumOutput
	}

	checksum, err := hex.DecodeString(fields[0])
	if err != nil {
		return nil, fmt.Errorf("decode remote checksum: %w", err)
	}

	return checksum, nil
}
