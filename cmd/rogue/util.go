package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// splitHostPort splits addr into host and numeric port.
func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}

	return host, port, nil
}

// parseHexData decodes a hex string, ignoring an optional 0x prefix, spaces and underscores.
func parseHexData(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(" ", "", "_", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("empty data")
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}

	return data, nil
}
