package device

import (
	"fmt"
	"strings"

	"github.com/go-ble/ble"
)

// ParseUUID parses a 16-bit or 128-bit UUID string, with or without dashes
// or a 0x prefix, into a ble.UUID.
func ParseUUID(s string) (ble.UUID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return nil, fmt.Errorf("UUID cannot be empty")
	}
	u, err := ble.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID format: %s: %w", s, err)
	}
	return u, nil
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(u ble.UUID) string {
	s := u.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// SameUUID compares UUIDs treating nil as "no UUID".
func SameUUID(a, b ble.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}
