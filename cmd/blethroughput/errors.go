package main

import (
	"errors"
	"os"
	"strings"

	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/throughput"
)

// FormatUserError turns an error into a single line suitable for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off, turn it on and try again"
	case errors.Is(err, device.ErrUnsupported):
		return "BLE is not supported on this platform"
	case errors.Is(err, os.ErrPermission):
		return "permission denied opening the BLE adapter (on Linux run as root or grant CAP_NET_ADMIN)"
	case errors.Is(err, throughput.ErrEventsClosed):
		return "BLE stack stopped unexpectedly"
	case errors.Is(err, device.ErrNotInitialized):
		return "BLE adapter is not initialized"
	}

	// errors.Join separates causes with newlines
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	return strings.Join(lines, "; ")
}
