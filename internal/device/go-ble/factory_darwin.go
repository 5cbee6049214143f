//go:build darwin

package goble

import "github.com/go-ble/ble/darwin"

func newPlatformDevice() (Radio, error) {
	return darwin.NewDevice()
}
