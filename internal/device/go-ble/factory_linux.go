//go:build linux

package goble

import "github.com/go-ble/ble/linux"

func newPlatformDevice() (Radio, error) {
	return linux.NewDevice()
}
