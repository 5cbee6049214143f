package goble

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/srg/blethroughput/internal/device"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"bluetooth off", errors.New("central manager has invalid state: is Bluetooth turned on?"), device.ErrBluetoothOff},
		{"bluetooth turned off", errors.New("Bluetooth is turned off"), device.ErrBluetoothOff},
		{"not connected", errors.New("device not connected"), device.ErrNotConnected},
		{"disconnected", errors.New("peripheral disconnected"), device.ErrNotConnected},
		{"already connected", errors.New("Device already connected"), device.ErrAlreadyConnected},
		{"not initialized", errors.New("connection is not initialized"), device.ErrNotInitialized},
		{"not supported", errors.New("operation not supported"), device.ErrUnsupported},
		{"not implemented", errors.New("MTU exchange not implemented"), device.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), tt.in.Error())
		})
	}

	t.Run("unknown passes through", func(t *testing.T) {
		orig := errors.New("something else")
		assert.Same(t, orig, NormalizeError(orig))
	})
}
