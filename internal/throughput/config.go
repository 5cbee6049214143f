package throughput

import (
	"fmt"
	"strings"

	"github.com/srg/blethroughput/internal/device"
)

// DefaultDeviceName is the Complete Local Name advertised by the throughput peripheral.
const DefaultDeviceName = "Throughput Tester"

// Mode selects how a test run is bounded.
type Mode uint8

const (
	ModeFixedTime   Mode = 1
	ModeFixedAmount Mode = 2
	ModeFree        Mode = 3
)

// OneShot reports whether the mode stops after a single run and asks for input.
func (m Mode) OneShot() bool {
	return m == ModeFixedTime || m == ModeFixedAmount
}

// Fixed reports whether the client drives the transmission on/off switch.
func (m Mode) Fixed() bool {
	return m.OneShot()
}

func (m Mode) String() string {
	switch m {
	case ModeFixedTime:
		return "fixed-time"
	case ModeFixedAmount:
		return "fixed-amount"
	case ModeFree:
		return "free"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode accepts "fixed-time", "fixed-amount" or "free".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed-time", "time", "1":
		return ModeFixedTime, nil
	case "fixed-amount", "amount", "2":
		return ModeFixedAmount, nil
	case "free", "3":
		return ModeFree, nil
	default:
		return 0, fmt.Errorf("invalid mode %q (must be fixed-time, fixed-amount or free)", s)
	}
}

// SessionConfig is the immutable configuration of one controller lifetime.
type SessionConfig struct {
	DeviceName string

	// ConnectionInterval in 1.25 ms units.
	ConnectionInterval uint16
	PHY                device.PHY
	MTU                uint16
	Subscription       device.SubscriptionKind

	Mode Mode
	// FixedTime is the run length in seconds for ModeFixedTime.
	FixedTime uint32
	// FixedAmount is the run length in bytes for ModeFixedAmount.
	FixedAmount uint32
}

// DefaultSessionConfig mirrors the peripheral's out-of-the-box settings:
// 50 ms interval, 1M PHY, 250 byte MTU, notifications, free mode.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DeviceName:         DefaultDeviceName,
		ConnectionInterval: 40,
		PHY:                device.PHY1M,
		MTU:                250,
		Subscription:       device.SubscribeNotification,
		Mode:               ModeFree,
	}
}

// InitiatingPHY is the PHY used to connect. 2M cannot be used to initiate,
// so the link starts on 1M and is switched after it opens.
func (c SessionConfig) InitiatingPHY() device.PHY {
	if c.PHY == device.PHY2M {
		return device.PHY1M
	}
	return c.PHY
}

// IntervalMillis converts the configured interval to milliseconds.
func (c SessionConfig) IntervalMillis() float64 {
	return IntervalToMillis(c.ConnectionInterval)
}

// Banner describes the selected mode the way it is announced at boot.
func (c SessionConfig) Banner() string {
	switch c.Mode {
	case ModeFixedTime:
		return fmt.Sprintf("Fixed time mode (%d s)", c.FixedTime)
	case ModeFixedAmount:
		return fmt.Sprintf("Fixed data amount mode (%d bytes)", c.FixedAmount)
	default:
		return "Free mode"
	}
}

// IntervalToMillis converts 1.25 ms units to milliseconds.
func IntervalToMillis(units uint16) float64 {
	return float64(units) * 1.25
}

// MillisToInterval converts milliseconds to 1.25 ms units, truncating.
func MillisToInterval(ms float64) uint16 {
	return uint16(ms / 1.25)
}
