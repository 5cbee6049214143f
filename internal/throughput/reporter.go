package throughput

import (
	"errors"
	"fmt"

	"github.com/srg/blethroughput/internal/device"
)

var (
	ErrServiceNotFound        = errors.New("throughput service not found")
	ErrCharacteristicsMissing = errors.New("throughput characteristics missing")
)

// ProcedureError is a GATT procedure that completed with a non-zero result.
type ProcedureError struct {
	Action Action
	Result uint16
}

func (e *ProcedureError) Error() string {
	return fmt.Sprintf("%s failed with result 0x%04x", e.Action, e.Result)
}

// Reporter receives everything a user would want to see about a session.
// Implementations must not call back into the Controller.
type Reporter interface {
	Booted(cfg SessionConfig)
	ScanProgress()
	DeviceFound(address string)
	ConnectionOpened(conn device.ConnectionHandle)
	ConnectionClosed(reason uint16)
	MTUExchanged(mtu uint16)
	PHYStatus(phy device.PHY)
	ServiceFound(service device.ServiceHandle)
	CharacteristicFound(role CharacteristicRole, char device.CharacteristicHandle)
	Subscribed(role CharacteristicRole, kind device.SubscriptionKind)
	DiscoveryDone(link LinkParameters)
	RunCompleted(summary RunSummary)
	DeviceResult(bps uint32)
	Failure(err error)
}

// NopReporter discards every report.
type NopReporter struct{}

var _ Reporter = NopReporter{}

func (NopReporter) Booted(SessionConfig)                                                {}
func (NopReporter) ScanProgress()                                                       {}
func (NopReporter) DeviceFound(string)                                                  {}
func (NopReporter) ConnectionOpened(device.ConnectionHandle)                            {}
func (NopReporter) ConnectionClosed(uint16)                                             {}
func (NopReporter) MTUExchanged(uint16)                                                 {}
func (NopReporter) PHYStatus(device.PHY)                                                {}
func (NopReporter) ServiceFound(device.ServiceHandle)                                   {}
func (NopReporter) CharacteristicFound(CharacteristicRole, device.CharacteristicHandle) {}
func (NopReporter) Subscribed(CharacteristicRole, device.SubscriptionKind)              {}
func (NopReporter) DiscoveryDone(LinkParameters)                                        {}
func (NopReporter) RunCompleted(RunSummary)                                             {}
func (NopReporter) DeviceResult(uint32)                                                 {}
func (NopReporter) Failure(error)                                                       {}
