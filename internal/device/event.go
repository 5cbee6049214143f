package device

import (
	"fmt"

	"github.com/go-ble/ble"
)

// Event is a single asynchronous notification from the stack.
type Event interface {
	EventName() string
}

// BootEvent confirms the stack finished (re)initialising.
type BootEvent struct {
	Major, Minor, Patch uint16
}

// ScanReportEvent carries one received advertisement.
type ScanReportEvent struct {
	Address     string
	AddressType AddressType
	RSSI        int8
	Data        []byte // raw AD records
}

// ConnectionOpenedEvent reports a new link.
type ConnectionOpenedEvent struct {
	Connection  ConnectionHandle
	Address     string
	AddressType AddressType
}

// ConnectionParametersEvent reports the timing the link settled on.
type ConnectionParametersEvent struct {
	Connection ConnectionHandle
	Interval   uint16 // 1.25 ms units
	Latency    uint16
	Timeout    uint16 // 10 ms units
	PDUSize    uint16
}

// PHYStatusEvent reports the PHY currently in use on a link.
type PHYStatusEvent struct {
	Connection ConnectionHandle
	PHY        PHY
}

// MTUExchangedEvent reports the ATT MTU agreed with the peer.
type MTUExchangedEvent struct {
	Connection ConnectionHandle
	MTU        uint16
}

// ServiceEvent reports one primary service found during discovery.
type ServiceEvent struct {
	Connection ConnectionHandle
	Service    ServiceHandle
	UUID       ble.UUID
}

// CharacteristicEvent reports one characteristic found during discovery.
type CharacteristicEvent struct {
	Connection     ConnectionHandle
	Characteristic CharacteristicHandle
	Properties     uint8
	UUID           ble.UUID
}

// ProcedureCompletedEvent ends a GATT procedure; Result 0 means success.
type ProcedureCompletedEvent struct {
	Connection ConnectionHandle
	Result     uint16
}

// CharacteristicValueEvent delivers a notified or indicated value.
type CharacteristicValueEvent struct {
	Connection     ConnectionHandle
	Characteristic CharacteristicHandle
	Kind           DeliveryKind
	Value          []byte
}

// TimerEvent fires when a one-shot timer expires.
type TimerEvent struct {
	ID TimerID
}

// ConnectionClosedEvent reports link loss.
type ConnectionClosedEvent struct {
	Connection ConnectionHandle
	Reason     uint16
}

func (BootEvent) EventName() string                 { return "boot" }
func (ScanReportEvent) EventName() string           { return "scan_report" }
func (ConnectionOpenedEvent) EventName() string     { return "connection_opened" }
func (ConnectionParametersEvent) EventName() string { return "connection_parameters" }
func (PHYStatusEvent) EventName() string            { return "phy_status" }
func (MTUExchangedEvent) EventName() string         { return "mtu_exchanged" }
func (ServiceEvent) EventName() string              { return "service" }
func (CharacteristicEvent) EventName() string       { return "characteristic" }
func (ProcedureCompletedEvent) EventName() string   { return "procedure_completed" }
func (CharacteristicValueEvent) EventName() string  { return "characteristic_value" }
func (TimerEvent) EventName() string                { return "timer" }
func (ConnectionClosedEvent) EventName() string     { return "connection_closed" }

// Describe renders an event for debug logs without dumping payloads.
func Describe(e Event) string {
	switch ev := e.(type) {
	case nil:
		return "<nil>"
	case ScanReportEvent:
		return fmt.Sprintf("%s addr=%s rssi=%d len=%d", ev.EventName(), ev.Address, ev.RSSI, len(ev.Data))
	case CharacteristicValueEvent:
		return fmt.Sprintf("%s char=%d kind=%s len=%d", ev.EventName(), ev.Characteristic, ev.Kind, len(ev.Value))
	case ProcedureCompletedEvent:
		return fmt.Sprintf("%s result=0x%04x", ev.EventName(), ev.Result)
	default:
		return fmt.Sprintf("%s %+v", e.EventName(), e)
	}
}
