package device

import (
	"errors"
	"fmt"

	"github.com/go-ble/ble"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout       = errors.New("timeout")
	ErrUnsupported   = errors.New("unsupported")
	ErrBluetoothOff  = errors.New("bluetooth is turned off")
	ErrUnknownHandle = errors.New("unknown handle")
	ErrBusy          = errors.New("stack busy")
)

// CommandError reports a stack command that the stack refused to accept.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ConnectionParameters is the connection timing requested from the peer.
// Intervals are in 1.25 ms units, the timeout in 10 ms units.
type ConnectionParameters struct {
	MinInterval uint16
	MaxInterval uint16
	Latency     uint16
	Timeout     uint16
}

// Stack is the command side of a BLE stack. Every command only reports whether
// the stack accepted it; outcomes arrive later as Events.
type Stack interface {
	SetMaxMTU(mtu uint16) error
	SetTxPower(level int16) error
	SetDiscoveryParameters(active bool, interval, window uint16) error
	StartDiscovery(phy PHY, mode DiscoveryMode) error
	EndDiscovery() error
	Connect(address string, addrType AddressType, phy PHY) error
	SetPHY(conn ConnectionHandle, phy PHY) error
	SetConnectionParameters(conn ConnectionHandle, params ConnectionParameters) error
	DiscoverPrimaryServiceByUUID(conn ConnectionHandle, uuid ble.UUID) error
	DiscoverCharacteristics(conn ConnectionHandle, service ServiceHandle) error
	SetCharacteristicNotification(conn ConnectionHandle, char CharacteristicHandle, kind SubscriptionKind) error
	SendCharacteristicConfirmation(conn ConnectionHandle) error
	WriteCharacteristicWithoutResponse(conn ConnectionHandle, char CharacteristicHandle, payload []byte) error
	ArmOneShotTimer(ticks uint32, id TimerID) error
	ResetDevice() error
}

// EventSource is the event side of a BLE stack.
type EventSource interface {
	Events() <-chan Event
}
