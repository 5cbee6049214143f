package throughput

import (
	"fmt"

	"github.com/srg/blethroughput/internal/device"
)

// Phase of a test session.
type Phase uint8

const (
	PhaseScanning Phase = iota
	PhaseNegotiatingParameters
	PhaseDiscovering
	PhaseTransmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseScanning:
		return "scanning"
	case PhaseNegotiatingParameters:
		return "negotiating_parameters"
	case PhaseDiscovering:
		return "discovering"
	case PhaseTransmitting:
		return "transmitting"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// optional holds a stack handle that may not have been resolved yet.
type optional[T comparable] struct {
	value T
	ok    bool
}

func some[T comparable](v T) optional[T] {
	return optional[T]{value: v, ok: true}
}

func (o optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Is reports whether the handle is resolved and equal to v.
func (o optional[T]) Is(v T) bool {
	return o.ok && o.value == v
}

// LinkParameters are the values the stack reported for the current link.
// Zero means not reported yet.
type LinkParameters struct {
	Interval uint16 // 1.25 ms units
	MTU      uint16
	PDUSize  uint16
	Timeout  uint16 // 10 ms units
	Latency  uint16
	PHY      device.PHY
}

// IntervalMillis is Interval in milliseconds.
func (l LinkParameters) IntervalMillis() float64 {
	return IntervalToMillis(l.Interval)
}

// session is everything the controller learns about the current link.
type session struct {
	phase      Phase
	pending    step
	connection optional[device.ConnectionHandle]
	connecting bool

	service         optional[device.ServiceHandle]
	characteristics [roleCount]optional[device.CharacteristicHandle]
	discovered      int

	link        LinkParameters
	firstPacket bool
	// phyFallback is set once the PHY change was given up on; the
	// initiating PHY is then accepted.
	phyFallback bool
}

func newSession() session {
	return session{phase: PhaseScanning, firstPacket: true}
}

func (s *session) reset() {
	*s = newSession()
}

func (s *session) characteristic(role CharacteristicRole) (device.CharacteristicHandle, bool) {
	return s.characteristics[role].Get()
}

// roleOfHandle finds the role of a resolved characteristic handle.
func (s *session) roleOfHandle(h device.CharacteristicHandle) (CharacteristicRole, bool) {
	for r := CharacteristicRole(0); r < roleCount; r++ {
		if s.characteristics[r].Is(h) {
			return r, true
		}
	}
	return 0, false
}

func (s *session) storeParameters(ev device.ConnectionParametersEvent) {
	s.link.Interval = ev.Interval
	s.link.PDUSize = ev.PDUSize
	s.link.Latency = ev.Latency
	s.link.Timeout = ev.Timeout
}
