package testutils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/blethroughput/internal/device"
)

// Command is one call recorded by FakeStack.
type Command struct {
	Name string
	Args []any
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}

// FakeStack records every command it receives and can be told to reject
// specific commands.
type FakeStack struct {
	mu       sync.Mutex
	commands []Command
	failures map[string][]error
}

var _ device.Stack = (*FakeStack)(nil)

func NewFakeStack() *FakeStack {
	return &FakeStack{failures: make(map[string][]error)}
}

// FailNext makes the next len(errs) calls of the named command return errs in order.
func (f *FakeStack) FailNext(name string, errs ...error) *FakeStack {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = append(f.failures[name], errs...)
	return f
}

// Commands returns a copy of all recorded commands.
func (f *FakeStack) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}

// Names returns the recorded command names in call order.
func (f *FakeStack) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.commands))
	for i, c := range f.commands {
		names[i] = c.Name
	}
	return names
}

// Find returns all recorded calls of the named command.
func (f *FakeStack) Find(name string) []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Command
	for _, c := range f.commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how often the named command was called.
func (f *FakeStack) Count(name string) int {
	return len(f.Find(name))
}

// Last returns the most recent command, or the zero Command.
func (f *FakeStack) Last() Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return Command{}
	}
	return f.commands[len(f.commands)-1]
}

// Reset forgets recorded commands; pending failures are kept.
func (f *FakeStack) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = nil
}

func (f *FakeStack) record(name string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, Command{Name: name, Args: args})
	if errs := f.failures[name]; len(errs) > 0 {
		f.failures[name] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *FakeStack) SetMaxMTU(mtu uint16) error {
	return f.record("SetMaxMTU", mtu)
}

func (f *FakeStack) SetTxPower(level int16) error {
	return f.record("SetTxPower", level)
}

func (f *FakeStack) SetDiscoveryParameters(active bool, interval, window uint16) error {
	return f.record("SetDiscoveryParameters", active, interval, window)
}

func (f *FakeStack) StartDiscovery(phy device.PHY, mode device.DiscoveryMode) error {
	return f.record("StartDiscovery", phy, mode)
}

func (f *FakeStack) EndDiscovery() error {
	return f.record("EndDiscovery")
}

func (f *FakeStack) Connect(address string, addrType device.AddressType, phy device.PHY) error {
	return f.record("Connect", address, addrType, phy)
}

func (f *FakeStack) SetPHY(conn device.ConnectionHandle, phy device.PHY) error {
	return f.record("SetPHY", conn, phy)
}

func (f *FakeStack) SetConnectionParameters(conn device.ConnectionHandle, params device.ConnectionParameters) error {
	return f.record("SetConnectionParameters", conn, params)
}

func (f *FakeStack) DiscoverPrimaryServiceByUUID(conn device.ConnectionHandle, uuid ble.UUID) error {
	return f.record("DiscoverPrimaryServiceByUUID", conn, uuid)
}

func (f *FakeStack) DiscoverCharacteristics(conn device.ConnectionHandle, service device.ServiceHandle) error {
	return f.record("DiscoverCharacteristics", conn, service)
}

func (f *FakeStack) SetCharacteristicNotification(conn device.ConnectionHandle, char device.CharacteristicHandle, kind device.SubscriptionKind) error {
	return f.record("SetCharacteristicNotification", conn, char, kind)
}

func (f *FakeStack) SendCharacteristicConfirmation(conn device.ConnectionHandle) error {
	return f.record("SendCharacteristicConfirmation", conn)
}

func (f *FakeStack) WriteCharacteristicWithoutResponse(conn device.ConnectionHandle, char device.CharacteristicHandle, payload []byte) error {
	return f.record("WriteCharacteristicWithoutResponse", conn, char, append([]byte(nil), payload...))
}

func (f *FakeStack) ArmOneShotTimer(ticks uint32, id device.TimerID) error {
	return f.record("ArmOneShotTimer", ticks, id)
}

func (f *FakeStack) ResetDevice() error {
	return f.record("ResetDevice")
}
