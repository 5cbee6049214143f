package main

import (
	"bytes"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/eventq"
	"github.com/srg/blethroughput/internal/testutils"
	"github.com/srg/blethroughput/pkg/config"
)

// scriptedStack answers every reset with a boot event, like a real adapter.
type scriptedStack struct {
	*testutils.FakeStack
	events  chan device.Event
	closed  atomic.Bool
	metrics eventq.Metrics
}

func newScriptedStack() *scriptedStack {
	return &scriptedStack{
		FakeStack: testutils.NewFakeStack(),
		events:    make(chan device.Event, 16),
	}
}

func (s *scriptedStack) ResetDevice() error {
	if err := s.FakeStack.ResetDevice(); err != nil {
		return err
	}
	s.events <- device.BootEvent{Major: 1}
	return nil
}

func (s *scriptedStack) Events() <-chan device.Event { return s.events }

func (s *scriptedStack) Metrics() eventq.Metrics { return s.metrics }

func (s *scriptedStack) Close() error {
	s.closed.Store(true)
	return nil
}

// CommandTestSuite swaps the BLE stack and signal source for test doubles.
type CommandTestSuite struct {
	suite.Suite

	stack        *scriptedStack
	stackCreated atomic.Int32
	signals      chan chan<- os.Signal

	origNewStack        func(*logrus.Logger, *config.Config) sessionStack
	origNotifyInterrupt func(chan<- os.Signal) func()
}

func (s *CommandTestSuite) SetupTest() {
	s.stack = newScriptedStack()
	s.stackCreated.Store(0)
	s.signals = make(chan chan<- os.Signal, 1)

	s.origNewStack = newStack
	s.origNotifyInterrupt = notifyInterrupt

	newStack = func(*logrus.Logger, *config.Config) sessionStack {
		s.stackCreated.Add(1)
		return s.stack
	}
	notifyInterrupt = func(c chan<- os.Signal) func() {
		s.signals <- c
		return func() {}
	}
}

func (s *CommandTestSuite) TearDownTest() {
	newStack = s.origNewStack
	notifyInterrupt = s.origNotifyInterrupt
}

// ExecuteCommand runs a fresh root command with args and stdin, returns stdout, stderr and error.
func (s *CommandTestSuite) ExecuteCommand(stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// InterruptWhenScanning sends Ctrl+C once the controller has started scanning.
func (s *CommandTestSuite) InterruptWhenScanning() {
	go func() {
		sigCh := <-s.signals
		s.Eventually(func() bool {
			return s.stack.Count("StartDiscovery") > 0
		}, testTimeout, testTick, "scan MUST start")
		sigCh <- os.Interrupt
	}()
}
