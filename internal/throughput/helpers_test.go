package throughput

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// recordingReporter keeps every report as a short string plus the typed payloads
// tests care about.
type recordingReporter struct {
	events   []string
	runs     []RunSummary
	results  []uint32
	failures []error
	links    []LinkParameters
	progress int
}

func (r *recordingReporter) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Booted(cfg SessionConfig)                   { r.add("booted %s", cfg.Mode) }
func (r *recordingReporter) ScanProgress()                              { r.progress++ }
func (r *recordingReporter) DeviceFound(address string)                 { r.add("found %s", address) }
func (r *recordingReporter) ConnectionOpened(c device.ConnectionHandle) { r.add("opened %d", c) }
func (r *recordingReporter) ConnectionClosed(reason uint16)             { r.add("closed 0x%04x", reason) }
func (r *recordingReporter) MTUExchanged(mtu uint16)                    { r.add("mtu %d", mtu) }
func (r *recordingReporter) PHYStatus(phy device.PHY)                   { r.add("phy %s", phy) }
func (r *recordingReporter) ServiceFound(s device.ServiceHandle)        { r.add("service %d", s) }
func (r *recordingReporter) CharacteristicFound(role CharacteristicRole, h device.CharacteristicHandle) {
	r.add("characteristic %s %d", role, h)
}
func (r *recordingReporter) Subscribed(role CharacteristicRole, kind device.SubscriptionKind) {
	r.add("subscribed %s %s", role, kind)
}
func (r *recordingReporter) DiscoveryDone(link LinkParameters) {
	r.links = append(r.links, link)
	r.add("discovery done")
}
func (r *recordingReporter) RunCompleted(s RunSummary) {
	r.runs = append(r.runs, s)
	r.add("run completed")
}
func (r *recordingReporter) DeviceResult(bps uint32) {
	r.results = append(r.results, bps)
	r.add("result %d", bps)
}
func (r *recordingReporter) Failure(err error) {
	r.failures = append(r.failures, err)
	r.add("failure %v", err)
}

// Handles used by the scripted peer.
const (
	testConn          device.ConnectionHandle     = 1
	testService       device.ServiceHandle        = 0x00010020
	testNotifications device.CharacteristicHandle = 21
	testIndications   device.CharacteristicHandle = 24
	testTransmission  device.CharacteristicHandle = 27
	testResult        device.CharacteristicHandle = 30
	testAddress                                   = "00:0b:57:aa:bb:cc"
)

// ControllerSuite drives a Controller through a scripted peer.
type ControllerSuite struct {
	suite.Suite

	cfg        SessionConfig
	stack      *testutils.FakeStack
	clock      *testutils.FakeClock
	reporter   *recordingReporter
	controller *Controller
	retryTimer *testutils.FakeTimer
}

func (s *ControllerSuite) SetupTest() {
	s.cfg = DefaultSessionConfig()
	s.stack = testutils.NewFakeStack()
	s.clock = testutils.NewFakeClock()
	s.reporter = &recordingReporter{}
	s.retryTimer = testutils.NewFakeTimer()
	s.build()
}

// build recreates the controller after s.cfg was changed.
func (s *ControllerSuite) build() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s.controller = NewController(s.cfg, s.stack,
		WithReporter(s.reporter),
		WithLogger(logger),
		WithClock(s.clock),
		WithPHYRetry(RetryPolicy{Attempts: 4, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}, s.retryTimer),
	)
}

func (s *ControllerSuite) handle(ev device.Event) bool {
	return s.controller.HandleEvent(ev)
}

func (s *ControllerSuite) advertisement(name string) device.ScanReportEvent {
	data := append(BuildADRecord(0x01, []byte{0x06}), CompleteLocalName(name)...)
	return device.ScanReportEvent{Address: testAddress, AddressType: device.AddressPublic, RSSI: -40, Data: data}
}

func (s *ControllerSuite) boot() {
	s.handle(device.BootEvent{Major: 2})
	s.Require().Equal(PhaseScanning, s.controller.Phase(), "boot MUST enter Scanning")
}

func (s *ControllerSuite) connect() {
	s.boot()
	s.handle(s.advertisement(DefaultDeviceName))
	s.handle(device.ConnectionOpenedEvent{Connection: testConn, Address: testAddress})
	s.Require().Equal(PhaseNegotiatingParameters, s.controller.Phase())
}

func (s *ControllerSuite) negotiate() {
	s.connect()
	s.handle(device.MTUExchangedEvent{Connection: testConn, MTU: s.cfg.MTU})
	if s.cfg.InitiatingPHY() != s.cfg.PHY {
		s.handle(device.PHYStatusEvent{Connection: testConn, PHY: s.cfg.PHY})
	}
	s.handle(device.ConnectionParametersEvent{Connection: testConn, Interval: s.cfg.ConnectionInterval, Latency: 0, Timeout: 100, PDUSize: 251})
	s.Require().Equal(PhaseDiscovering, s.controller.Phase(), "matching parameters MUST start discovery")
}

func (s *ControllerSuite) completed(result uint16) {
	s.handle(device.ProcedureCompletedEvent{Connection: testConn, Result: result})
}

func (s *ControllerSuite) discoverAll() {
	s.handle(device.ServiceEvent{Connection: testConn, Service: testService, UUID: ServiceUUID})
	s.completed(0)
	s.handle(device.CharacteristicEvent{Connection: testConn, Characteristic: testNotifications, UUID: NotificationsUUID})
	s.handle(device.CharacteristicEvent{Connection: testConn, Characteristic: testIndications, UUID: IndicationsUUID})
	s.handle(device.CharacteristicEvent{Connection: testConn, Characteristic: testTransmission, UUID: TransmissionUUID})
	s.handle(device.CharacteristicEvent{Connection: testConn, Characteristic: testResult, UUID: ResultUUID})
	s.completed(0)
}

// transmit brings the session to Transmitting.
func (s *ControllerSuite) transmit() {
	s.negotiate()
	s.discoverAll()
	for s.controller.PendingAction() != ActionNone {
		s.completed(0)
	}
	s.Require().Equal(PhaseTransmitting, s.controller.Phase(), "subscriptions MUST lead to Transmitting")
}

func (s *ControllerSuite) data(char device.CharacteristicHandle, kind device.DeliveryKind, n int) bool {
	return s.handle(device.CharacteristicValueEvent{Connection: testConn, Characteristic: char, Kind: kind, Value: make([]byte, n)})
}

func (s *ControllerSuite) result(bps uint32) bool {
	v := []byte{byte(bps), byte(bps >> 8), byte(bps >> 16), byte(bps >> 24)}
	return s.handle(device.CharacteristicValueEvent{Connection: testConn, Characteristic: testResult, Kind: device.DeliveredIndication, Value: v})
}
