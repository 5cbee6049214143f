package throughput

import (
	"encoding/binary"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
)

// Radio settings applied at boot.
const (
	TxPower      int16  = 100 // 0.1 dBm units
	ScanInterval uint16 = 16  // 0.625 ms units
	ScanWindow   uint16 = 16

	// FixedTransferTimer is the timer id reserved for fixed-time runs.
	FixedTransferTimer device.TimerID = 0

	supervisionTimeout uint16 = 100
)

var (
	transmissionOn  = []byte{0x01}
	transmissionOff = []byte{0x00}
)

// Option configures a Controller.
type Option func(*Controller)

// WithReporter sets where progress and results are reported.
func WithReporter(r Reporter) Option {
	return func(c *Controller) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithLogger sets the logger; nil keeps the default.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the clock used to time runs.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.acc = NewAccumulator(clock)
	}
}

// WithPHYRetry sets the retry policy for the post-connect PHY change and the
// timer used to wait between attempts. A nil timer waits in real time.
func WithPHYRetry(p RetryPolicy, timer backoff.Timer) Option {
	return func(c *Controller) {
		c.phyRetry = p
		c.retryTimer = timer
	}
}

// Controller drives one throughput session from stack events.
// It is not safe for concurrent use; feed it from a single goroutine.
type Controller struct {
	cfg      SessionConfig
	stack    device.Stack
	reporter Reporter
	logger   *logrus.Logger

	phyRetry   RetryPolicy
	retryTimer backoff.Timer

	booted      bool
	initPHY     device.PHY
	s           session
	acc         *Accumulator
	inputNeeded bool
}

// NewController creates a controller that issues commands on stack.
func NewController(cfg SessionConfig, stack device.Stack, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		stack:    stack,
		reporter: NopReporter{},
		logger:   logrus.New(),
		phyRetry: DefaultPHYRetry,
		initPHY:  cfg.InitiatingPHY(),
		s:        newSession(),
		acc:      NewAccumulator(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the session configuration.
func (c *Controller) Config() SessionConfig { return c.cfg }

// Booted reports whether a boot event has been handled.
func (c *Controller) Booted() bool { return c.booted }

// Phase returns the current session phase.
func (c *Controller) Phase() Phase { return c.s.phase }

// PendingAction returns the discovery procedure being waited on.
func (c *Controller) PendingAction() Action { return actionOf(c.s.pending) }

// Link returns the link parameters reported so far.
func (c *Controller) Link() LinkParameters { return c.s.link }

// HandleEvent processes one stack event and reports whether the user should be
// asked what to do next, which only happens after a one-shot run finished.
func (c *Controller) HandleEvent(ev device.Event) bool {
	if ev == nil {
		return false
	}
	c.inputNeeded = false

	if _, ok := ev.(device.BootEvent); ok {
		c.boot()
		return false
	}
	if !c.booted {
		c.logger.WithField("event", ev.EventName()).Debug("Stack not booted, dropping event")
		return false
	}

	if c.logger.IsLevelEnabled(logrus.TraceLevel) {
		c.logger.WithFields(logrus.Fields{
			"phase": c.s.phase,
			"event": device.Describe(ev),
		}).Trace("Handling event")
	}

	switch c.s.phase {
	case PhaseScanning:
		c.handleScanning(ev)
	case PhaseNegotiatingParameters:
		c.handleNegotiating(ev)
	case PhaseDiscovering:
		c.handleDiscovering(ev)
	case PhaseTransmitting:
		c.handleTransmitting(ev)
	}

	c.handleCommon(ev)
	return c.inputNeeded
}

func (c *Controller) boot() {
	if c.booted {
		c.logger.WithField("phase", c.s.phase).Info("Stack rebooted, restarting session")
	}
	c.booted = true
	c.s.reset()
	c.acc.Reset()

	if err := c.stack.SetMaxMTU(c.cfg.MTU); err != nil {
		c.commandFailed("set_max_mtu", err)
	}
	if err := c.stack.SetTxPower(TxPower); err != nil {
		c.commandFailed("set_tx_power", err)
	}
	c.initPHY = c.cfg.InitiatingPHY()

	c.logger.WithFields(logrus.Fields{
		"mode":           c.cfg.Mode,
		"phy":            c.cfg.PHY,
		"initiating_phy": c.initPHY,
		"mtu":            c.cfg.MTU,
		"interval":       c.cfg.ConnectionInterval,
	}).Info("System booted, starting scan")
	c.reporter.Booted(c.cfg)

	c.startScanning()
}

func (c *Controller) startScanning() {
	c.s.phase = PhaseScanning
	if err := c.stack.SetDiscoveryParameters(false, ScanInterval, ScanWindow); err != nil {
		c.commandFailed("set_discovery_parameters", err)
	}
	if err := c.stack.StartDiscovery(c.initPHY, device.DiscoverObservation); err != nil {
		c.commandFailed("start_discovery", err)
	}
}

func (c *Controller) handleScanning(ev device.Event) {
	switch e := ev.(type) {
	case device.ScanReportEvent:
		c.onScanReport(e)
	case device.ConnectionOpenedEvent:
		c.onConnectionOpened(e)
	}
}

func (c *Controller) onScanReport(e device.ScanReportEvent) {
	if c.s.connecting {
		return
	}
	if !MatchesName(e.Data, c.cfg.DeviceName) {
		c.reporter.ScanProgress()
		return
	}

	c.logger.WithFields(logrus.Fields{
		"address": e.Address,
		"rssi":    e.RSSI,
	}).Info("Throughput tester found, connecting")
	c.reporter.DeviceFound(e.Address)

	if err := c.stack.EndDiscovery(); err != nil {
		c.commandFailed("end_discovery", err)
	}
	if err := c.stack.Connect(e.Address, e.AddressType, c.initPHY); err != nil {
		c.commandFailed("connect", err)
		c.startScanning()
		return
	}
	c.s.connecting = true
}

func (c *Controller) onConnectionOpened(e device.ConnectionOpenedEvent) {
	c.s.connecting = false
	c.s.connection = some(e.Connection)
	c.logger.WithField("connection", e.Connection).Info("Connection opened")
	c.reporter.ConnectionOpened(e.Connection)

	if c.initPHY != c.cfg.PHY {
		c.changePHY(e.Connection)
	}

	params := device.ConnectionParameters{
		MinInterval: c.cfg.ConnectionInterval,
		MaxInterval: c.cfg.ConnectionInterval,
		Latency:     0,
		Timeout:     supervisionTimeout,
	}
	if err := c.stack.SetConnectionParameters(e.Connection, params); err != nil {
		c.commandFailed("set_connection_parameters", err)
	}
	c.s.phase = PhaseNegotiatingParameters
}

// changePHY is the only command that is retried; it blocks between attempts.
func (c *Controller) changePHY(conn device.ConnectionHandle) {
	attempts, err := c.phyRetry.Do(c.retryTimer, func() error {
		return c.stack.SetPHY(conn, c.cfg.PHY)
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"phy":      c.cfg.PHY,
			"attempts": attempts,
			"error":    err,
		}).Warn("PHY change rejected, continuing with the initiating PHY")
		c.s.phyFallback = true
		c.reporter.Failure(&device.CommandError{Command: "set_phy", Err: err})
		return
	}
	c.logger.WithFields(logrus.Fields{
		"phy":      c.cfg.PHY,
		"attempts": attempts,
	}).Debug("PHY change requested")
}

func (c *Controller) handleNegotiating(ev device.Event) {
	switch e := ev.(type) {
	case device.ConnectionParametersEvent:
		c.s.storeParameters(e)
	case device.MTUExchangedEvent:
		c.s.link.MTU = e.MTU
	case device.PHYStatusEvent:
		c.s.link.PHY = e.PHY
	default:
		return
	}

	if !c.negotiated() {
		c.logger.WithFields(logrus.Fields{
			"interval": c.s.link.Interval,
			"mtu":      c.s.link.MTU,
			"phy":      c.s.link.PHY,
		}).Debug("Waiting for requested link parameters")
		return
	}

	c.logger.WithFields(logrus.Fields{
		"interval": c.s.link.Interval,
		"mtu":      c.s.link.MTU,
	}).Info("Link parameters negotiated, discovering service")
	c.s.phase = PhaseDiscovering
	c.issueStep(discoverServiceStep{uuid: ServiceUUID})
}

func (c *Controller) negotiated() bool {
	if c.s.link.Interval != c.cfg.ConnectionInterval || c.s.link.MTU != c.cfg.MTU {
		return false
	}
	return c.initPHY == c.cfg.PHY || c.s.link.PHY == c.cfg.PHY || c.s.phyFallback
}

func (c *Controller) enterTransmitting() {
	c.s.phase = PhaseTransmitting
	c.s.firstPacket = true
	c.acc.Reset()

	c.logger.WithFields(logrus.Fields{
		"interval_ms": c.s.link.IntervalMillis(),
		"latency":     c.s.link.Latency,
		"timeout":     c.s.link.Timeout,
		"pdu":         c.s.link.PDUSize,
	}).Info("Discovery done")
	c.reporter.DiscoveryDone(c.s.link)

	if c.cfg.Mode.Fixed() {
		c.startRun()
	}
}

func (c *Controller) handleTransmitting(ev device.Event) {
	e, ok := ev.(device.CharacteristicValueEvent)
	if !ok {
		return
	}
	role, ok := c.s.roleOfHandle(e.Characteristic)
	if !ok {
		c.ignored(ev)
		return
	}

	switch role {
	case RoleResult:
		c.onResult(e)
	case RoleNotifications, RoleIndications:
		c.onData(e)
	default:
		c.ignored(ev)
	}
}

func (c *Controller) confirm(e device.CharacteristicValueEvent) {
	if e.Kind != device.DeliveredIndication {
		return
	}
	if err := c.stack.SendCharacteristicConfirmation(e.Connection); err != nil {
		c.commandFailed("send_confirmation", err)
	}
}

func (c *Controller) onResult(e device.CharacteristicValueEvent) {
	c.confirm(e)

	var result uint32
	if len(e.Value) >= 4 {
		result = binary.LittleEndian.Uint32(e.Value)
	} else {
		c.logger.WithField("length", len(e.Value)).Warn("Result value too short, reporting 0")
	}
	c.acc.RecordResult(result)

	if c.cfg.Mode == ModeFree {
		c.endRun()
	}
	c.reporter.DeviceResult(result)

	if c.cfg.Mode.OneShot() {
		c.s.phase = PhaseScanning
		c.inputNeeded = true
	}
}

func (c *Controller) onData(e device.CharacteristicValueEvent) {
	c.confirm(e)

	if c.cfg.Mode == ModeFree && c.s.firstPacket {
		c.startRun()
	}
	c.s.firstPacket = false
	c.acc.Add(len(e.Value))

	if c.cfg.Mode == ModeFixedAmount && c.acc.Running() && c.acc.Bits() >= uint64(c.cfg.FixedAmount)*8 {
		c.endRun()
	}
}

func (c *Controller) startRun() {
	c.acc.Start()
	c.logger.WithField("mode", c.cfg.Mode).Info("Transmission started")

	if c.cfg.Mode.Fixed() {
		c.writeTransmission(transmissionOn)
	}
	if c.cfg.Mode == ModeFixedTime {
		ticks := c.cfg.FixedTime * device.TicksPerSecond
		if err := c.stack.ArmOneShotTimer(ticks, FixedTransferTimer); err != nil {
			c.commandFailed("arm_timer", err)
		}
	}
}

func (c *Controller) endRun() {
	if !c.acc.Running() {
		c.logger.Debug("No transmission in progress")
		return
	}
	summary := c.acc.Finish(c.cfg.Mode)

	if c.cfg.Mode.Fixed() {
		c.writeTransmission(transmissionOff)
	}

	c.logger.WithFields(logrus.Fields{
		"bits":       summary.Bits,
		"elapsed":    summary.Elapsed,
		"throughput": summary.Throughput,
		"operations": summary.Operations,
	}).Info("Transmission finished")
	c.reporter.RunCompleted(summary)
	c.s.firstPacket = true
}

func (c *Controller) writeTransmission(v []byte) {
	conn, okConn := c.s.connection.Get()
	char, okChar := c.s.characteristic(RoleTransmission)
	if !okConn || !okChar {
		c.logger.Warn("Transmission characteristic not resolved")
		return
	}
	if err := c.stack.WriteCharacteristicWithoutResponse(conn, char, v); err != nil {
		c.commandFailed("write_transmission", err)
	}
}

func (c *Controller) handleCommon(ev device.Event) {
	switch e := ev.(type) {
	case device.MTUExchangedEvent:
		c.s.link.MTU = e.MTU
		c.logger.WithField("mtu", e.MTU).Info("MTU exchanged")
		c.reporter.MTUExchanged(e.MTU)

	case device.PHYStatusEvent:
		c.s.link.PHY = e.PHY
		c.logger.WithField("phy", e.PHY).Info("PHY status")
		c.reporter.PHYStatus(e.PHY)

	case device.ConnectionParametersEvent:
		c.s.storeParameters(e)

	case device.TimerEvent:
		if e.ID == FixedTransferTimer && c.cfg.Mode == ModeFixedTime {
			c.endRun()
		}

	case device.ConnectionClosedEvent:
		c.logger.WithFields(logrus.Fields{
			"connection": e.Connection,
			"reason":     e.Reason,
			"phase":      c.s.phase,
		}).Info("Connection closed, scanning again")
		c.reporter.ConnectionClosed(e.Reason)
		c.s.reset()
		c.acc.Reset()
		c.startScanning()
	}
}

func (c *Controller) commandFailed(command string, err error) {
	cerr := &device.CommandError{Command: command, Err: err}
	c.logger.WithFields(logrus.Fields{
		"command": command,
		"phase":   c.s.phase,
		"error":   err,
	}).Error("Stack rejected command")
	c.reporter.Failure(cerr)
}

func (c *Controller) ignored(ev device.Event) {
	c.logger.WithFields(logrus.Fields{
		"phase": c.s.phase,
		"event": ev.EventName(),
	}).Debug("Ignoring event")
}
