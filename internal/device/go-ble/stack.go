package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/eventq"
	"github.com/srg/blethroughput/internal/groutine"
)

// Reason and result codes reported in synthesised events.
const (
	ReasonRemoteTerminated  uint16 = 0x0213
	ReasonConnectionFailed  uint16 = 0x023e
	ResultProcedureFailed   uint16 = 0x040e
	ResultProcedureComplete uint16 = 0x0000
)

// maxPDUSize is the largest LL data PDU payload.
const maxPDUSize = 251

// BootVersion is reported in every BootEvent.
var BootVersion = device.BootEvent{Major: 1, Minor: 0, Patch: 0}

// Options configures a Stack.
type Options struct {
	ConnectTimeout time.Duration `default:"10s"`
	QueueSize      int           `default:"512"`
	WorkQueue      int           `default:"64"`
	MaxMTU         uint16        `default:"247"`
}

// Option mutates Options.
type Option func(*Options)

// WithConnectTimeout bounds each dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// WithQueueSize sets the event queue capacity.
func WithQueueSize(n int) Option {
	return func(o *Options) { o.QueueSize = n }
}

// WithWorkQueue sets how many commands may wait for the GATT worker.
func WithWorkQueue(n int) Option {
	return func(o *Options) { o.WorkQueue = n }
}

type job struct {
	name string
	gen  uint64
	fn   func(ctx context.Context)
}

// link is the state of the single open connection.
type link struct {
	handle        device.ConnectionHandle
	address       string
	client        GATTClient
	mtu           uint16
	cancel        context.CancelFunc
	subscriptions map[device.CharacteristicHandle]device.SubscriptionKind
}

// Stack drives a go-ble radio and translates its blocking API into
// asynchronous commands and events.
type Stack struct {
	logger *logrus.Logger
	opts   Options
	dial   Dialer

	ctx    context.Context
	cancel context.CancelFunc

	events *eventq.Queue[device.Event]
	work   chan job

	mu         sync.Mutex
	generation uint64
	closed     bool
	radio      Radio
	link       *link
	connecting context.CancelFunc
	scanCancel context.CancelFunc
	timers     map[device.TimerID]*time.Timer
	maxMTU     uint16
	nextConn   device.ConnectionHandle

	services        *hashmap.Map[uint32, *ble.Service]
	characteristics *hashmap.Map[uint32, *ble.Characteristic]
	nextService     uint32
	nextChar        uint32
}

var _ device.Stack = (*Stack)(nil)
var _ device.EventSource = (*Stack)(nil)

// New creates a Stack and starts its GATT worker. The radio is opened by the
// first ResetDevice.
func New(logger *logrus.Logger, opts ...Option) *Stack {
	return NewWithDialer(logger, dialRadio, opts...)
}

// NewWithDialer is New with a custom dialer.
func NewWithDialer(logger *logrus.Logger, dial Dialer, opts ...Option) *Stack {
	if logger == nil {
		logger = logrus.New()
	}

	var o Options
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stack{
		logger:          logger,
		opts:            o,
		dial:            dial,
		ctx:             ctx,
		cancel:          cancel,
		events:          eventq.New[device.Event](o.QueueSize),
		work:            make(chan job, o.WorkQueue),
		timers:          make(map[device.TimerID]*time.Timer),
		maxMTU:          o.MaxMTU,
		services:        hashmap.New[uint32, *ble.Service](),
		characteristics: hashmap.New[uint32, *ble.Characteristic](),
	}

	groutine.GoRecover(ctx, "ble-gatt-worker", logger, s.worker)
	return s
}

// Events returns the channel every stack event is delivered on.
func (s *Stack) Events() <-chan device.Event {
	return s.events.C()
}

// Metrics reports event queue counters.
func (s *Stack) Metrics() eventq.Metrics {
	return s.events.GetMetrics()
}

func (s *Stack) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.work:
			if j.gen != s.currentGeneration() {
				s.logger.WithField("command", j.name).Debug("Dropping stale command after reset")
				continue
			}
			j.fn(ctx)
		}
	}
}

func (s *Stack) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// submit queues fn for the GATT worker without blocking the caller.
func (s *Stack) submit(name string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	gen, closed := s.generation, s.closed
	s.mu.Unlock()

	if closed {
		return device.ErrNotInitialized
	}

	select {
	case s.work <- job{name: name, gen: gen, fn: fn}:
		return nil
	default:
		s.logger.WithField("command", name).Warn("GATT work queue full")
		return device.ErrBusy
	}
}

func (s *Stack) emit(ev device.Event) {
	if err := s.events.Send(s.ctx, ev); err != nil {
		s.logger.WithFields(logrus.Fields{
			"event": ev.EventName(),
			"error": err,
		}).Debug("Event discarded")
	}
}

// ResetDevice drops all links, timers and scans, then reports a boot.
func (s *Stack) ResetDevice() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return device.ErrNotInitialized
	}
	s.generation++
	old := s.teardownLocked()
	s.mu.Unlock()

	dropped := s.events.Drain()
	s.logger.WithField("dropped_events", dropped).Debug("Resetting BLE stack")

	return s.submit("reset", func(ctx context.Context) {
		if old != nil {
			s.cancelClient(old)
		}
		if _, err := s.ensureRadio(); err != nil {
			s.logger.WithError(err).Error("Failed to open BLE radio")
			return
		}
		s.emit(BootVersion)
	})
}

// teardownLocked clears per-session state and returns the link that must be
// cancelled outside the lock.
func (s *Stack) teardownLocked() *link {
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
	if s.connecting != nil {
		s.connecting()
		s.connecting = nil
	}
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.clearRegistries()

	old := s.link
	if old != nil && old.cancel != nil {
		old.cancel()
	}
	s.link = nil
	return old
}

func (s *Stack) clearRegistries() {
	s.services.Range(func(k uint32, _ *ble.Service) bool {
		s.services.Del(k)
		return true
	})
	s.characteristics.Range(func(k uint32, _ *ble.Characteristic) bool {
		s.characteristics.Del(k)
		return true
	})
}

func (s *Stack) cancelClient(l *link) {
	if l.client == nil {
		return
	}
	if err := l.client.CancelConnection(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": l.address,
			"error":   NormalizeError(err),
		}).Debug("Failed to cancel connection")
	}
}

func (s *Stack) ensureRadio() (Radio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.radio != nil {
		return s.radio, nil
	}
	radio, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	s.radio = radio
	return radio, nil
}

// Close releases the radio and closes the event channel.
func (s *Stack) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	old := s.teardownLocked()
	radio := s.radio
	s.radio = nil
	s.mu.Unlock()

	s.cancel()
	if old != nil {
		s.cancelClient(old)
	}
	s.events.Close()

	if radio != nil {
		if err := radio.Stop(); err != nil {
			return fmt.Errorf("failed to stop BLE device: %w", NormalizeError(err))
		}
	}
	return nil
}

// SetMaxMTU caps the MTU requested on the next connection.
func (s *Stack) SetMaxMTU(mtu uint16) error {
	s.mu.Lock()
	s.maxMTU = mtu
	s.mu.Unlock()
	s.logger.WithField("mtu", mtu).Debug("Max MTU set")
	return nil
}

// SetTxPower only logs the requested level; go-ble exposes no TX power control.
func (s *Stack) SetTxPower(power int16) error {
	s.logger.WithField("tx_power", power).Debug("TX power set")
	return nil
}

// SetDiscoveryParameters only logs scan timing; go-ble fixes the scan type and
// timing when the platform device is opened.
func (s *Stack) SetDiscoveryParameters(active bool, interval, window uint16) error {
	s.logger.WithFields(logrus.Fields{
		"active":   active,
		"interval": interval,
		"window":   window,
	}).Debug("Discovery parameters set")
	return nil
}

// SetPHY echoes the requested PHY. go-ble has no PHY update procedure.
func (s *Stack) SetPHY(conn device.ConnectionHandle, phy device.PHY) error {
	if _, err := s.activeLink(conn); err != nil {
		return err
	}
	return s.submit("set_phy", func(context.Context) {
		s.emit(device.PHYStatusEvent{Connection: conn, PHY: phy})
	})
}

// SetConnectionParameters echoes the requested timing as the settled timing.
func (s *Stack) SetConnectionParameters(conn device.ConnectionHandle, p device.ConnectionParameters) error {
	l, err := s.activeLink(conn)
	if err != nil {
		return err
	}
	pdu := l.mtu + 4
	if pdu > maxPDUSize {
		pdu = maxPDUSize
	}
	return s.submit("set_connection_parameters", func(context.Context) {
		s.emit(device.ConnectionParametersEvent{
			Connection: conn,
			Interval:   p.MaxInterval,
			Latency:    p.Latency,
			Timeout:    p.Timeout,
			PDUSize:    pdu,
		})
	})
}

// SendCharacteristicConfirmation is a no-op: go-ble confirms indications itself.
func (s *Stack) SendCharacteristicConfirmation(conn device.ConnectionHandle) error {
	_, err := s.activeLink(conn)
	return err
}

func (s *Stack) activeLink(conn device.ConnectionHandle) (*link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link == nil || s.link.handle != conn {
		return nil, device.ErrNotConnected
	}
	return s.link, nil
}
