package throughput

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
)

// Action identifies the GATT procedure the sequencer is waiting on.
type Action uint8

const (
	ActionNone Action = iota
	ActionDiscoverService
	ActionDiscoverCharacteristics
	ActionEnableNotification
	ActionEnableIndication
	ActionSubscribeResult
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionDiscoverService:
		return "discover_service"
	case ActionDiscoverCharacteristics:
		return "discover_characteristics"
	case ActionEnableNotification:
		return "enable_notification"
	case ActionEnableIndication:
		return "enable_indication"
	case ActionSubscribeResult:
		return "subscribe_result"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// step is one GATT procedure in the discovery chain.
type step interface {
	action() Action
	issue(stack device.Stack, conn device.ConnectionHandle) error
}

type discoverServiceStep struct {
	uuid ble.UUID
}

type discoverCharacteristicsStep struct {
	service device.ServiceHandle
}

type enableNotificationStep struct {
	characteristic device.CharacteristicHandle
}

type enableIndicationStep struct {
	characteristic device.CharacteristicHandle
}

type subscribeResultStep struct {
	characteristic device.CharacteristicHandle
}

func (discoverServiceStep) action() Action         { return ActionDiscoverService }
func (discoverCharacteristicsStep) action() Action { return ActionDiscoverCharacteristics }
func (enableNotificationStep) action() Action      { return ActionEnableNotification }
func (enableIndicationStep) action() Action        { return ActionEnableIndication }
func (subscribeResultStep) action() Action         { return ActionSubscribeResult }

func (s discoverServiceStep) issue(stack device.Stack, conn device.ConnectionHandle) error {
	return stack.DiscoverPrimaryServiceByUUID(conn, s.uuid)
}

func (s discoverCharacteristicsStep) issue(stack device.Stack, conn device.ConnectionHandle) error {
	return stack.DiscoverCharacteristics(conn, s.service)
}

func (s enableNotificationStep) issue(stack device.Stack, conn device.ConnectionHandle) error {
	return stack.SetCharacteristicNotification(conn, s.characteristic, device.SubscribeNotification)
}

func (s enableIndicationStep) issue(stack device.Stack, conn device.ConnectionHandle) error {
	return stack.SetCharacteristicNotification(conn, s.characteristic, device.SubscribeIndication)
}

// The result characteristic is always subscribed with indications.
func (s subscribeResultStep) issue(stack device.Stack, conn device.ConnectionHandle) error {
	return stack.SetCharacteristicNotification(conn, s.characteristic, device.SubscribeIndication)
}

func actionOf(s step) Action {
	if s == nil {
		return ActionNone
	}
	return s.action()
}

// issueStep sends the step's command and makes it the pending action.
func (c *Controller) issueStep(s step) {
	conn, ok := c.s.connection.Get()
	if !ok {
		c.logger.WithField("action", s.action()).Warn("No connection for discovery step")
		return
	}
	c.logger.WithFields(logrus.Fields{
		"action":     s.action(),
		"connection": conn,
	}).Debug("Issuing discovery step")

	if err := s.issue(c.stack, conn); err != nil {
		c.s.pending = nil
		c.commandFailed(s.action().String(), err)
		return
	}
	c.s.pending = s
}

func (c *Controller) handleDiscovering(ev device.Event) {
	switch e := ev.(type) {
	case device.ServiceEvent:
		c.onService(e)
	case device.CharacteristicEvent:
		c.onCharacteristic(e)
	case device.ProcedureCompletedEvent:
		c.onProcedureCompleted(e)
	default:
		c.ignored(ev)
	}
}

func (c *Controller) onService(e device.ServiceEvent) {
	if _, ok := c.s.pending.(discoverServiceStep); !ok {
		c.ignored(e)
		return
	}
	if !device.SameUUID(e.UUID, ServiceUUID) || c.s.service.ok {
		return
	}
	c.s.service = some(e.Service)
	c.logger.WithField("service", e.Service).Info("Throughput service found")
	c.reporter.ServiceFound(e.Service)
}

func (c *Controller) onCharacteristic(e device.CharacteristicEvent) {
	if _, ok := c.s.pending.(discoverCharacteristicsStep); !ok {
		c.ignored(e)
		return
	}
	role, ok := roleOf(e.UUID)
	if !ok || c.s.characteristics[role].ok {
		return
	}
	c.s.characteristics[role] = some(e.Characteristic)
	c.s.discovered++
	c.logger.WithFields(logrus.Fields{
		"role":           role,
		"characteristic": e.Characteristic,
		"discovered":     c.s.discovered,
	}).Info("Characteristic found")
	c.reporter.CharacteristicFound(role, e.Characteristic)
}

func (c *Controller) onProcedureCompleted(e device.ProcedureCompletedEvent) {
	current := c.s.pending
	if current == nil {
		c.ignored(e)
		return
	}
	c.s.pending = nil

	if e.Result != 0 {
		err := &ProcedureError{Action: current.action(), Result: e.Result}
		c.logger.WithError(err).Error("GATT procedure failed, discovery stalled until the link is closed")
		c.reporter.Failure(err)
		return
	}

	switch current.(type) {
	case discoverServiceStep:
		svc, ok := c.s.service.Get()
		if !ok {
			c.logger.Error("Service discovery completed without the throughput service")
			c.reporter.Failure(ErrServiceNotFound)
			return
		}
		c.issueStep(discoverCharacteristicsStep{service: svc})

	case discoverCharacteristicsStep:
		if c.s.discovered < int(roleCount) {
			c.logger.WithField("discovered", c.s.discovered).Error("Characteristic discovery completed with characteristics missing")
			c.reporter.Failure(fmt.Errorf("%w: found %d of %d", ErrCharacteristicsMissing, c.s.discovered, roleCount))
			return
		}
		if c.cfg.Mode.Fixed() && c.cfg.Subscription == device.SubscribeIndication {
			c.issueStep(enableIndicationStep{characteristic: c.mustCharacteristic(RoleIndications)})
		} else {
			c.issueStep(enableNotificationStep{characteristic: c.mustCharacteristic(RoleNotifications)})
		}

	case enableNotificationStep:
		c.reporter.Subscribed(RoleNotifications, device.SubscribeNotification)
		if c.cfg.Mode == ModeFree {
			c.issueStep(enableIndicationStep{characteristic: c.mustCharacteristic(RoleIndications)})
		} else {
			c.issueStep(subscribeResultStep{characteristic: c.mustCharacteristic(RoleResult)})
		}

	case enableIndicationStep:
		c.reporter.Subscribed(RoleIndications, device.SubscribeIndication)
		c.issueStep(subscribeResultStep{characteristic: c.mustCharacteristic(RoleResult)})

	case subscribeResultStep:
		c.reporter.Subscribed(RoleResult, device.SubscribeIndication)
		c.enterTransmitting()
	}
}

// mustCharacteristic is only called once all four roles are resolved.
func (c *Controller) mustCharacteristic(role CharacteristicRole) device.CharacteristicHandle {
	h, _ := c.s.characteristic(role)
	return h
}
