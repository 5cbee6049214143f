package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/groutine"
)

// Connect dials address on the GATT worker. Success reports the opened link
// followed by its PHY and MTU; failure reports a closed link.
func (s *Stack) Connect(address string, addrType device.AddressType, phy device.PHY) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("device address is empty")
	}

	s.mu.Lock()
	radio := s.radio
	switch {
	case radio == nil:
		s.mu.Unlock()
		return device.ErrNotInitialized
	case s.link != nil || s.connecting != nil:
		s.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	s.nextConn++
	if s.nextConn == 0 {
		s.nextConn = 1
	}
	handle := s.nextConn
	dialCtx, cancel := context.WithTimeout(s.ctx, s.opts.ConnectTimeout)
	s.connecting = cancel
	maxMTU := s.maxMTU
	s.mu.Unlock()

	err := s.submit("connect", func(context.Context) {
		defer cancel()
		s.connect(dialCtx, radio, handle, address, addrType, phy, maxMTU)
	})
	if err != nil {
		s.mu.Lock()
		s.connecting = nil
		s.mu.Unlock()
		cancel()
	}
	return err
}

func (s *Stack) connect(ctx context.Context, radio Radio, handle device.ConnectionHandle, address string,
	addrType device.AddressType, phy device.PHY, maxMTU uint16) {
	s.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": s.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	client, err := s.dial(ctx, radio, address)

	s.mu.Lock()
	s.connecting = nil
	s.mu.Unlock()

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			s.logger.WithField("address", address).Debug("Connect aborted by reset")
			return
		}
		s.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   NormalizeError(err),
		}).Error("Failed to dial BLE device")
		s.emit(device.ConnectionClosedEvent{Connection: handle, Reason: ReasonConnectionFailed})
		return
	}

	mtu := maxMTU
	if got, err := client.ExchangeMTU(int(maxMTU)); err != nil {
		s.logger.WithError(NormalizeError(err)).Debug("MTU exchange unavailable, assuming requested MTU")
	} else if got > 0 && got < int(maxMTU) {
		mtu = uint16(got)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		s.cancelClient(&link{address: address, client: client})
		return
	}

	linkCtx, linkCancel := context.WithCancel(s.ctx)
	l := &link{
		handle:        handle,
		address:       address,
		client:        client,
		mtu:           mtu,
		cancel:        linkCancel,
		subscriptions: make(map[device.CharacteristicHandle]device.SubscriptionKind),
	}

	s.mu.Lock()
	s.link = l
	s.mu.Unlock()

	if n, ok := client.(disconnectNotifier); ok {
		groutine.GoRecover(linkCtx, "ble-connection-monitor", s.logger, func(ctx context.Context) {
			select {
			case <-n.Disconnected():
				s.linkLost(l)
			case <-ctx.Done():
			}
		})
	} else {
		s.logger.Debug("Client does not support Disconnected() channel")
	}

	s.logger.WithFields(logrus.Fields{
		"address":    address,
		"connection": handle,
		"mtu":        mtu,
	}).Info("BLE device connected successfully")

	s.emit(device.ConnectionOpenedEvent{Connection: handle, Address: address, AddressType: addrType})
	s.emit(device.PHYStatusEvent{Connection: handle, PHY: phy})
	s.emit(device.MTUExchangedEvent{Connection: handle, MTU: mtu})
}

func (s *Stack) linkLost(l *link) {
	s.mu.Lock()
	if s.link != l {
		s.mu.Unlock()
		return
	}
	s.link = nil
	s.clearRegistries()
	l.cancel()
	s.mu.Unlock()

	s.logger.WithField("address", l.address).Warn("Peer reported disconnection")
	s.emit(device.ConnectionClosedEvent{Connection: l.handle, Reason: ReasonRemoteTerminated})
}

// DiscoverPrimaryServiceByUUID reports each matching primary service, then
// completes the procedure.
func (s *Stack) DiscoverPrimaryServiceByUUID(conn device.ConnectionHandle, uuid ble.UUID) error {
	l, err := s.activeLink(conn)
	if err != nil {
		return err
	}
	return s.submit("discover_service", func(context.Context) {
		services, err := l.client.DiscoverServices([]ble.UUID{uuid})
		if err != nil {
			s.procedureFailed(conn, "service discovery", err)
			return
		}
		for _, svc := range services {
			if !svc.UUID.Equal(uuid) {
				continue
			}
			s.mu.Lock()
			s.nextService++
			h := s.nextService
			s.mu.Unlock()
			s.services.Set(h, svc)
			s.logger.WithFields(logrus.Fields{
				"service_uuid": svc.UUID.String(),
				"service":      h,
			}).Debug("Found service UUID")
			s.emit(device.ServiceEvent{Connection: conn, Service: device.ServiceHandle(h), UUID: svc.UUID})
		}
		s.emit(device.ProcedureCompletedEvent{Connection: conn, Result: ResultProcedureComplete})
	})
}

// DiscoverCharacteristics reports every characteristic of service, then
// completes the procedure. Descriptors are discovered too so subscriptions
// can locate the CCCD.
func (s *Stack) DiscoverCharacteristics(conn device.ConnectionHandle, service device.ServiceHandle) error {
	l, err := s.activeLink(conn)
	if err != nil {
		return err
	}
	svc, ok := s.services.Get(uint32(service))
	if !ok {
		return fmt.Errorf("%w: service %d", device.ErrUnknownHandle, service)
	}
	return s.submit("discover_characteristics", func(context.Context) {
		chars, err := l.client.DiscoverCharacteristics(nil, svc)
		if err != nil {
			s.procedureFailed(conn, "characteristic discovery", err)
			return
		}
		for _, c := range chars {
			if _, err := l.client.DiscoverDescriptors(nil, c); err != nil {
				s.logger.WithFields(logrus.Fields{
					"char_uuid": c.UUID.String(),
					"error":     NormalizeError(err),
				}).Debug("Descriptor discovery failed")
			}
			s.mu.Lock()
			s.nextChar++
			h := s.nextChar
			s.mu.Unlock()
			s.characteristics.Set(h, c)
			s.emit(device.CharacteristicEvent{
				Connection:     conn,
				Characteristic: device.CharacteristicHandle(h),
				Properties:     uint8(c.Property),
				UUID:           c.UUID,
			})
		}
		s.emit(device.ProcedureCompletedEvent{Connection: conn, Result: ResultProcedureComplete})
	})
}

// SetCharacteristicNotification enables notifications or indications on a
// characteristic, or disables them for SubscribeNone.
func (s *Stack) SetCharacteristicNotification(conn device.ConnectionHandle, char device.CharacteristicHandle, kind device.SubscriptionKind) error {
	l, err := s.activeLink(conn)
	if err != nil {
		return err
	}
	c, ok := s.characteristics.Get(uint32(char))
	if !ok {
		return fmt.Errorf("%w: characteristic %d", device.ErrUnknownHandle, char)
	}
	return s.submit("set_notification", func(context.Context) {
		s.mu.Lock()
		prev := l.subscriptions[char]
		s.mu.Unlock()

		var err error
		switch kind {
		case device.SubscribeNone:
			if prev != device.SubscribeNone {
				err = l.client.Unsubscribe(c, prev == device.SubscribeIndication)
			}
		default:
			delivered := device.DeliveredNotification
			if kind == device.SubscribeIndication {
				delivered = device.DeliveredIndication
			}
			err = l.client.Subscribe(c, kind == device.SubscribeIndication, func(req []byte) {
				value := make([]byte, len(req))
				copy(value, req)
				s.emit(device.CharacteristicValueEvent{
					Connection:     conn,
					Characteristic: char,
					Kind:           delivered,
					Value:          value,
				})
			})
		}
		if err != nil {
			s.procedureFailed(conn, "subscription", err)
			return
		}

		s.mu.Lock()
		l.subscriptions[char] = kind
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			"characteristic": char,
			"kind":           kind,
		}).Debug("Subscription updated")
		s.emit(device.ProcedureCompletedEvent{Connection: conn, Result: ResultProcedureComplete})
	})
}

// WriteCharacteristicWithoutResponse queues a write command. Failures are
// logged since the command has no completion event.
func (s *Stack) WriteCharacteristicWithoutResponse(conn device.ConnectionHandle, char device.CharacteristicHandle, value []byte) error {
	l, err := s.activeLink(conn)
	if err != nil {
		return err
	}
	c, ok := s.characteristics.Get(uint32(char))
	if !ok {
		return fmt.Errorf("%w: characteristic %d", device.ErrUnknownHandle, char)
	}
	payload := make([]byte, len(value))
	copy(payload, value)
	return s.submit("write_without_response", func(context.Context) {
		if err := l.client.WriteCharacteristic(c, payload, true); err != nil {
			s.logger.WithFields(logrus.Fields{
				"characteristic": char,
				"error":          NormalizeError(err),
			}).Warn("Write without response failed")
		}
	})
}

func (s *Stack) procedureFailed(conn device.ConnectionHandle, what string, err error) {
	s.logger.WithFields(logrus.Fields{
		"procedure": what,
		"error":     NormalizeError(err),
	}).Error("GATT procedure failed")
	s.emit(device.ProcedureCompletedEvent{Connection: conn, Result: ResultProcedureFailed})
}
