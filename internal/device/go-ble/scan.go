package goble

import (
	"context"
	"errors"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/groutine"
)

// AD types synthesised from parsed advertisements.
const (
	adTypeComplete128  = 0x07
	adTypeCompleteName = 0x09
	adTypeTxPower      = 0x0A
	adTypeManufacturer = 0xFF
)

// StartDiscovery starts a background scan that reports every advertisement.
func (s *Stack) StartDiscovery(phy device.PHY, mode device.DiscoveryMode) error {
	s.mu.Lock()
	radio := s.radio
	if radio == nil {
		s.mu.Unlock()
		return device.ErrNotInitialized
	}
	if s.scanCancel != nil {
		s.scanCancel()
	}
	scanCtx, cancel := context.WithCancel(s.ctx)
	s.scanCancel = cancel
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"phy":  phy,
		"mode": mode,
	}).Debug("Starting discovery")

	groutine.GoRecover(scanCtx, "ble-scan", s.logger, func(ctx context.Context) {
		err := radio.Scan(ctx, true, s.onAdvertisement)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.WithError(NormalizeError(err)).Warn("Scan stopped")
		}
	})
	return nil
}

// EndDiscovery stops the running scan, if any.
func (s *Stack) EndDiscovery() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
	return nil
}

func (s *Stack) onAdvertisement(a ble.Advertisement) {
	report := device.ScanReportEvent{
		Address:     a.Addr().String(),
		AddressType: device.AddressPublic,
		RSSI:        clampRSSI(a.RSSI()),
		Data:        EncodeAdvertisement(a),
	}
	if !s.events.TrySend(report) {
		s.logger.WithField("address", report.Address).Trace("Scan report dropped, queue full")
	}
}

// EncodeAdvertisement rebuilds AD records from a parsed advertisement.
// go-ble only exposes parsed fields, so the flags record is not reproduced.
func EncodeAdvertisement(a ble.Advertisement) []byte {
	var data []byte
	if name := a.LocalName(); name != "" {
		data = appendRecord(data, adTypeCompleteName, []byte(name))
	}
	if md := a.ManufacturerData(); len(md) > 0 {
		data = appendRecord(data, adTypeManufacturer, md)
	}
	// go-ble reports a missing TX power field as 0, so 0 dBm cannot be told apart
	if p := a.TxPowerLevel(); p != 127 && p != 0 {
		data = appendRecord(data, adTypeTxPower, []byte{byte(int8(p))})
	}
	var uuids []byte
	for _, u := range a.Services() {
		if u.Len() == 16 {
			uuids = append(uuids, u...)
		}
	}
	if len(uuids) > 0 {
		data = appendRecord(data, adTypeComplete128, uuids)
	}
	return data
}

// appendRecord appends one length-prefixed AD record; payloads are cut to fit.
func appendRecord(dst []byte, adType byte, payload []byte) []byte {
	if len(payload) > 254 {
		payload = payload[:254]
	}
	dst = append(dst, byte(len(payload)+1), adType)
	return append(dst, payload...)
}

func clampRSSI(rssi int) int8 {
	switch {
	case rssi < -128:
		return -128
	case rssi > 127:
		return 127
	default:
		return int8(rssi)
	}
}
