package device

import (
	"fmt"
	"strings"
)

// TicksPerSecond is the resolution of the stack's one-shot timers.
const TicksPerSecond = 32768

// PHY identifies an LE physical layer; values follow the HCI PHY numbering.
type PHY uint8

const (
	PHY1M    PHY = 1
	PHY2M    PHY = 2
	PHYCoded PHY = 4
)

func (p PHY) String() string {
	switch p {
	case PHY1M:
		return "1M"
	case PHY2M:
		return "2M"
	case PHYCoded:
		return "Coded"
	default:
		return fmt.Sprintf("PHY(%d)", uint8(p))
	}
}

// ParsePHY accepts the names used on the command line ("1m", "2m", "coded")
// as well as the numeric HCI values ("1", "2", "4").
func ParsePHY(s string) (PHY, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1m", "1":
		return PHY1M, nil
	case "2m", "2":
		return PHY2M, nil
	case "coded", "s8", "4":
		return PHYCoded, nil
	default:
		return 0, fmt.Errorf("invalid PHY %q (must be 1m, 2m or coded)", s)
	}
}

// SubscriptionKind is the value written to a Client Characteristic Configuration descriptor.
type SubscriptionKind uint8

const (
	SubscribeNone         SubscriptionKind = 0
	SubscribeNotification SubscriptionKind = 1
	SubscribeIndication   SubscriptionKind = 2
)

func (k SubscriptionKind) String() string {
	switch k {
	case SubscribeNone:
		return "none"
	case SubscribeNotification:
		return "notification"
	case SubscribeIndication:
		return "indication"
	default:
		return fmt.Sprintf("SubscriptionKind(%d)", uint8(k))
	}
}

// ParseSubscriptionKind parses "notification"/"indication" (or "1"/"2").
func ParseSubscriptionKind(s string) (SubscriptionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notification", "notifications", "notify", "1":
		return SubscribeNotification, nil
	case "indication", "indications", "indicate", "2":
		return SubscribeIndication, nil
	default:
		return SubscribeNone, fmt.Errorf("invalid subscription %q (must be notification or indication)", s)
	}
}

// DeliveryKind tells how a characteristic value reached the client.
type DeliveryKind uint8

const (
	DeliveredNotification DeliveryKind = iota + 1
	DeliveredIndication
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveredNotification:
		return "notification"
	case DeliveredIndication:
		return "indication"
	default:
		return fmt.Sprintf("DeliveryKind(%d)", uint8(k))
	}
}

// AddressType of an advertiser address.
type AddressType uint8

const (
	AddressPublic AddressType = iota
	AddressRandom
)

// DiscoveryMode selects which advertisers a scan reports.
type DiscoveryMode uint8

const (
	DiscoverLimited DiscoveryMode = iota
	DiscoverGeneric
	DiscoverObservation
)

// Opaque stack handles.
type (
	ConnectionHandle     uint8
	ServiceHandle        uint32
	CharacteristicHandle uint16
	TimerID              uint8
)
