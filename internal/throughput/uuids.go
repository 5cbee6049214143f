package throughput

import "github.com/go-ble/ble"

// GATT layout of the throughput test service.
var (
	ServiceUUID       = ble.MustParse("bbb99e70-fff7-46cf-abc7-2d32c71820f2")
	IndicationsUUID   = ble.MustParse("6109b631-a643-4a51-83d2-2059700ad49f")
	NotificationsUUID = ble.MustParse("47b73dd6-dee3-4da1-9be0-f5c539a9a4be")
	TransmissionUUID  = ble.MustParse("be6b6be1-cd8a-4106-9181-5ffe2bc67718")
	ResultUUID        = ble.MustParse("adf32227-b00f-400c-9eeb-b903a6cc291b")
)

// CharacteristicRole names one of the four characteristics of the test service.
type CharacteristicRole uint8

const (
	RoleNotifications CharacteristicRole = iota
	RoleIndications
	RoleTransmission
	RoleResult

	roleCount
)

func (r CharacteristicRole) String() string {
	switch r {
	case RoleNotifications:
		return "notifications"
	case RoleIndications:
		return "indications"
	case RoleTransmission:
		return "transmission"
	case RoleResult:
		return "result"
	default:
		return "unknown"
	}
}

// UUID of the characteristic that plays the role.
func (r CharacteristicRole) UUID() ble.UUID {
	switch r {
	case RoleNotifications:
		return NotificationsUUID
	case RoleIndications:
		return IndicationsUUID
	case RoleTransmission:
		return TransmissionUUID
	case RoleResult:
		return ResultUUID
	default:
		return nil
	}
}

// roleOf maps a discovered characteristic UUID to its role.
func roleOf(u ble.UUID) (CharacteristicRole, bool) {
	for r := CharacteristicRole(0); r < roleCount; r++ {
		if u.Equal(r.UUID()) {
			return r, true
		}
	}
	return 0, false
}
