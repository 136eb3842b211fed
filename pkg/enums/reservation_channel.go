package enums

import "fmt"

// ReservationChannel identifies where a reservation originated. Both channels
// pass through the same capacity check; neither is privileged.
type ReservationChannel string

const (
	ReservationChannelOnline ReservationChannel = "online"
	ReservationChannelManual ReservationChannel = "manual"
)

var validReservationChannels = []ReservationChannel{
	ReservationChannelOnline,
	ReservationChannelManual,
}

// String implements fmt.Stringer.
func (c ReservationChannel) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ReservationChannel.
func (c ReservationChannel) IsValid() bool {
	for _, candidate := range validReservationChannels {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseReservationChannel converts raw input into a ReservationChannel.
func ParseReservationChannel(value string) (ReservationChannel, error) {
	for _, candidate := range validReservationChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation channel %q", value)
}
