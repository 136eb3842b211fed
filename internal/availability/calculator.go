package availability

import (
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
)

// DefaultLimitedThreshold is the booked/capacity ratio above which a date
// renders as "limited".
const DefaultLimitedThreshold = 0.70

// Snapshot is the display classification of one (item, date) key.
type Snapshot struct {
	Remaining int                      `json:"remaining"`
	Status    enums.AvailabilityStatus `json:"status"`
}

// Calculate maps raw ledger counts to a display snapshot. Pure and
// side-effect free: it is called optimistically for UI reads and
// authoritatively with fresh counts inside the reservation transaction.
//
// capacity == 0 is always full; a zero-inventory item never appears bookable.
// The threshold comparison is strict, so booked/capacity exactly at the
// threshold still reads as open.
func Calculate(capacity, booked int, limitedThreshold float64) Snapshot {
	remaining := capacity - booked
	if remaining < 0 {
		remaining = 0
	}
	if capacity == 0 || remaining == 0 {
		return Snapshot{Remaining: remaining, Status: enums.AvailabilityStatusFull}
	}
	if float64(booked)/float64(capacity) > limitedThreshold {
		return Snapshot{Remaining: remaining, Status: enums.AvailabilityStatusLimited}
	}
	return Snapshot{Remaining: remaining, Status: enums.AvailabilityStatusOpen}
}
