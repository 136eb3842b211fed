package enums

// AvailabilityStatus is the display classification for a (item, date) pair.
type AvailabilityStatus string

const (
	AvailabilityStatusOpen    AvailabilityStatus = "open"
	AvailabilityStatusLimited AvailabilityStatus = "limited"
	AvailabilityStatusFull    AvailabilityStatus = "full"
)

// String implements fmt.Stringer.
func (s AvailabilityStatus) String() string {
	return string(s)
}
