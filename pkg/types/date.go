package types

import "time"

const dateLayout = "2006-01-02"

// NormalizeDate truncates a timestamp to its UTC calendar day. Visit dates are
// stored and compared at day granularity only.
func NormalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a normalized UTC date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Today returns the current UTC calendar day.
func Today() time.Time {
	return NormalizeDate(time.Now())
}
