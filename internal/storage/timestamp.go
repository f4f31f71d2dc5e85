package storage

import "time"

// TimeLayout is the canonical timestamp format for every stored timestamp and
// every range-query bound. Range queries compare timestamps lexically, so the
// format must be fixed-width UTC with a constant fractional precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Timestamp renders t in the canonical stored format.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTimestamp parses a stored timestamp back into a time.Time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}
