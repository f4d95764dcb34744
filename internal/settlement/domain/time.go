package settlement

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// TimeKey is the persisted representation of a business date.
type TimeKey string

// NewDayTimeKey builds a TimeKey for the given business date.
func NewDayTimeKey(date time.Time) (TimeKey, error) {
	if date.IsZero() {
		return "", ErrInvalidDate
	}
	return TimeKey(date.Format("20060102")), nil
}

// String returns the raw string for storage.
func (k TimeKey) String() string { return string(k) }

// ParseDate parses a YYYY-MM-DD business date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate renders a business date as YYYY-MM-DD.
func FormatDate(date time.Time) string {
	return date.Format(dateLayout)
}

// DayBounds returns [start, end) of the business date in loc, as UTC instants.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}
