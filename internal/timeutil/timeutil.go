package timeutil

import (
	"time"
)

// Loc is the business timezone. Dates such as attendance days and the daily
// OTP rotation are computed in this location.
var Loc *time.Location

func init() {
	Loc = loadOrIST("Asia/Kolkata")
}

func loadOrIST(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fallback: create fixed zone if tzdata is not available
		return time.FixedZone("IST", 5*60*60+30*60) // UTC+5:30
	}
	return loc
}

// SetLocation switches the business timezone. Call once at startup.
func SetLocation(name string) {
	if name == "" {
		return
	}
	Loc = loadOrIST(name)
}

// Clock returns the current time. Services take a Clock so tests can move time.
type Clock func() time.Time

// SystemClock returns the wall clock in the business timezone.
func SystemClock() time.Time {
	return time.Now().In(Loc)
}

// Now returns the current time in the business timezone
func Now() time.Time {
	return time.Now().In(Loc)
}

// Date formats t as YYYY-MM-DD in the business timezone
func Date(t time.Time) string {
	return t.In(Loc).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string in the business timezone
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, Loc)
}

// StartOfDay returns the start of day (00:00:00) for the given time
func StartOfDay(t time.Time) time.Time {
	lt := t.In(Loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, Loc)
}

// Common layouts
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	MonthLayout    = "2006-01"
	DateTimeLayout = "2006-01-02 15:04:05"
	FileLayout     = "20060102_150405"
)
