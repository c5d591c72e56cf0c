package models

import "time"

// TimeBucket is one row of the pre-built time dimension: a fixed
// sub-hour interval of one calendar day with its business labels.
type TimeBucket struct {
	DateTimeKey     int64
	BucketStart     time.Time
	Date            time.Time
	Year            int
	Quarter         int
	Month           int
	Day             int
	Hour            int
	Minute          int
	DayOfWeek       int // ISO: Monday=1 .. Sunday=7
	IsWeekend       bool
	IsHoliday       bool
	IsBusinessHours bool
	IsPeakHour      bool
	DayPart         string
}

// BucketStart truncates t to the start of the time bucket containing it.
// The same truncation is used when generating the dimension and when
// deriving a fact's time-bucket lookup key, so lookups are exact-match.
func BucketStart(t time.Time, interval time.Duration) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.Add(t.Sub(midnight).Truncate(interval))
}

// ISOWeekday maps Go's Sunday=0 weekday to ISO Monday=1..Sunday=7.
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
