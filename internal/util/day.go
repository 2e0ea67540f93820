package util

import "time"

func location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return loc
}

// TodayOpen returns the local midnight (00:00) for `now` in tz.
func TodayOpen(tz string, now time.Time) time.Time {
	y, m, d := now.In(location(tz)).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, location(tz))
}

// NextOpen returns the next local midnight after `now` in tz.
func NextOpen(tz string, now time.Time) time.Time {
	y, m, d := now.In(location(tz)).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, location(tz))
}

// SameTradingDay checks if a and b are on the same local day in tz.
func SameTradingDay(tz string, a, b time.Time) bool {
	return TodayOpen(tz, a).Equal(TodayOpen(tz, b))
}
