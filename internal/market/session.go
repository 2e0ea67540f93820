package market

import (
	"time"
	_ "time/tzdata"
)

// MarketTZ is the exchange timezone every session boundary is expressed in.
const MarketTZ = "America/New_York"

var marketLoc = mustLoad(MarketTZ)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Location returns the exchange timezone.
func Location() *time.Location { return marketLoc }

// Session is an intraday phase of the regular US equity options session.
type Session string

const (
	OpeningRush Session = "opening_rush" // 09:30-11:00
	MiddayChop  Session = "midday_chop"  // 11:00-14:00
	PowerHour   Session = "power_hour"   // 14:00-15:00
	CloseGamma  Session = "close_gamma"  // 15:00-16:00
	Closed      Session = "closed"
)

func minuteOfDay(t time.Time) int {
	et := t.In(marketLoc)
	return et.Hour()*60 + et.Minute()
}

// SessionAt classifies t. Weekends are always Closed.
func SessionAt(t time.Time) Session {
	switch t.In(marketLoc).Weekday() {
	case time.Saturday, time.Sunday:
		return Closed
	}
	m := minuteOfDay(t)
	switch {
	case m < 9*60+30:
		return Closed
	case m < 11*60:
		return OpeningRush
	case m < 14*60:
		return MiddayChop
	case m < 15*60:
		return PowerHour
	case m < 16*60:
		return CloseGamma
	}
	return Closed
}

// At returns hh:mm on t's market date.
func At(t time.Time, hour, minute int) time.Time {
	y, m, d := t.In(marketLoc).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, marketLoc)
}

// SessionClose is 16:00 ET on t's market date.
func SessionClose(t time.Time) time.Time { return At(t, 16, 0) }
