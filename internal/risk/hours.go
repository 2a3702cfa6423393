package risk

import "time"

// Session is the regular trading session, in minutes after local midnight.
type Session struct {
	Location *time.Location
	Open     int
	Close    int
}

func DefaultSession(loc *time.Location) Session {
	if loc == nil {
		loc = time.UTC
	}
	return Session{Location: loc, Open: 9*60 + 30, Close: 16 * 60}
}

// MarketOpen reports whether t falls on a weekday within [Open, Close).
func (s Session) MarketOpen(t time.Time) bool {
	local := t.In(s.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= s.Open && minute < s.Close
}
