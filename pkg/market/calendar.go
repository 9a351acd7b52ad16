// Package market knows when the exchange is open: the daily trading window,
// weekends, and the NSE holiday calendar used to walk back to the most
// recent prior trading day.
package market

import (
	"fmt"
	"time"
)

// Phase is the engine's view of where today stands relative to the session.
type Phase int

const (
	PhasePreMarket Phase = iota
	PhaseOpen
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhasePreMarket:
		return "pre-market"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

const dateLayout = "2006-01-02"

// Calendar resolves trading days for one exchange timezone.
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool // keyed by YYYY-MM-DD
}

// NewCalendar builds a calendar over the given holiday dates (YYYY-MM-DD).
// Unknown-format dates are ignored.
func NewCalendar(loc *time.Location, holidays []string) *Calendar {
	hs := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if _, err := time.ParseInLocation(dateLayout, h, loc); err == nil {
			hs[h] = true
		}
	}
	return &Calendar{loc: loc, holidays: hs}
}

// DefaultCalendar returns a calendar preloaded with the baked-in NSE trading
// holidays. Callers that can reach the exchange website should prefer the
// scraped list (FetchNSEHolidays) and fall back to this.
func DefaultCalendar(loc *time.Location) *Calendar {
	return NewCalendar(loc, nseHolidays)
}

// IsTradingDay reports whether d falls on a regular trading day.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	d = d.In(c.loc)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[d.Format(dateLayout)]
}

// PreviousTradingDay walks backward from the day before `from` until it
// lands on a trading day. The result is always strictly before `from`.
func (c *Calendar) PreviousTradingDay(from time.Time) time.Time {
	d := from.In(c.loc).AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
}

// Session is the daily trading window in exchange-local time.
type Session struct {
	StartHour, StartMin int
	EndHour, EndMin     int
	loc                 *time.Location
}

// NewSession parses "HH:MM" window bounds.
func NewSession(start, end string, loc *time.Location) (Session, error) {
	var s Session
	if _, err := fmt.Sscanf(start, "%d:%d", &s.StartHour, &s.StartMin); err != nil {
		return Session{}, fmt.Errorf("parse window start %q: %w", start, err)
	}
	if _, err := fmt.Sscanf(end, "%d:%d", &s.EndHour, &s.EndMin); err != nil {
		return Session{}, fmt.Errorf("parse window end %q: %w", end, err)
	}
	s.loc = loc
	return s, nil
}

// PhaseAt classifies a wall-clock instant against the window.
func (s Session) PhaseAt(t time.Time) Phase {
	t = t.In(s.loc)
	cur := t.Hour()*60 + t.Minute()
	open := s.StartHour*60 + s.StartMin
	close := s.EndHour*60 + s.EndMin
	switch {
	case cur < open:
		return PhasePreMarket
	case cur < close:
		return PhaseOpen
	default:
		return PhaseClosed
	}
}

// EndOfSession returns the session close instant on t's calendar day.
func (s Session) EndOfSession(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), s.EndHour, s.EndMin, 0, 0, s.loc)
}

// StartOfSession returns the session open instant on t's calendar day.
func (s Session) StartOfSession(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), s.StartHour, s.StartMin, 0, 0, s.loc)
}

// nseHolidays is the baked-in fallback list of NSE trading holidays.
// Refreshed once a year; the scraper overrides it when reachable.
var nseHolidays = []string{
	// 2025
	"2025-02-26", // Mahashivratri
	"2025-03-14", // Holi
	"2025-03-31", // Id-Ul-Fitr
	"2025-04-10", // Shri Mahavir Jayanti
	"2025-04-14", // Dr. Ambedkar Jayanti
	"2025-04-18", // Good Friday
	"2025-05-01", // Maharashtra Day
	"2025-08-15", // Independence Day
	"2025-08-27", // Ganesh Chaturthi
	"2025-10-02", // Gandhi Jayanti / Dussehra
	"2025-10-21", // Diwali Laxmi Pujan
	"2025-10-22", // Diwali Balipratipada
	"2025-11-05", // Gurunanak Jayanti
	"2025-12-25", // Christmas
	// 2026
	"2026-01-26", // Republic Day
	"2026-03-03", // Holi
	"2026-03-21", // Id-Ul-Fitr
	"2026-04-01", // Shri Mahavir Jayanti
	"2026-04-03", // Good Friday
	"2026-04-14", // Dr. Ambedkar Jayanti
	"2026-05-01", // Maharashtra Day
	"2026-05-27", // Bakri Id
	"2026-09-14", // Ganesh Chaturthi
	"2026-10-02", // Gandhi Jayanti
	"2026-11-09", // Diwali Laxmi Pujan
	"2026-11-10", // Diwali Balipratipada
	"2026-11-24", // Gurunanak Jayanti
	"2026-12-25", // Christmas
}
