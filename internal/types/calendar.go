package types

import "time"

// Session is one intraday trading window.
type Session struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

// Calendar answers trading-day and trading-time questions for one market.
// The default rule is Monday-Friday minus a holiday set; A-share sessions
// are 09:30-11:30 and 13:00-15:00.
type Calendar struct {
	Market   string
	Sessions []Session
	holidays map[string]struct{}
}

const calendarDateLayout = "2006-01-02"

// NewCalendar creates an A-share calendar with the given holidays.
func NewCalendar(holidays ...time.Time) *Calendar {
	c := &Calendar{
		Market: "A_SHARE",
		Sessions: []Session{
			{Start: 9*time.Hour + 30*time.Minute, End: 11*time.Hour + 30*time.Minute},
			{Start: 13 * time.Hour, End: 15 * time.Hour},
		},
		holidays: make(map[string]struct{}),
	}
	for _, h := range holidays {
		c.AddHoliday(h)
	}
	return c
}

// AddHoliday marks the date (day precision) as a non-trading day.
func (c *Calendar) AddHoliday(d time.Time) {
	c.holidays[d.Format(calendarDateLayout)] = struct{}{}
}

// RemoveHoliday unmarks the date.
func (c *Calendar) RemoveHoliday(d time.Time) {
	delete(c.holidays, d.Format(calendarDateLayout))
}

// IsTradingDay reports whether d falls on a weekday outside the holiday set.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[d.Format(calendarDateLayout)]
	return !holiday
}

// IsTradingTime reports whether t falls inside a session on a trading day.
func (c *Calendar) IsTradingTime(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := t.Sub(midnight)
	for _, s := range c.Sessions {
		if offset >= s.Start && offset <= s.End {
			return true
		}
	}
	return false
}

// NextTradingDay returns the first trading day strictly after d.
func (c *Calendar) NextTradingDay(d time.Time) time.Time {
	next := d.AddDate(0, 0, 1)
	for !c.IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PrevTradingDay returns the last trading day strictly before d.
func (c *Calendar) PrevTradingDay(d time.Time) time.Time {
	prev := d.AddDate(0, 0, -1)
	for !c.IsTradingDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// TradingDaysBetween returns all trading days in [start, end], day stepped.
func (c *Calendar) TradingDaysBetween(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
