package util

import (
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers whether a calendar day is a trading day for an exchange.
type TradingCalendar struct {
	cal *calendar.Calendar
	loc *time.Location
}

// NewTradingCalendar loads the calendar for a MIC such as "xnys".
// Unknown MICs fall back to xnys, then to a plain Mon-Fri rule.
func NewTradingCalendar(mic string) *TradingCalendar {
	if mic == "" {
		mic = "xnys"
	}
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}
	if cal == nil {
		return WeekdayCalendar()
	}
	return &TradingCalendar{cal: cal, loc: cal.Loc}
}

// WeekdayCalendar treats every Monday to Friday as a trading day.
func WeekdayCalendar() *TradingCalendar {
	return &TradingCalendar{loc: time.UTC}
}

// IsFallback reports whether the weekday-only rule is in use.
func (tc *TradingCalendar) IsFallback() bool { return tc.cal == nil }

// IsTradingDay reports whether the calendar day of d is a session day.
// Only the year/month/day of d are used.
func (tc *TradingCalendar) IsTradingDay(d time.Time) bool {
	y, m, day := d.Date()
	local := time.Date(y, m, day, 12, 0, 0, 0, tc.loc)
	if tc.cal == nil {
		wd := local.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.cal.IsBusinessDay(local)
}

// TradingDays lists the trading days in [from, to] as UTC midnights, ascending.
func (tc *TradingCalendar) TradingDays(from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if tc.IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}
