package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-15")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) || FormatDate(got) != "2024-03-15" {
		t.Fatalf("unexpected date %v", got)
	}
	if got, _ := ParseDate("2024-03-15T18:30:00Z"); FormatDate(got) != "2024-03-15" {
		t.Fatalf("timestamp not truncated to day: %v", got)
	}
	if _, err := ParseDate("15/03/2024"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTradingDaysSkipWeekends(t *testing.T) {
	tc := NewTradingCalendar("xnys")
	// Sat 2024-06-08 .. Tue 2024-06-11
	days := tc.TradingDays(time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC))
	if len(days) != 2 || FormatDate(days[0]) != "2024-06-10" || FormatDate(days[1]) != "2024-06-11" {
		t.Fatalf("unexpected trading days %v", days)
	}
}

func TestTradingCalendarHoliday(t *testing.T) {
	tc := NewTradingCalendar("xnys")
	if tc.IsFallback() {
		t.Skip("exchange calendar unavailable")
	}
	if tc.IsTradingDay(time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("christmas should not be a trading day")
	}
}
