// Package calendar provides pure date arithmetic over exchange trading
// calendars. Holidays and half-days are tabulated per year; no I/O.
package calendar

import "time"

// DayInfo describes a calendar date from the exchange's point of view.
type DayInfo struct {
	WasTradingDay      bool
	HadEarlyClose      bool
	PreviousTradingDay time.Time
	NextTradingDay     time.Time
}

// Calendar answers trading-day questions for one exchange.
type Calendar struct {
	name        string
	location    *time.Location
	holidays    map[string]bool // YYYY-MM-DD
	earlyCloses map[string]bool
}

// NYSE returns the calendar for the New York Stock Exchange, the default
// exchange for the pipeline.
func NYSE() *Calendar {
	loc, _ := time.LoadLocation("America/New_York")

	holidays := []string{
		// 2024
		"2024-01-01", // New Year's Day
		"2024-01-15", // MLK Day
		"2024-02-19", // Presidents Day
		"2024-03-29", // Good Friday
		"2024-05-27", // Memorial Day
		"2024-06-19", // Juneteenth
		"2024-07-04", // Independence Day
		"2024-09-02", // Labor Day
		"2024-11-28", // Thanksgiving
		"2024-12-25", // Christmas
		// 2025
		"2025-01-01", // New Year's Day
		"2025-01-09", // National Day of Mourning (Carter)
		"2025-01-20", // MLK Day
		"2025-02-17", // Presidents Day
		"2025-04-18", // Good Friday
		"2025-05-26", // Memorial Day
		"2025-06-19", // Juneteenth
		"2025-07-04", // Independence Day
		"2025-09-01", // Labor Day
		"2025-11-27", // Thanksgiving
		"2025-12-25", // Christmas
		// 2026
		"2026-01-01", // New Year's Day
		"2026-01-19", // MLK Day
		"2026-02-16", // Presidents Day
		"2026-04-03", // Good Friday
		"2026-05-25", // Memorial Day
		"2026-06-19", // Juneteenth
		"2026-07-03", // Independence Day (observed)
		"2026-09-07", // Labor Day
		"2026-11-26", // Thanksgiving
		"2026-12-25", // Christmas
	}

	earlyCloses := []string{
		"2024-07-03", // Day before Independence Day
		"2024-11-29", // Day after Thanksgiving
		"2024-12-24", // Christmas Eve
		"2025-07-03", // Day before Independence Day
		"2025-11-28", // Day after Thanksgiving
		"2025-12-24", // Christmas Eve
		"2026-11-27", // Day after Thanksgiving
		"2026-12-24", // Christmas Eve
	}

	cal := &Calendar{
		name:        "NYSE",
		location:    loc,
		holidays:    make(map[string]bool, len(holidays)),
		earlyCloses: make(map[string]bool, len(earlyCloses)),
	}
	for _, d := range holidays {
		cal.holidays[d] = true
	}
	for _, d := range earlyCloses {
		cal.earlyCloses[d] = true
	}
	return cal
}

// Name returns the exchange name.
func (c *Calendar) Name() string {
	return c.name
}

// Location returns the exchange's timezone.
func (c *Calendar) Location() *time.Location {
	return c.location
}

// IsTradingDay reports whether the exchange was open on the given date.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(c.location)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[d.Format("2006-01-02")]
}

// HadEarlyClose reports whether the given date was a half-day.
func (c *Calendar) HadEarlyClose(date time.Time) bool {
	return c.earlyCloses[date.In(c.location).Format("2006-01-02")]
}

// PreviousTradingDay returns the most recent trading day strictly before date.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	d := midnight(date.In(c.location))
	for {
		d = d.AddDate(0, 0, -1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}

// NextTradingDay returns the first trading day strictly after date.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	d := midnight(date.In(c.location))
	for {
		d = d.AddDate(0, 0, 1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}

// DayInfo returns the full calendar description of a date.
func (c *Calendar) DayInfo(date time.Time) DayInfo {
	return DayInfo{
		WasTradingDay:      c.IsTradingDay(date),
		HadEarlyClose:      c.HadEarlyClose(date),
		PreviousTradingDay: c.PreviousTradingDay(date),
		NextTradingDay:     c.NextTradingDay(date),
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
