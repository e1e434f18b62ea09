// Package market_hours decides when the exchange behind the price feed is in session.
package market_hours

import "time"

// ClockTime is a wall clock time in the exchange's timezone
type ClockTime struct {
	Hour   int
	Minute int
}

// On returns the instant c falls on for the calendar day of day, in loc
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// Session is the continuous trading window of a day. Open is inclusive, Close exclusive.
type Session struct {
	Open  ClockTime
	Close ClockTime
}

// FixedDateHoliday recurs on the same calendar date every year
type FixedDateHoliday struct {
	Month time.Month
	Day   int
	Name  string
}

// ExchangeConfig describes one exchange's calendar
type ExchangeConfig struct {
	Code     string
	Name     string
	Session  Session
	Timezone *time.Location
	Holidays []FixedDateHoliday
	// Lunar-calendar holidays move every year and are supplied as "2006-01-02"
	ClosedDates []string
}

// MarketStatus is the exchange state at one instant
type MarketStatus struct {
	Open      bool   `json:"open"`
	Exchange  string `json:"exchange"`
	Name      string `json:"name"`
	Timezone  string `json:"timezone"`
	Holiday   string `json:"holiday,omitempty"`    // Set when today is a closure date
	ClosesAt  string `json:"closes_at,omitempty"`  // HH:MM, while open
	OpensAt   string `json:"opens_at,omitempty"`   // HH:MM, while closed
	OpensDate string `json:"opens_date,omitempty"` // Only when the next session is not today
}
