package market_hours

import "time"

// BISTCode is the MIC of Borsa Istanbul
const BISTCode = "XIST"

// turkishPublicHolidays are the fixed-date national holidays on which Borsa Istanbul is closed
var turkishPublicHolidays = []FixedDateHoliday{
	{Month: time.January, Day: 1, Name: "New Year's Day"},
	{Month: time.April, Day: 23, Name: "National Sovereignty and Children's Day"},
	{Month: time.May, Day: 1, Name: "Labour and Solidarity Day"},
	{Month: time.May, Day: 19, Name: "Commemoration of Atatürk, Youth and Sports Day"},
	{Month: time.July, Day: 15, Name: "Democracy and National Unity Day"},
	{Month: time.August, Day: 30, Name: "Victory Day"},
	{Month: time.October, Day: 29, Name: "Republic Day"},
}

// BISTConfig returns the Borsa Istanbul session: weekdays 10:00-18:00 local time.
// closedDates adds sessions that are cancelled on top of the fixed holidays
// (religious holidays move every year).
func BISTConfig(loc *time.Location, closedDates []string) ExchangeConfig {
	if loc == nil {
		loc = time.UTC
	}
	return ExchangeConfig{
		Code: BISTCode,
		Name: "Borsa Istanbul",
		Session: Session{
			Open:  ClockTime{Hour: 10},
			Close: ClockTime{Hour: 18},
		},
		Timezone:    loc,
		Holidays:    turkishPublicHolidays,
		ClosedDates: closedDates,
	}
}
