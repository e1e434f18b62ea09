package market_hours

import (
	"sort"
	"sync"
	"time"
)

// Holiday is a resolved closure date
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// MarketHoursService provides market hours checking functionality
type MarketHoursService struct {
	config       ExchangeConfig
	mu           sync.Mutex
	holidayCache map[int]map[string]string // year -> date -> name
}

// NewMarketHoursService creates a new market hours service
func NewMarketHoursService(config ExchangeConfig) *MarketHoursService {
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	return &MarketHoursService{
		config:       config,
		holidayCache: make(map[int]map[string]string),
	}
}

// Exchange returns the exchange configuration
func (s *MarketHoursService) Exchange() ExchangeConfig {
	return s.config
}

// IsMarketOpen checks if the market is open for trading at t
func (s *MarketHoursService) IsMarketOpen(t time.Time) bool {
	marketTime := t.In(s.config.Timezone)

	if !s.isTradingDay(marketTime) {
		return false
	}

	openTime, closeTime := s.sessionBounds(marketTime)

	// Open is inclusive, close is exclusive
	return !marketTime.Before(openTime) && marketTime.Before(closeTime)
}

// GetMarketStatus returns detailed status for the market at t
func (s *MarketHoursService) GetMarketStatus(t time.Time) *MarketStatus {
	marketTime := t.In(s.config.Timezone)

	status := &MarketStatus{
		Open:     s.IsMarketOpen(t),
		Exchange: s.config.Code,
		Name:     s.config.Name,
		Timezone: s.config.Timezone.String(),
	}

	if name, ok := s.getHolidaysForYear(marketTime.Year())[marketTime.Format("2006-01-02")]; ok {
		status.Holiday = name
	}

	if status.Open {
		_, closeTime := s.sessionBounds(marketTime)
		status.ClosesAt = closeTime.Format("15:04")
		return status
	}

	if next := s.NextOpen(t); next != nil {
		status.OpensAt = next.Format("15:04")
		if next.YearDay() != marketTime.YearDay() || next.Year() != marketTime.Year() {
			status.OpensDate = next.Format("2006-01-02")
		}
	}
	return status
}

// NextOpen finds the next session open strictly after t, looking two weeks ahead
func (s *MarketHoursService) NextOpen(t time.Time) *time.Time {
	marketTime := t.In(s.config.Timezone)

	for i := 0; i < 14; i++ {
		day := marketTime.AddDate(0, 0, i)
		if !s.isTradingDay(day) {
			continue
		}
		openTime, _ := s.sessionBounds(day)
		if openTime.After(marketTime) {
			return &openTime
		}
	}
	return nil
}

// Holidays returns the closure dates for a year in date order
func (s *MarketHoursService) Holidays(year int) []Holiday {
	byDate := s.getHolidaysForYear(year)

	result := make([]Holiday, 0, len(byDate))
	for date, name := range byDate {
		result = append(result, Holiday{Date: date, Name: name})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}

func (s *MarketHoursService) isTradingDay(marketTime time.Time) bool {
	if marketTime.Weekday() == time.Saturday || marketTime.Weekday() == time.Sunday {
		return false
	}
	_, holiday := s.getHolidaysForYear(marketTime.Year())[marketTime.Format("2006-01-02")]
	return !holiday
}

func (s *MarketHoursService) sessionBounds(marketTime time.Time) (time.Time, time.Time) {
	session := s.config.Session
	return session.Open.On(marketTime, s.config.Timezone), session.Close.On(marketTime, s.config.Timezone)
}

func (s *MarketHoursService) getHolidaysForYear(year int) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holidays, ok := s.holidayCache[year]; ok {
		return holidays
	}

	holidays := make(map[string]string)
	for _, h := range s.config.Holidays {
		date := time.Date(year, h.Month, h.Day, 0, 0, 0, 0, s.config.Timezone)
		holidays[date.Format("2006-01-02")] = h.Name
	}
	for _, raw := range s.config.ClosedDates {
		date, err := time.ParseInLocation("2006-01-02", raw, s.config.Timezone)
		if err != nil || date.Year() != year {
			continue
		}
		if _, exists := holidays[raw]; !exists {
			holidays[raw] = "Market closed"
		}
	}

	s.holidayCache[year] = holidays
	return holidays
}
