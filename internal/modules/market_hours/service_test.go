package market_hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixed +03:00 zone so tests do not depend on the host tz database
var istanbul = time.FixedZone("TRT", 3*60*60)

func newBIST(closed ...string) *MarketHoursService {
	return NewMarketHoursService(BISTConfig(istanbul, closed))
}

func TestIsMarketOpen_RegularHours(t *testing.T) {
	service := newBIST()

	tests := []struct {
		name     string
		datetime time.Time
		expected bool
	}{
		{"open mid session", time.Date(2024, 1, 16, 12, 0, 0, 0, istanbul), true},
		{"open exactly at 10:00", time.Date(2024, 1, 16, 10, 0, 0, 0, istanbul), true},
		{"closed before open", time.Date(2024, 1, 16, 9, 59, 0, 0, istanbul), false},
		{"closed exactly at 18:00", time.Date(2024, 1, 16, 18, 0, 0, 0, istanbul), false},
		{"open at 17:59", time.Date(2024, 1, 16, 17, 59, 0, 0, istanbul), true},
		{"utc input converted", time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC), true}, // 11:00 local
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, service.IsMarketOpen(tt.datetime))
		})
	}
}

func TestIsMarketOpen_WeekendAndHolidays(t *testing.T) {
	service := newBIST("2024-04-10")

	assert.False(t, service.IsMarketOpen(time.Date(2024, 1, 13, 12, 0, 0, 0, istanbul)), "Saturday")
	assert.False(t, service.IsMarketOpen(time.Date(2024, 1, 14, 12, 0, 0, 0, istanbul)), "Sunday")
	assert.False(t, service.IsMarketOpen(time.Date(2024, 10, 29, 12, 0, 0, 0, istanbul)), "Republic Day")
	assert.False(t, service.IsMarketOpen(time.Date(2024, 4, 23, 12, 0, 0, 0, istanbul)), "23 April")
	assert.False(t, service.IsMarketOpen(time.Date(2024, 4, 10, 12, 0, 0, 0, istanbul)), "configured closure")
	assert.True(t, service.IsMarketOpen(time.Date(2024, 4, 11, 12, 0, 0, 0, istanbul)))
}

func TestGetMarketStatus(t *testing.T) {
	service := newBIST()

	t.Run("open reports close time", func(t *testing.T) {
		status := service.GetMarketStatus(time.Date(2024, 1, 16, 12, 0, 0, 0, istanbul))
		assert.True(t, status.Open)
		assert.Equal(t, BISTCode, status.Exchange)
		assert.Equal(t, "18:00", status.ClosesAt)
		assert.Empty(t, status.OpensAt)
	})

	t.Run("before open reports same-day open", func(t *testing.T) {
		status := service.GetMarketStatus(time.Date(2024, 1, 16, 8, 0, 0, 0, istanbul))
		assert.False(t, status.Open)
		assert.Equal(t, "10:00", status.OpensAt)
		assert.Empty(t, status.OpensDate)
	})

	t.Run("friday evening reports monday", func(t *testing.T) {
		status := service.GetMarketStatus(time.Date(2024, 1, 19, 19, 0, 0, 0, istanbul))
		assert.False(t, status.Open)
		assert.Equal(t, "10:00", status.OpensAt)
		assert.Equal(t, "2024-01-22", status.OpensDate)
	})

	t.Run("holiday is named", func(t *testing.T) {
		status := service.GetMarketStatus(time.Date(2024, 10, 29, 12, 0, 0, 0, istanbul))
		assert.False(t, status.Open)
		assert.Equal(t, "Republic Day", status.Holiday)
		assert.Equal(t, "2024-10-30", status.OpensDate)
	})

	t.Run("regular day has no holiday", func(t *testing.T) {
		assert.Empty(t, service.GetMarketStatus(time.Date(2024, 1, 16, 12, 0, 0, 0, istanbul)).Holiday)
	})
}

func TestClockTimeOn(t *testing.T) {
	day := time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC)
	got := ClockTime{Hour: 9, Minute: 30}.On(day, istanbul)
	assert.Equal(t, time.Date(2024, 3, 5, 9, 30, 0, 0, istanbul), got)
}

func TestNextOpen_SkipsHoliday(t *testing.T) {
	service := newBIST()

	// Monday 28 Oct 2024 evening; 29 Oct is Republic Day
	next := service.NextOpen(time.Date(2024, 10, 28, 19, 0, 0, 0, istanbul))
	require.NotNil(t, next)
	assert.Equal(t, "2024-10-30 10:00", next.Format("2006-01-02 15:04"))
}

func TestHolidays(t *testing.T) {
	service := newBIST("2025-03-31", "2024-06-17")

	holidays := service.Holidays(2025)
	require.Len(t, holidays, len(turkishPublicHolidays)+1)
	assert.Equal(t, "2025-01-01", holidays[0].Date)
	assert.Equal(t, "2025-10-29", holidays[len(holidays)-1].Date)

	var found bool
	for _, h := range holidays {
		if h.Date == "2025-03-31" {
			found = true
		}
	}
	assert.True(t, found)
}
