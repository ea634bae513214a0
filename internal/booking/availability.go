package booking

import "time"

// DefaultHorizonDays bounds how far ahead a patient may book.
const DefaultHorizonDays = 60

// GenerateAvailableDates returns every calendar date strictly after today, up
// to horizonDays ahead, whose weekday matches at least one active rule.
// A doctor with no active rules is treated as open on every weekday so an
// unconfigured schedule never blocks bookings. Today itself is never offered.
func GenerateAvailableDates(rules []AvailabilityRule, today time.Time, horizonDays int) []string {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	open := make(map[time.Weekday]bool, 7)
	for _, r := range rules {
		if r.IsActive {
			open[time.Weekday(r.DayOfWeek)] = true
		}
	}

	dates := make([]string, 0, horizonDays)
	for i := 1; i <= horizonDays; i++ {
		d := today.AddDate(0, 0, i)
		if len(open) == 0 || open[d.Weekday()] {
			dates = append(dates, d.Format(DateLayout))
		}
	}
	return dates
}
