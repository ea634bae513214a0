package booking

import (
	"sort"
	"time"
)

// DefaultSlotInterval is the slot granularity used when none is configured.
const DefaultSlotInterval = 30 * time.Minute

// DefaultCatalog is the fixed half-hour slot grid offered for doctors who
// have not configured any availability rules: a morning block 08:00-11:30 and
// an afternoon block 14:00-17:30.
var DefaultCatalog = []string{
	"08:00", "08:30", "09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00", "17:30",
}

// SlotEnumerator produces the bookable time-of-day slots for one doctor and
// date. Two strategies exist: expanding the doctor's availability rules into
// interval-sized steps, or filtering the fixed catalog. The strategy is
// chosen by whether the doctor has any active rule, never by the call site.
type SlotEnumerator struct {
	Interval time.Duration
	Catalog  []string
}

func NewSlotEnumerator(interval time.Duration) SlotEnumerator {
	if interval <= 0 {
		interval = DefaultSlotInterval
	}
	return SlotEnumerator{Interval: interval, Catalog: DefaultCatalog}
}

// Enumerate returns the sorted, de-duplicated open slots for the given
// weekday. booked holds the HH:MM times already taken by scheduled
// appointments; cancelled and completed appointments never block a slot.
func (e SlotEnumerator) Enumerate(weekday time.Weekday, rules []AvailabilityRule, booked map[string]bool) []string {
	active := activeRules(rules)
	if len(active) == 0 {
		return filterBooked(e.Catalog, booked)
	}

	candidates := make(map[string]bool)
	for _, r := range active {
		if time.Weekday(r.DayOfWeek) != weekday {
			continue
		}
		for _, slot := range e.expand(r.StartTime, r.EndTime) {
			candidates[slot] = true
		}
	}

	slots := make([]string, 0, len(candidates))
	for slot := range candidates {
		if !booked[slot] {
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)
	return slots
}

// expand walks [start, end) in Interval steps. Malformed bounds produce no
// slots; rules are validated on write, so this only guards stale rows.
func (e SlotEnumerator) expand(start, end string) []string {
	from, err := ParseClock(start)
	if err != nil {
		return nil
	}
	to, err := ParseClock(end)
	if err != nil {
		return nil
	}

	var slots []string
	for t := from; t.Before(to); t = t.Add(e.Interval) {
		slots = append(slots, t.Format(ClockLayout))
	}
	return slots
}

func activeRules(rules []AvailabilityRule) []AvailabilityRule {
	var out []AvailabilityRule
	for _, r := range rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

func filterBooked(catalog []string, booked map[string]bool) []string {
	slots := make([]string, 0, len(catalog))
	for _, slot := range catalog {
		if !booked[slot] {
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)
	return slots
}
