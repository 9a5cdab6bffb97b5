package artifactcache

import "time"

// DefaultCalendarTTL is the fixed freshness horizon for year-partition
// calendar entries. Progressed-moon data drifts about one degree per
// month, so 30 days keeps calendars acceptably fresh without
// recomputing on every visit.
const DefaultCalendarTTL = 30 * 24 * time.Hour

// DynamicTTL returns a calendar horizon adjusted to the requested year:
// the current year gets the standard 30 days, future years stay cached
// until their year begins mattering less (clamped between one day and
// one year), past years are immutable and get 30 days purely to bound
// storage.
func DynamicTTL(year int, now time.Time) time.Duration {
	currentYear := now.Year()

	switch {
	case year > currentYear:
		endOfYear := time.Date(year, time.December, 31, 23, 59, 59, 0, now.Location())
		untilEnd := endOfYear.Sub(now)

		day := 24 * time.Hour
		yearDur := 365 * 24 * time.Hour
		return max(day, min(untilEnd, yearDur))
	default:
		return DefaultCalendarTTL
	}
}
