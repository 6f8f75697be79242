package billing

import "time"

// DaysInMonth returns the calendar length of a billing month. Proration is
// always against the month length, not the contract's own span.
func DaysInMonth(month, year int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PeriodBounds returns the first and last day of a billing month in UTC.
func PeriodBounds(month, year int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.Month(month), DaysInMonth(month, year), 0, 0, 0, 0, time.UTC)
	return from, to
}

// Prorate scales a monthly unit price by the billed fraction of the month.
func Prorate(unitPrice, billingDays float64, month, year int) float64 {
	return unitPrice * billingDays / float64(DaysInMonth(month, year))
}

// ValidatePeriod checks a (month, year) pair before any I/O happens.
func ValidatePeriod(month, year int, now time.Time) error {
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	if year < 2020 || year > now.Year() {
		return ErrInvalidYear
	}
	return nil
}

// PreviousPeriod returns the month immediately before now, for scheduled
// runs that bill the month just ended.
func PreviousPeriod(now time.Time) (month, year int) {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return int(prev.Month()), prev.Year()
}
