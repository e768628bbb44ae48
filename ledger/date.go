package ledger

import "time"

// =============================================================================
// CALENDAR DAYS - Postings and due dates are day-granular, always UTC
// =============================================================================

// DateLayout is the wire and storage format for calendar days.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDay builds a calendar day.
func NewDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalid(CodeInvalidDate, "date", "date must be YYYY-MM-DD", err)
	}
	return t, nil
}

// FormatDay renders a calendar day as YYYY-MM-DD.
func FormatDay(t time.Time) string { return t.UTC().Format(DateLayout) }

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// EndOfMonth returns the last day of the month.
func EndOfMonth(year int, month time.Month) time.Time {
	return NewDay(year, month, DaysIn(year, month))
}

// StartOfMonth returns the first day of the month.
func StartOfMonth(year int, month time.Month) time.Time {
	return NewDay(year, month, 1)
}

// clampedDay builds year/month/anchor, pulling anchor back to the last day
// of the month when the month is shorter. Month overflow is normalized first.
func clampedDay(year int, month time.Month, anchor int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	y, m := first.Year(), first.Month()
	if last := DaysIn(y, m); anchor > last {
		anchor = last
	}
	return NewDay(y, m, anchor)
}
