package schedule

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the calendar date format stored on every record. It sorts
	// lexicographically in chronological order.
	DateLayout = "2006-01-02"

	minDueDay = 1
	maxDueDay = 28
)

// ClampDueDay limits a due-day-of-month to [1,28] so every month has it.
func ClampDueDay(day int) int {
	if day < minDueDay {
		return minDueDay
	}
	if day > maxDueDay {
		return maxDueDay
	}
	return day
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today returns the calendar date of now in loc, as UTC midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the following month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dayIn(year int, month time.Month, dueDay int) time.Time {
	day := dueDay
	if n := DaysInMonth(year, month); day > n {
		day = n
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FirstDueDate returns the first due date on or after start that falls on
// dueDay.
func FirstDueDate(start time.Time, dueDay int) time.Time {
	candidate := dayIn(start.Year(), start.Month(), dueDay)
	if candidate.Before(start) {
		return AdvanceOneMonth(start, dueDay)
	}
	return candidate
}

// AdvanceOneMonth moves date into the following calendar month, landing on
// dueDay or on that month's last day when it is shorter.
func AdvanceOneMonth(date time.Time, dueDay int) time.Time {
	first := time.Date(date.Year(), date.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return dayIn(first.Year(), first.Month(), dueDay)
}

// AdvanceMonths applies AdvanceOneMonth n times.
func AdvanceMonths(date time.Time, dueDay, n int) time.Time {
	for i := 0; i < n; i++ {
		date = AdvanceOneMonth(date, dueDay)
	}
	return date
}
