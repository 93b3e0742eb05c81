package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const Day = 24 * time.Hour

// DateOf truncates t to its calendar day in t's location, expressed at UTC midnight.
// All due-date arithmetic is done on these values so whole days divide evenly.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b; negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)) / Day)
}

// CalculateFine is max(0, days late) * ratePerDay rounded to cents.
// It has no state: identical inputs always give identical output.
func CalculateFine(dueDate, asOf time.Time, ratePerDay decimal.Decimal) decimal.Decimal {
	days := DaysBetween(dueDate, asOf)
	if days <= 0 {
		return decimal.Zero.Round(2)
	}
	return ratePerDay.Mul(decimal.NewFromInt(int64(days))).Round(2)
}
