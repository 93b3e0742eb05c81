package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Title is a catalog entry whose copies are tracked only in aggregate.
// Invariant: 0 <= AvailableCopies <= TotalCopies.
type Title struct {
	ID              string
	Name            string
	Price           decimal.NullDecimal
	TotalCopies     int
	AvailableCopies int
	Active          bool
	LoanCount       int // never decremented
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTitle returns an active title with every copy available.
func NewTitle(id, name string, totalCopies int, price decimal.NullDecimal, now time.Time) (Title, error) {
	if id == "" {
		return Title{}, Validationf("title id is required")
	}
	if totalCopies < 0 {
		return Title{}, Validationf("total copies must not be negative, got %d", totalCopies)
	}
	if price.Valid && price.Decimal.IsNegative() {
		return Title{}, Validationf("price must not be negative")
	}
	return Title{
		ID:              id,
		Name:            name,
		Price:           price,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (t Title) LoanedCopies() int {
	return t.TotalCopies - t.AvailableCopies
}

func (t Title) IsLoanable() bool {
	return t.Active && t.AvailableCopies > 0
}

// Reserve takes one copy out of availability.
func (t *Title) Reserve() error {
	if !t.Active {
		return ErrTitleNotLoanable
	}
	if t.AvailableCopies <= 0 {
		return ErrNoCopiesAvailable
	}
	t.AvailableCopies--
	return nil
}

// Release puts one copy back. It refuses to push availability above the total.
func (t *Title) Release() error {
	if t.AvailableCopies >= t.TotalCopies {
		return ErrAllCopiesAvailable
	}
	t.AvailableCopies++
	return nil
}

// Resize changes the total while keeping the number of loaned copies fixed.
func (t *Title) Resize(newTotal int) error {
	if newTotal < 0 {
		return Validationf("total copies must not be negative, got %d", newTotal)
	}
	loaned := t.LoanedCopies()
	if newTotal < loaned {
		return ErrShrinkBelowLoaned
	}
	t.TotalCopies = newTotal
	t.AvailableCopies = newTotal - loaned
	return nil
}
