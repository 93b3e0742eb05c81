package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy holds the borrowing rules the engine enforces.
type Policy struct {
	MaxLoansPerBorrower int
	MaxRenewals         int
	LoanDuration        time.Duration
	RenewalExtension    time.Duration
	DailyFineRate       decimal.Decimal
	LostFallbackFine    decimal.Decimal
	DamageFineRatio     decimal.Decimal
	DamageFallbackFine  decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		MaxLoansPerBorrower: 5,
		MaxRenewals:         3,
		LoanDuration:        14 * Day,
		RenewalExtension:    14 * Day,
		DailyFineRate:       decimal.RequireFromString("0.50"),
		LostFallbackFine:    decimal.RequireFromString("20.00"),
		DamageFineRatio:     decimal.RequireFromString("0.5"),
		DamageFallbackFine:  decimal.RequireFromString("10.00"),
	}
}

func (p Policy) Validate() error {
	switch {
	case p.MaxLoansPerBorrower <= 0:
		return Validationf("max loans per borrower must be positive")
	case p.MaxRenewals < 0:
		return Validationf("max renewals must not be negative")
	case p.LoanDuration < Day || p.LoanDuration%Day != 0:
		return Validationf("loan duration must be a positive whole number of days")
	case p.RenewalExtension < Day || p.RenewalExtension%Day != 0:
		return Validationf("renewal extension must be a positive whole number of days")
	case p.DailyFineRate.IsNegative():
		return Validationf("daily fine rate must not be negative")
	case p.LostFallbackFine.IsNegative() || p.DamageFallbackFine.IsNegative():
		return Validationf("fallback fines must not be negative")
	case p.DamageFineRatio.IsNegative() || p.DamageFineRatio.GreaterThan(decimal.NewFromInt(1)):
		return Validationf("damage fine ratio must be between 0 and 1")
	}
	return nil
}

// LostFine is the title price, or the fallback when the price is unknown.
func (p Policy) LostFine(price decimal.NullDecimal) decimal.Decimal {
	if price.Valid {
		return price.Decimal.Round(2)
	}
	return p.LostFallbackFine.Round(2)
}

// DamageFine is DamageFineRatio of the title price, or the fallback when the price is unknown.
func (p Policy) DamageFine(price decimal.NullDecimal) decimal.Decimal {
	if price.Valid {
		return price.Decimal.Mul(p.DamageFineRatio).Round(2)
	}
	return p.DamageFallbackFine.Round(2)
}
