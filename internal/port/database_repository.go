package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/library-lending/internal/core/domain"
)

// Catalog owns the copy-count ledger of each title.
type Catalog interface {
	// CreateTitle inserts a new title; an existing id yields domain.ErrTitleExists.
	// Copy counts change afterwards only through Reserve, Release and Resize
	CreateTitle(ctx context.Context, title domain.Title) error

	// GetTitle returns domain.ErrTitleNotFound for unknown ids
	GetTitle(ctx context.Context, titleID string) (domain.Title, error)

	// Reserve atomically takes one available copy; concurrent callers never both win the last copy
	Reserve(ctx context.Context, titleID string) error

	// Release puts one copy back, refusing to exceed the total
	Release(ctx context.Context, titleID string) error

	// Resize changes the total, refusing to go below the loaned copies
	Resize(ctx context.Context, titleID string, newTotal int) (domain.Title, error)

	// IncrementLoanCount bumps the popularity counter
	IncrementLoanCount(ctx context.Context, titleID string) error
}

// IdentityProvider reports whether a member may borrow.
type IdentityProvider interface {
	// LookupBorrower returns domain.ErrBorrowerNotFound for unknown ids
	LookupBorrower(ctx context.Context, borrowerID string) (domain.Borrower, error)
}

type LoanRepository interface {
	// CreateLoan persists a new loan
	CreateLoan(ctx context.Context, loan domain.Loan) error

	// GetLoan returns domain.ErrLoanNotFound for unknown ids
	GetLoan(ctx context.Context, loanID string) (domain.Loan, error)

	// UpdateLoan writes the loan if its version still matches and bumps the version
	UpdateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error)

	ListOpenByBorrower(ctx context.Context, borrowerID string) ([]domain.Loan, error)
	ListByStatus(ctx context.Context, statuses ...domain.LoanStatus) ([]domain.Loan, error)

	// ListOverdue returns open loans whose due date is before asOf's calendar day
	ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Loan, error)

	// ListDueBetween returns open loans with from <= due date <= to (calendar days)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Loan, error)

	ListWithUnpaidFines(ctx context.Context) ([]domain.Loan, error)
	HasUnpaidFines(ctx context.Context, borrowerID string) (bool, error)
	SumUnpaidFines(ctx context.Context) (decimal.Decimal, error)
	CountByStatus(ctx context.Context) (map[domain.LoanStatus]int, error)
}
