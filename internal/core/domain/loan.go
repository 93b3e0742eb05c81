package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const notesSeparator = " | "

// Loan is one lending transaction of a single copy of a Title.
// Invariant: ReturnedAt != nil iff Status is terminal.
type Loan struct {
	ID         string
	BorrowerID string
	TitleID    string
	LoanDate   time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
	Status     LoanStatus
	Renewals   int
	FineAmount decimal.Decimal
	FinePaid   bool
	Notes      string
	Version    int // optimistic locking
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewLoan opens an ACTIVE loan dated today and due after the policy loan duration.
func NewLoan(id, borrowerID, titleID string, now time.Time, p Policy) Loan {
	today := DateOf(now)
	return Loan{
		ID:         id,
		BorrowerID: borrowerID,
		TitleID:    titleID,
		LoanDate:   today,
		DueDate:    today.Add(p.LoanDuration),
		Status:     LoanStatusActive,
		FineAmount: decimal.Zero,
		FinePaid:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (l Loan) IsOpen() bool {
	return l.Status.IsOpen()
}

// IsOverdue is the authoritative lateness check. The stored OVERDUE status only
// mirrors it as of the last sweep.
func (l Loan) IsOverdue(now time.Time) bool {
	return l.ReturnedAt == nil && DateOf(now).After(DateOf(l.DueDate))
}

func (l Loan) DaysOverdue(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}
	return DaysBetween(l.DueDate, now)
}

func (l Loan) HasUnpaidFine() bool {
	return l.FineAmount.IsPositive() && !l.FinePaid
}

// EstimatedFine projects the late fee as of now without touching the loan.
// Terminal loans report the fine that was recorded for them.
func (l Loan) EstimatedFine(now time.Time, ratePerDay decimal.Decimal) decimal.Decimal {
	if !l.IsOpen() {
		return l.FineAmount
	}
	return CalculateFine(l.DueDate, now, ratePerDay)
}

func (l *Loan) transition(target LoanStatus, now time.Time) error {
	if !l.Status.CanTransitionTo(target) {
		if l.Status.IsTerminal() {
			return ErrLoanClosed
		}
		return ErrTransitionNotAllowed
	}
	l.Status = target
	l.UpdatedAt = now
	return nil
}

func (l *Loan) close(target LoanStatus, now time.Time) error {
	if err := l.transition(target, now); err != nil {
		return err
	}
	at := now
	l.ReturnedAt = &at
	return nil
}

// Renew extends the due date by the policy renewal extension.
func (l *Loan) Renew(now time.Time, p Policy) error {
	if l.Status.IsTerminal() {
		return ErrLoanClosed
	}
	if l.Renewals >= p.MaxRenewals {
		return ErrRenewalLimitReached
	}
	if l.Status != LoanStatusActive && l.Status != LoanStatusRenewed {
		return ErrNotRenewable
	}
	if l.IsOverdue(now) {
		return ErrLoanOverdue
	}
	if !l.FinePaid {
		return ErrFineNotPaid
	}
	if l.Status == LoanStatusActive {
		if err := l.transition(LoanStatusRenewed, now); err != nil {
			return err
		}
	}
	l.DueDate = DateOf(l.DueDate).Add(p.RenewalExtension)
	l.Renewals++
	l.UpdatedAt = now
	return nil
}

// Return closes the loan as RETURNED, or RETURNED_LATE with a late fee when the
// return day is after the due date. A late return from ACTIVE or RENEWED passes
// through OVERDUE so that only table transitions are taken.
func (l *Loan) Return(at time.Time, p Policy) error {
	if !l.IsOpen() {
		return ErrLoanClosed
	}
	late := DateOf(at).After(DateOf(l.DueDate))
	if !late && l.Status != LoanStatusOverdue {
		if err := l.close(LoanStatusReturned, at); err != nil {
			return err
		}
		l.FineAmount = decimal.Zero
		l.FinePaid = true
		return nil
	}
	if l.Status != LoanStatusOverdue {
		if err := l.transition(LoanStatusOverdue, at); err != nil {
			return err
		}
	}
	if err := l.close(LoanStatusReturnedLate, at); err != nil {
		return err
	}
	l.FineAmount = CalculateFine(l.DueDate, at, p.DailyFineRate)
	l.FinePaid = !l.FineAmount.IsPositive()
	return nil
}

// MarkLost closes the loan and charges the title price. The copy stays out of stock.
func (l *Loan) MarkLost(now time.Time, price decimal.NullDecimal, p Policy) error {
	if err := l.close(LoanStatusLost, now); err != nil {
		return err
	}
	l.FineAmount = p.LostFine(price)
	l.FinePaid = !l.FineAmount.IsPositive()
	return nil
}

// MarkDamaged closes the loan, charges the damage fee and records the description.
func (l *Loan) MarkDamaged(now time.Time, price decimal.NullDecimal, description string, p Policy) error {
	if err := l.close(LoanStatusDamaged, now); err != nil {
		return err
	}
	l.FineAmount = p.DamageFine(price)
	l.FinePaid = !l.FineAmount.IsPositive()
	l.AppendNote("DAMAGED: " + description)
	return nil
}

// Cancel closes the loan without a fine.
func (l *Loan) Cancel(now time.Time, reason string) error {
	if err := l.close(LoanStatusCancelled, now); err != nil {
		return err
	}
	l.AppendNote("CANCELLED: " + reason)
	return nil
}

// MarkOverdue caches the overdue predicate in the status. It never computes a fine.
func (l *Loan) MarkOverdue(now time.Time) error {
	if !l.IsOverdue(now) {
		return ErrTransitionNotAllowed
	}
	return l.transition(LoanStatusOverdue, now)
}

// PayFine settles the outstanding fine without changing the status.
func (l *Loan) PayFine(now time.Time) error {
	if !l.HasUnpaidFine() {
		return ErrNoFineDue
	}
	l.FinePaid = true
	l.UpdatedAt = now
	return nil
}

// AppendNote adds text to the notes. Allowed in every status.
func (l *Loan) AppendNote(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if l.Notes == "" {
		l.Notes = text
		return
	}
	l.Notes += notesSeparator + text
}
