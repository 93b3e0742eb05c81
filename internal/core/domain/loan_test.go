package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loanDay = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

func newTestLoan() Loan {
	return NewLoan("l1", "b1", "t1", loanDay, DefaultPolicy())
}

func TestNewLoan(t *testing.T) {
	l := newTestLoan()

	assert.Equal(t, LoanStatusActive, l.Status)
	assert.Equal(t, DateOf(loanDay), l.LoanDate)
	assert.Equal(t, 14, DaysBetween(l.LoanDate, l.DueDate))
	assert.Nil(t, l.ReturnedAt)
	assert.True(t, l.FinePaid)
	assert.True(t, l.FineAmount.IsZero())
	assert.False(t, l.IsOverdue(loanDay.AddDate(0, 0, 14)))
	assert.True(t, l.IsOverdue(loanDay.AddDate(0, 0, 15)))
	assert.Equal(t, 1, l.DaysOverdue(loanDay.AddDate(0, 0, 15)))
}

func TestLoan_Return(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name       string
		prepare    func(l *Loan)
		daysLater  int
		wantStatus LoanStatus
		wantFine   string
	}{
		{name: "on time", daysLater: 10, wantStatus: LoanStatusReturned, wantFine: "0.00"},
		{name: "due day", daysLater: 14, wantStatus: LoanStatusReturned, wantFine: "0.00"},
		{name: "late from active", daysLater: 17, wantStatus: LoanStatusReturnedLate, wantFine: "1.50"},
		{
			name: "late from overdue",
			prepare: func(l *Loan) {
				require.NoError(t, l.MarkOverdue(loanDay.AddDate(0, 0, 15)))
			},
			daysLater:  20,
			wantStatus: LoanStatusReturnedLate,
			wantFine:   "3.00",
		},
		{
			name: "late from renewed",
			prepare: func(l *Loan) {
				require.NoError(t, l.Renew(loanDay, p))
			},
			daysLater:  30,
			wantStatus: LoanStatusReturnedLate,
			wantFine:   "1.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoan()
			if tt.prepare != nil {
				tt.prepare(&l)
			}
			at := loanDay.AddDate(0, 0, tt.daysLater)

			require.NoError(t, l.Return(at, p))

			assert.Equal(t, tt.wantStatus, l.Status)
			assert.Equal(t, tt.wantFine, l.FineAmount.StringFixed(2))
			assert.Equal(t, l.FineAmount.IsZero(), l.FinePaid)
			require.NotNil(t, l.ReturnedAt)
			assert.True(t, l.ReturnedAt.Equal(at))
			assert.Equal(t, l.HasUnpaidFine(), !l.FinePaid)
		})
	}
}

func TestLoan_ReturnClosedLoan(t *testing.T) {
	l := newTestLoan()
	require.NoError(t, l.Return(loanDay, DefaultPolicy()))

	err := l.Return(loanDay, DefaultPolicy())
	assert.ErrorIs(t, err, ErrLoanClosed)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestLoan_Renew(t *testing.T) {
	p := DefaultPolicy()
	l := newTestLoan()
	due := l.DueDate

	require.NoError(t, l.Renew(loanDay.AddDate(0, 0, 5), p))
	assert.Equal(t, LoanStatusRenewed, l.Status)
	assert.Equal(t, 1, l.Renewals)
	assert.Equal(t, 14, DaysBetween(due, l.DueDate))

	require.NoError(t, l.Renew(loanDay.AddDate(0, 0, 6), p))
	assert.Equal(t, LoanStatusRenewed, l.Status)
	assert.Equal(t, 2, l.Renewals)
}

func TestLoan_RenewRefusals(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		prepare func(l *Loan)
		at      time.Time
		wantErr error
	}{
		{
			name:    "limit reached",
			prepare: func(l *Loan) { l.Renewals = p.MaxRenewals },
			at:      loanDay,
			wantErr: ErrRenewalLimitReached,
		},
		{
			name:    "past due",
			at:      loanDay.AddDate(0, 0, 15),
			wantErr: ErrLoanOverdue,
		},
		{
			name: "overdue status",
			prepare: func(l *Loan) {
				l.Status = LoanStatusOverdue
			},
			at:      loanDay,
			wantErr: ErrNotRenewable,
		},
		{
			name: "unpaid fine",
			prepare: func(l *Loan) {
				l.FineAmount = decimal.RequireFromString("2.00")
				l.FinePaid = false
			},
			at:      loanDay,
			wantErr: ErrFineNotPaid,
		},
		{
			name: "closed",
			prepare: func(l *Loan) {
				require.NoError(t, l.Cancel(loanDay, "test"))
			},
			at:      loanDay,
			wantErr: ErrLoanClosed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoan()
			if tt.prepare != nil {
				tt.prepare(&l)
			}
			before := l

			err := l.Renew(tt.at, p)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before.Renewals, l.Renewals)
			assert.True(t, before.DueDate.Equal(l.DueDate))
		})
	}
}

func TestLoan_MarkLostAndDamaged(t *testing.T) {
	p := DefaultPolicy()
	price := decimal.NewNullDecimal(decimal.RequireFromString("40.00"))

	lost := newTestLoan()
	require.NoError(t, lost.MarkLost(loanDay, price, p))
	assert.Equal(t, LoanStatusLost, lost.Status)
	assert.Equal(t, "40.00", lost.FineAmount.StringFixed(2))
	assert.True(t, lost.HasUnpaidFine())

	damaged := newTestLoan()
	require.NoError(t, damaged.MarkOverdue(loanDay.AddDate(0, 0, 20)))
	require.NoError(t, damaged.MarkDamaged(loanDay.AddDate(0, 0, 20), price, "spine broken", p))
	assert.Equal(t, LoanStatusDamaged, damaged.Status)
	assert.Equal(t, "20.00", damaged.FineAmount.StringFixed(2))
	assert.Equal(t, "DAMAGED: spine broken", damaged.Notes)

	assert.ErrorIs(t, damaged.MarkLost(loanDay, price, p), ErrLoanClosed)
}

func TestLoan_MarkOverdue(t *testing.T) {
	l := newTestLoan()
	assert.ErrorIs(t, l.MarkOverdue(loanDay.AddDate(0, 0, 14)), ErrTransitionNotAllowed)

	require.NoError(t, l.MarkOverdue(loanDay.AddDate(0, 0, 15)))
	assert.Equal(t, LoanStatusOverdue, l.Status)
	assert.True(t, l.FineAmount.IsZero())

	assert.ErrorIs(t, l.MarkOverdue(loanDay.AddDate(0, 0, 16)), ErrTransitionNotAllowed)
}

func TestLoan_PayFine(t *testing.T) {
	l := newTestLoan()
	assert.ErrorIs(t, l.PayFine(loanDay), ErrNoFineDue)

	require.NoError(t, l.Return(loanDay.AddDate(0, 0, 16), DefaultPolicy()))
	require.NoError(t, l.PayFine(loanDay.AddDate(0, 0, 16)))
	assert.True(t, l.FinePaid)
	assert.Equal(t, "1.00", l.FineAmount.StringFixed(2))
	assert.Equal(t, LoanStatusReturnedLate, l.Status)
}

func TestLoan_AppendNote(t *testing.T) {
	l := newTestLoan()
	l.AppendNote("first")
	l.AppendNote("  ")
	require.NoError(t, l.Cancel(loanDay, "wrong member"))
	l.AppendNote("after close")

	assert.Equal(t, "first | CANCELLED: wrong member | after close", l.Notes)
}

func TestLoan_EstimatedFine(t *testing.T) {
	rate := DefaultPolicy().DailyFineRate
	l := newTestLoan()
	assert.Equal(t, "2.50", l.EstimatedFine(loanDay.AddDate(0, 0, 19), rate).StringFixed(2))
	assert.True(t, l.FineAmount.IsZero())
}

func TestNewOverdueReport(t *testing.T) {
	rate := DefaultPolicy().DailyFineRate
	late := newTestLoan()
	onTime := NewLoan("l2", "b1", "t2", loanDay.AddDate(0, 0, 10), DefaultPolicy())

	report := NewOverdueReport([]Loan{late, onTime}, loanDay.AddDate(0, 0, 18), rate)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, 4, report.Entries[0].DaysOverdue)
	assert.Equal(t, "2.00", report.TotalEstimated.StringFixed(2))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(ErrLoanNotFound))
	assert.Equal(t, KindInvalidState, KindOf(ErrLoanClosed))
	assert.Equal(t, KindPolicyViolation, KindOf(ErrUnpaidFines))
	assert.Equal(t, KindValidation, KindOf(Validationf("bad %d", 1)))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
}
