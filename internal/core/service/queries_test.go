package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/library-lending/internal/core/domain"
)

func TestFindLoansDueSoon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 3, "")
	f.addBorrower(t, "ana", true)

	loan, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)

	_, err = f.svc.FindLoansDueSoon(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	due, err := f.svc.FindLoansDueSoon(ctx, 13)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = f.svc.FindLoansDueSoon(ctx, 14)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, loan.ID, due[0].ID)

	today, err := f.svc.FindLoansDueToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, today)

	f.clock.Advance(14)
	today, err = f.svc.FindLoansDueToday(ctx)
	require.NoError(t, err)
	assert.Len(t, today, 1)
}

func TestFindOverdueLoans_IgnoresStoredStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 3, "")
	f.addBorrower(t, "ana", true)

	_, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)

	f.clock.Advance(14)
	overdue, err := f.svc.FindOverdueLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.clock.Advance(1)
	overdue, err = f.svc.FindOverdueLoans(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, domain.LoanStatusActive, overdue[0].Status)
}

func TestOverdueReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 3, "")
	f.addTitle(t, "emma", 3, "")
	f.addBorrower(t, "ana", true)
	f.addBorrower(t, "bo", true)

	a, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	f.clock.Advance(2)
	b, err := f.svc.CreateLoan(ctx, "bo", "emma")
	require.NoError(t, err)

	f.clock.Advance(16)
	report, err := f.svc.OverdueReport(ctx)
	require.NoError(t, err)

	require.Len(t, report.Entries, 2)
	assert.Equal(t, a.ID, report.Entries[0].Loan.ID)
	assert.Equal(t, 4, report.Entries[0].DaysOverdue)
	assert.Equal(t, "2.00", report.Entries[0].EstimatedFine.StringFixed(2))
	assert.Equal(t, b.ID, report.Entries[1].Loan.ID)
	assert.Equal(t, "3.00", report.TotalEstimated.StringFixed(2))

	stored, err := f.svc.GetLoan(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.FineAmount.IsZero())
}

func TestLoanStatsByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 3, "")
	f.addBorrower(t, "ana", true)
	f.addBorrower(t, "bo", true)

	_, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	loan, err := f.svc.CreateLoan(ctx, "bo", "dune")
	require.NoError(t, err)
	_, err = f.svc.ProcessReturn(ctx, loan.ID)
	require.NoError(t, err)

	stats, err := f.svc.LoanStatsByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, len(domain.AllLoanStatuses))
	assert.Equal(t, 1, stats[domain.LoanStatusActive])
	assert.Equal(t, 1, stats[domain.LoanStatusReturned])
	assert.Equal(t, 0, stats[domain.LoanStatusLost])
}

func TestFindLoansByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 3, "")
	f.addBorrower(t, "ana", true)
	f.addBorrower(t, "bo", true)

	active, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	returned, err := f.svc.CreateLoan(ctx, "bo", "dune")
	require.NoError(t, err)
	_, err = f.svc.ProcessReturn(ctx, returned.ID)
	require.NoError(t, err)

	loans, err := f.svc.FindLoansByStatus(ctx, domain.LoanStatusActive)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, active.ID, loans[0].ID)

	all, err := f.svc.FindLoansByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFindActiveLoansForBorrower(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 3, "")
	f.addTitle(t, "emma", 3, "")
	f.addBorrower(t, "ana", true)

	first, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	f.clock.Advance(3)
	second, err := f.svc.CreateLoan(ctx, "ana", "emma")
	require.NoError(t, err)
	_, err = f.svc.RenewLoan(ctx, first.ID)
	require.NoError(t, err)

	loans, err := f.svc.FindActiveLoansForBorrower(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, loans, 2)
	// ACTIVE outranks RENEWED
	assert.Equal(t, second.ID, loans[0].ID)
	assert.Equal(t, first.ID, loans[1].ID)

	_, err = f.svc.FindActiveLoansForBorrower(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrBorrowerNotFound)
}

func TestFindLoansWithUnpaidFines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 3, "")
	f.addBorrower(t, "ana", true)

	loan, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	f.clock.Advance(20)
	_, err = f.svc.ProcessReturn(ctx, loan.ID)
	require.NoError(t, err)

	unpaid, err := f.svc.FindLoansWithUnpaidFines(ctx)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "3.00", unpaid[0].FineAmount.StringFixed(2))
}
