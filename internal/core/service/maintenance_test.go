package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/library-lending/internal/adapter/storage"
	"github.com/rl1809/library-lending/internal/core/domain"
)

func TestUpdateOverdueLoans_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 5, "")
	f.addBorrower(t, "ana", true)
	f.addBorrower(t, "bo", true)

	early, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	f.clock.Advance(10)
	fresh, err := f.svc.CreateLoan(ctx, "bo", "dune")
	require.NoError(t, err)

	// early is due on day 14, fresh on day 24
	f.clock.Advance(5)
	moved, err := f.svc.UpdateOverdueLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err := f.svc.GetLoan(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusOverdue, got.Status)
	assert.True(t, got.FineAmount.IsZero())

	got, err = f.svc.GetLoan(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, got.Status)

	moved, err = f.svc.UpdateOverdueLoans(ctx)
	require.NoError(t, err)
	assert.Zero(t, moved)
	assert.Contains(t, f.pub.types(), EventLoanOverdue)
}

func TestUpdateOverdueLoans_IncludesRenewed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 1, "")
	f.addBorrower(t, "ana", true)

	loan, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	_, err = f.svc.RenewLoan(ctx, loan.ID)
	require.NoError(t, err)

	f.clock.Advance(29)
	moved, err := f.svc.UpdateOverdueLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusOverdue, got.Status)
}

func TestUpdateOverdueLoans_ContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	backend := &failingStore{MemoryStore: store, updateErr: map[string]error{}}
	f := newFixtureWith(t, store, backend)
	f.addTitle(t, "dune", 3, "")
	f.addBorrower(t, "ana", true)
	f.addBorrower(t, "bo", true)

	broken, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	healthy, err := f.svc.CreateLoan(ctx, "bo", "dune")
	require.NoError(t, err)
	backend.updateErr[broken.ID] = errors.New("row locked")

	f.clock.Advance(20)
	moved, err := f.svc.UpdateOverdueLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err := f.svc.GetLoan(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusOverdue, got.Status)

	got, err = f.svc.GetLoan(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, got.Status)
}

// A loan returned between the listing and the transition must stay returned.
func TestUpdateOverdueLoans_SkipsLoanClosedMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 1, "")
	f.addBorrower(t, "ana", true)

	loan, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	f.clock.Advance(20)
	_, err = f.svc.ProcessReturn(ctx, loan.ID)
	require.NoError(t, err)

	moved, err := f.svc.markOverdue(ctx, loan.ID, f.clock.Now())
	require.NoError(t, err)
	assert.False(t, moved)

	got, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusReturnedLate, got.Status)
}

func TestReturnAfterSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTitle(t, "dune", 1, "")
	f.addBorrower(t, "ana", true)

	loan, err := f.svc.CreateLoan(ctx, "ana", "dune")
	require.NoError(t, err)
	f.clock.Advance(16)
	_, err = f.svc.UpdateOverdueLoans(ctx)
	require.NoError(t, err)

	returned, err := f.svc.ProcessReturn(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusReturnedLate, returned.Status)
	assert.Equal(t, "1.00", returned.FineAmount.StringFixed(2))
	assert.Equal(t, 1, f.available(t, "dune"))
}
