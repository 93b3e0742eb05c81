package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanStatus_Transitions(t *testing.T) {
	allowed := map[LoanStatus][]LoanStatus{
		LoanStatusActive:  {LoanStatusOverdue, LoanStatusReturned, LoanStatusRenewed, LoanStatusCancelled, LoanStatusLost, LoanStatusDamaged},
		LoanStatusOverdue: {LoanStatusReturnedLate, LoanStatusLost, LoanStatusDamaged, LoanStatusCancelled},
		LoanStatusRenewed: {LoanStatusReturned, LoanStatusOverdue, LoanStatusCancelled, LoanStatusLost, LoanStatusDamaged},
	}

	for _, from := range AllLoanStatuses {
		for _, to := range AllLoanStatuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestLoanStatus_Classification(t *testing.T) {
	for _, s := range AllLoanStatuses {
		assert.NotEqual(t, s.IsOpen(), s.IsTerminal(), s)
		assert.True(t, s.IsValid())
	}
	assert.ElementsMatch(t, OpenLoanStatuses, []LoanStatus{LoanStatusActive, LoanStatusOverdue, LoanStatusRenewed})
	assert.False(t, LoanStatus("BORROWED").IsValid())
	assert.False(t, LoanStatus("BORROWED").IsTerminal())
	assert.Greater(t, LoanStatusLost.Priority(), LoanStatusOverdue.Priority())
	assert.Greater(t, LoanStatusOverdue.Priority(), LoanStatusActive.Priority())
}

func TestParseLoanStatus(t *testing.T) {
	s, err := ParseLoanStatus(" returned_late ")
	require.NoError(t, err)
	assert.Equal(t, LoanStatusReturnedLate, s)

	_, err = ParseLoanStatus("lent")
	assert.ErrorIs(t, err, ErrValidation)
}
