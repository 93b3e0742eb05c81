package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/library-lending/internal/core/domain"
)

// UpdateOverdueLoans moves every past-due ACTIVE or RENEWED loan to OVERDUE and returns
// how many moved. A loan that fails is logged and skipped. Running it twice on the
// same day moves nothing the second time.
func (s *LoanService) UpdateOverdueLoans(ctx context.Context) (int, error) {
	candidates, err := s.loans.ListByStatus(ctx, domain.LoanStatusActive, domain.LoanStatusRenewed)
	if err != nil {
		return 0, fmt.Errorf("list sweep candidates: %w", err)
	}

	now := s.nowFn()
	started := time.Now()
	var transitioned, failed int
	for _, c := range candidates {
		if !c.IsOverdue(now) {
			continue
		}
		moved, err := s.markOverdue(ctx, c.ID, now)
		if err != nil {
			failed++
			s.logger.WarnContext(ctx, "overdue transition failed",
				"operation", "update_overdue_loans",
				"outcome", "failure",
				"loan_id", c.ID,
				"error", err,
			)
			continue
		}
		if moved {
			transitioned++
		}
	}

	s.logger.InfoContext(ctx, "overdue sweep finished",
		"operation", "update_overdue_loans",
		"outcome", "success",
		"candidates", len(candidates),
		"transitioned", transitioned,
		"failed", failed,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return transitioned, nil
}

// markOverdue re-reads the loan under its lock; a concurrent return or renewal wins.
func (s *LoanService) markOverdue(ctx context.Context, loanID string, now time.Time) (bool, error) {
	unlock, err := s.locker.Lock(ctx, loanLockKey(loanID))
	if err != nil {
		return false, fmt.Errorf("lock loan %s: %w", loanID, err)
	}
	defer unlock()

	loan, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return false, err
	}
	if loan.Status != domain.LoanStatusActive && loan.Status != domain.LoanStatusRenewed {
		return false, nil
	}
	if !loan.IsOverdue(now) {
		return false, nil
	}
	if err := loan.MarkOverdue(now); err != nil {
		return false, err
	}
	updated, err := s.loans.UpdateLoan(ctx, loan)
	if err != nil {
		return false, fmt.Errorf("update loan: %w", err)
	}
	s.publish(ctx, EventLoanOverdue, updated)
	return true, nil
}
