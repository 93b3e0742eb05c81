package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/library-lending/internal/core/domain"
)

func (s *LoanService) GetLoan(ctx context.Context, loanID string) (domain.Loan, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return domain.Loan{}, domain.Validationf("loan id is required")
	}
	return s.loans.GetLoan(ctx, loanID)
}

// FindActiveLoansForBorrower returns the borrower's open loans, most urgent status first.
func (s *LoanService) FindActiveLoansForBorrower(ctx context.Context, borrowerID string) ([]domain.Loan, error) {
	if _, err := s.identity.LookupBorrower(ctx, borrowerID); err != nil {
		return nil, err
	}
	loans, err := s.loans.ListOpenByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("list open loans: %w", err)
	}
	sortByUrgency(loans)
	return loans, nil
}

// FindLoansByStatus lists loans in any of the given statuses, or in every status when none is given.
func (s *LoanService) FindLoansByStatus(ctx context.Context, statuses ...domain.LoanStatus) ([]domain.Loan, error) {
	if len(statuses) == 0 {
		statuses = domain.AllLoanStatuses
	}
	loans, err := s.loans.ListByStatus(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list loans by status: %w", err)
	}
	return loans, nil
}

// FindOverdueLoans evaluates lateness against today, whatever the stored status says.
func (s *LoanService) FindOverdueLoans(ctx context.Context) ([]domain.Loan, error) {
	loans, err := s.loans.ListOverdue(ctx, s.nowFn())
	if err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}
	return loans, nil
}

// FindLoansDueSoon returns open loans due between today and today+days inclusive.
func (s *LoanService) FindLoansDueSoon(ctx context.Context, days int) ([]domain.Loan, error) {
	if days < 1 {
		return nil, domain.Validationf("days must be at least 1, got %d", days)
	}
	today := domain.DateOf(s.nowFn())
	loans, err := s.loans.ListDueBetween(ctx, today, today.AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("list loans due soon: %w", err)
	}
	return loans, nil
}

func (s *LoanService) FindLoansDueToday(ctx context.Context) ([]domain.Loan, error) {
	today := domain.DateOf(s.nowFn())
	loans, err := s.loans.ListDueBetween(ctx, today, today)
	if err != nil {
		return nil, fmt.Errorf("list loans due today: %w", err)
	}
	return loans, nil
}

func (s *LoanService) FindLoansWithUnpaidFines(ctx context.Context) ([]domain.Loan, error) {
	loans, err := s.loans.ListWithUnpaidFines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unpaid fines: %w", err)
	}
	return loans, nil
}

func (s *LoanService) CalculateTotalUnpaidFines(ctx context.Context) (decimal.Decimal, error) {
	total, err := s.loans.SumUnpaidFines(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum unpaid fines: %w", err)
	}
	return total.Round(2), nil
}

// LoanStatsByStatus counts loans per status. Every status is present, zero when unused.
func (s *LoanService) LoanStatsByStatus(ctx context.Context) (map[domain.LoanStatus]int, error) {
	counts, err := s.loans.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count loans by status: %w", err)
	}
	stats := make(map[domain.LoanStatus]int, len(domain.AllLoanStatuses))
	for _, st := range domain.AllLoanStatuses {
		stats[st] = counts[st]
	}
	return stats, nil
}

// OverdueReport projects the fine each overdue loan would owe if returned today.
// Nothing is written back.
func (s *LoanService) OverdueReport(ctx context.Context) (domain.OverdueReport, error) {
	now := s.nowFn()
	loans, err := s.loans.ListOverdue(ctx, now)
	if err != nil {
		return domain.OverdueReport{}, fmt.Errorf("list overdue loans: %w", err)
	}
	report := domain.NewOverdueReport(loans, now, s.policy.DailyFineRate)
	sort.SliceStable(report.Entries, func(i, j int) bool {
		return report.Entries[i].DaysOverdue > report.Entries[j].DaysOverdue
	})
	return report, nil
}

func sortByUrgency(loans []domain.Loan) {
	sort.SliceStable(loans, func(i, j int) bool {
		pi, pj := loans[i].Status.Priority(), loans[j].Status.Priority()
		if pi != pj {
			return pi > pj
		}
		return loans[i].DueDate.Before(loans[j].DueDate)
	})
}
