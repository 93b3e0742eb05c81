package domain

import "strings"

type LoanStatus string

const (
	LoanStatusActive       LoanStatus = "ACTIVE"
	LoanStatusOverdue      LoanStatus = "OVERDUE"
	LoanStatusRenewed      LoanStatus = "RENEWED"
	LoanStatusReturned     LoanStatus = "RETURNED"
	LoanStatusReturnedLate LoanStatus = "RETURNED_LATE"
	LoanStatusCancelled    LoanStatus = "CANCELLED"
	LoanStatusLost         LoanStatus = "LOST"
	LoanStatusDamaged      LoanStatus = "DAMAGED"
)

// AllLoanStatuses lists every status in declaration order.
var AllLoanStatuses = []LoanStatus{
	LoanStatusActive,
	LoanStatusOverdue,
	LoanStatusRenewed,
	LoanStatusReturned,
	LoanStatusReturnedLate,
	LoanStatusCancelled,
	LoanStatusLost,
	LoanStatusDamaged,
}

// OpenLoanStatuses are the statuses in which the borrower still holds the copy.
var OpenLoanStatuses = []LoanStatus{LoanStatusActive, LoanStatusOverdue, LoanStatusRenewed}

var loanTransitions = map[LoanStatus]map[LoanStatus]bool{
	LoanStatusActive: {
		LoanStatusOverdue:   true,
		LoanStatusReturned:  true,
		LoanStatusRenewed:   true,
		LoanStatusCancelled: true,
		LoanStatusLost:      true,
		LoanStatusDamaged:   true,
	},
	LoanStatusOverdue: {
		LoanStatusReturnedLate: true,
		LoanStatusLost:         true,
		LoanStatusDamaged:      true,
		LoanStatusCancelled:    true,
	},
	LoanStatusRenewed: {
		LoanStatusReturned:  true,
		LoanStatusOverdue:   true,
		LoanStatusCancelled: true,
		LoanStatusLost:      true,
		LoanStatusDamaged:   true,
	},
}

// priority orders statuses for triage listings; higher needs attention sooner.
var loanStatusPriority = map[LoanStatus]int{
	LoanStatusLost:         10,
	LoanStatusDamaged:      9,
	LoanStatusOverdue:      8,
	LoanStatusReturnedLate: 6,
	LoanStatusActive:       5,
	LoanStatusRenewed:      4,
	LoanStatusReturned:     2,
	LoanStatusCancelled:    1,
}

func (s LoanStatus) IsOpen() bool {
	return s == LoanStatusActive || s == LoanStatusOverdue || s == LoanStatusRenewed
}

func (s LoanStatus) IsTerminal() bool {
	return s.IsValid() && !s.IsOpen()
}

func (s LoanStatus) IsValid() bool {
	_, ok := loanStatusPriority[s]
	return ok
}

// CanTransitionTo reports whether the guarded state machine allows s -> target.
// Self transitions are never allowed.
func (s LoanStatus) CanTransitionTo(target LoanStatus) bool {
	return loanTransitions[s][target]
}

func (s LoanStatus) Priority() int {
	return loanStatusPriority[s]
}

// ParseLoanStatus accepts any letter case and rejects unknown names.
func ParseLoanStatus(raw string) (LoanStatus, error) {
	s := LoanStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", Validationf("unknown loan status %q", raw)
	}
	return s, nil
}
