package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the lending core wraps exactly one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrPolicyViolation = errors.New("policy violation")
	ErrValidation      = errors.New("validation error")
)

var (
	ErrBorrowerNotFound = fmt.Errorf("%w: borrower", ErrNotFound)
	ErrTitleNotFound    = fmt.Errorf("%w: title", ErrNotFound)
	ErrLoanNotFound     = fmt.Errorf("%w: loan", ErrNotFound)

	ErrTransitionNotAllowed = fmt.Errorf("%w: status transition not allowed", ErrInvalidState)
	ErrLoanClosed           = fmt.Errorf("%w: loan is no longer open", ErrInvalidState)
	ErrNotRenewable         = fmt.Errorf("%w: loan status does not allow renewal", ErrInvalidState)
	ErrNoFineDue            = fmt.Errorf("%w: loan has no unpaid fine", ErrInvalidState)
	ErrTitleExists          = fmt.Errorf("%w: title already exists", ErrInvalidState)
	ErrConcurrentUpdate     = fmt.Errorf("%w: loan was modified concurrently", ErrInvalidState)

	ErrBorrowerInactive    = fmt.Errorf("%w: borrower is not active", ErrPolicyViolation)
	ErrTitleNotLoanable    = fmt.Errorf("%w: title is not available for loan", ErrPolicyViolation)
	ErrNoCopiesAvailable   = fmt.Errorf("%w: no copies available", ErrPolicyViolation)
	ErrLoanLimitReached    = fmt.Errorf("%w: borrower has reached the loan limit", ErrPolicyViolation)
	ErrUnpaidFines         = fmt.Errorf("%w: borrower has unpaid fines", ErrPolicyViolation)
	ErrDuplicateTitleLoan  = fmt.Errorf("%w: borrower already holds this title", ErrPolicyViolation)
	ErrRenewalLimitReached = fmt.Errorf("%w: renewal limit reached", ErrPolicyViolation)
	ErrLoanOverdue         = fmt.Errorf("%w: loan is overdue", ErrPolicyViolation)
	ErrFineNotPaid         = fmt.Errorf("%w: loan fine is not paid", ErrPolicyViolation)
	ErrShrinkBelowLoaned   = fmt.Errorf("%w: cannot shrink inventory below loaned copies", ErrPolicyViolation)
	ErrAllCopiesAvailable  = fmt.Errorf("%w: all copies are already available", ErrPolicyViolation)
)

// Kind names as exposed by the transports.
const (
	KindNotFound        = "not_found"
	KindInvalidState    = "invalid_state"
	KindPolicyViolation = "policy_violation"
	KindValidation      = "validation_error"
	KindInternal        = "internal"
)

// KindOf classifies err into one of the error kinds, or KindInternal.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrPolicyViolation):
		return KindPolicyViolation
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

// Validationf builds a ValidationError with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
