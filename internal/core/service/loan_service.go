package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/library-lending/internal/core/domain"
	"github.com/rl1809/library-lending/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

// LoanService is the policy engine: it decides whether a loan operation is allowed
// and applies it across the catalog and the loan repository.
type LoanService struct {
	catalog     port.Catalog
	identity    port.IdentityProvider
	loans       port.LoanRepository
	locker      port.Locker
	idempotency port.IdempotencyStore
	events      port.EventPublisher
	policy      domain.Policy
	nowFn       func() time.Time
	newID       func() string
	logger      *slog.Logger
}

type Option func(*LoanService)

func WithPolicy(p domain.Policy) Option {
	return func(s *LoanService) { s.policy = p }
}

// WithClock overrides the time source. Tests pin it to a fixed day.
func WithClock(nowFn func() time.Time) Option {
	return func(s *LoanService) { s.nowFn = nowFn }
}

func WithLocker(l port.Locker) Option {
	return func(s *LoanService) { s.locker = l }
}

func WithIdempotency(store port.IdempotencyStore) Option {
	return func(s *LoanService) { s.idempotency = store }
}

func WithEventPublisher(p port.EventPublisher) Option {
	return func(s *LoanService) { s.events = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *LoanService) { s.logger = logger }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *LoanService) { s.newID = fn }
}

func NewLoanService(catalog port.Catalog, identity port.IdentityProvider, loans port.LoanRepository, opts ...Option) (*LoanService, error) {
	if catalog == nil || identity == nil || loans == nil {
		return nil, errors.New("loan service: catalog, identity provider and loan repository are required")
	}
	s := &LoanService{
		catalog:  catalog,
		identity: identity,
		loans:    loans,
		policy:   domain.DefaultPolicy(),
		nowFn:    time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if err := s.policy.Validate(); err != nil {
		return nil, fmt.Errorf("loan service: %w", err)
	}
	s.logger = s.logger.With("module", "lending", "layer", "service")
	return s, nil
}

func (s *LoanService) Policy() domain.Policy {
	return s.policy
}

type requestIDKey struct{}

// WithRequestID tags ctx with a client request id. CreateLoan rejects a second
// call carrying the same id with ErrDuplicateRequest.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *LoanService) checkIdempotency(ctx context.Context) error {
	requestID := requestIDFrom(ctx)
	if requestID == "" || s.idempotency == nil {
		return nil
	}
	ok, err := s.idempotency.SetIdempotency(ctx, "loan:create:"+requestID)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return ErrDuplicateRequest
	}
	return nil
}

// CreateLoan opens a loan after every eligibility rule passes. The copy is reserved
// before the loan is written; if the write fails the reservation is given back.
func (s *LoanService) CreateLoan(ctx context.Context, borrowerID, titleID string) (domain.Loan, error) {
	borrowerID = strings.TrimSpace(borrowerID)
	titleID = strings.TrimSpace(titleID)
	if borrowerID == "" {
		return domain.Loan{}, domain.Validationf("borrower id is required")
	}
	if titleID == "" {
		return domain.Loan{}, domain.Validationf("title id is required")
	}
	if err := s.checkIdempotency(ctx); err != nil {
		return domain.Loan{}, err
	}

	unlock, err := s.locker.Lock(ctx, borrowerLockKey(borrowerID))
	if err != nil {
		return domain.Loan{}, fmt.Errorf("lock borrower %s: %w", borrowerID, err)
	}
	defer unlock()

	if err := s.checkEligibility(ctx, borrowerID, titleID); err != nil {
		s.logger.InfoContext(ctx, "loan refused",
			"operation", "create_loan",
			"outcome", "rejected",
			"borrower_id", borrowerID,
			"title_id", titleID,
			"error", err,
		)
		return domain.Loan{}, err
	}

	if err := s.catalog.Reserve(ctx, titleID); err != nil {
		return domain.Loan{}, fmt.Errorf("reserve copy: %w", err)
	}

	loan := domain.NewLoan(s.newID(), borrowerID, titleID, s.nowFn(), s.policy)
	if err := s.loans.CreateLoan(ctx, loan); err != nil {
		persistErr := fmt.Errorf("persist loan: %w", err)
		if relErr := s.releaseCopy(ctx, "create_loan", loan); relErr != nil {
			return domain.Loan{}, errors.Join(persistErr, relErr)
		}
		s.logger.WarnContext(ctx, "reservation rolled back",
			"operation", "create_loan",
			"outcome", "compensated",
			"title_id", titleID,
			"error", err,
		)
		return domain.Loan{}, persistErr
	}

	if err := s.catalog.IncrementLoanCount(ctx, titleID); err != nil {
		s.logger.WarnContext(ctx, "loan counter not updated",
			"operation", "create_loan",
			"title_id", titleID,
			"error", err,
		)
	}

	s.logger.InfoContext(ctx, "loan created",
		"operation", "create_loan",
		"outcome", "success",
		"loan_id", loan.ID,
		"borrower_id", borrowerID,
		"title_id", titleID,
		"due_date", loan.DueDate.Format(time.DateOnly),
	)
	s.publish(ctx, EventLoanCreated, loan)
	return loan, nil
}

func (s *LoanService) checkEligibility(ctx context.Context, borrowerID, titleID string) error {
	borrower, err := s.identity.LookupBorrower(ctx, borrowerID)
	if err != nil {
		return err
	}
	if !borrower.Active {
		return domain.ErrBorrowerInactive
	}

	title, err := s.catalog.GetTitle(ctx, titleID)
	if err != nil {
		return err
	}
	if !title.Active {
		return domain.ErrTitleNotLoanable
	}
	if !title.IsLoanable() {
		return domain.ErrNoCopiesAvailable
	}

	open, err := s.loans.ListOpenByBorrower(ctx, borrowerID)
	if err != nil {
		return fmt.Errorf("list open loans: %w", err)
	}
	if len(open) >= s.policy.MaxLoansPerBorrower {
		return domain.ErrLoanLimitReached
	}

	if borrower.HasUnpaidFine {
		return domain.ErrUnpaidFines
	}
	unpaid, err := s.loans.HasUnpaidFines(ctx, borrowerID)
	if err != nil {
		return fmt.Errorf("check unpaid fines: %w", err)
	}
	if unpaid {
		return domain.ErrUnpaidFines
	}

	for _, l := range open {
		if l.TitleID == titleID {
			return domain.ErrDuplicateTitleLoan
		}
	}
	return nil
}

// CanBorrow reports whether the borrower passes the borrower-side rules.
// It does not look at any particular title.
func (s *LoanService) CanBorrow(ctx context.Context, borrowerID string) (bool, error) {
	borrower, err := s.identity.LookupBorrower(ctx, borrowerID)
	if err != nil {
		return false, err
	}
	if !borrower.Active || borrower.HasUnpaidFine {
		return false, nil
	}
	open, err := s.loans.ListOpenByBorrower(ctx, borrowerID)
	if err != nil {
		return false, fmt.Errorf("list open loans: %w", err)
	}
	if len(open) >= s.policy.MaxLoansPerBorrower {
		return false, nil
	}
	unpaid, err := s.loans.HasUnpaidFines(ctx, borrowerID)
	if err != nil {
		return false, fmt.Errorf("check unpaid fines: %w", err)
	}
	return !unpaid, nil
}

func (s *LoanService) RenewLoan(ctx context.Context, loanID string) (domain.Loan, error) {
	loan, err := s.mutateLoan(ctx, loanID, "renew_loan", false, func(l *domain.Loan, now time.Time) error {
		return l.Renew(now, s.policy)
	})
	if err != nil {
		return domain.Loan{}, err
	}
	s.publish(ctx, EventLoanRenewed, loan)
	return loan, nil
}

// ProcessReturn closes the loan, computing the late fee if any, and gives the copy back.
func (s *LoanService) ProcessReturn(ctx context.Context, loanID string) (domain.Loan, error) {
	loan, err := s.mutateLoan(ctx, loanID, "process_return", true, func(l *domain.Loan, now time.Time) error {
		return l.Return(now, s.policy)
	})
	if err != nil {
		return loan, err
	}
	s.publish(ctx, EventLoanReturned, loan)
	return loan, nil
}

// MarkLost closes the loan with the title price as fine. The copy is not returned to stock.
func (s *LoanService) MarkLost(ctx context.Context, loanID string) (domain.Loan, error) {
	loan, err := s.mutateLoan(ctx, loanID, "mark_lost", false, func(l *domain.Loan, now time.Time) error {
		price, err := s.titlePrice(ctx, l.TitleID)
		if err != nil {
			return err
		}
		return l.MarkLost(now, price, s.policy)
	})
	if err != nil {
		return domain.Loan{}, err
	}
	s.publish(ctx, EventLoanLost, loan)
	return loan, nil
}

// MarkDamaged closes the loan with the damage fee. The damaged copy goes back to the shelf count.
func (s *LoanService) MarkDamaged(ctx context.Context, loanID, description string) (domain.Loan, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.Loan{}, domain.Validationf("damage description is required")
	}
	loan, err := s.mutateLoan(ctx, loanID, "mark_damaged", true, func(l *domain.Loan, now time.Time) error {
		price, err := s.titlePrice(ctx, l.TitleID)
		if err != nil {
			return err
		}
		return l.MarkDamaged(now, price, description, s.policy)
	})
	if err != nil {
		return loan, err
	}
	s.publish(ctx, EventLoanDamaged, loan)
	return loan, nil
}

func (s *LoanService) CancelLoan(ctx context.Context, loanID, reason string) (domain.Loan, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Loan{}, domain.Validationf("cancellation reason is required")
	}
	loan, err := s.mutateLoan(ctx, loanID, "cancel_loan", true, func(l *domain.Loan, now time.Time) error {
		return l.Cancel(now, reason)
	})
	if err != nil {
		return loan, err
	}
	s.publish(ctx, EventLoanCanceled, loan)
	return loan, nil
}

func (s *LoanService) PayFine(ctx context.Context, loanID string) (domain.Loan, error) {
	loan, err := s.mutateLoan(ctx, loanID, "pay_fine", false, func(l *domain.Loan, now time.Time) error {
		return l.PayFine(now)
	})
	if err != nil {
		return domain.Loan{}, err
	}
	s.publish(ctx, EventFinePaid, loan)
	return loan, nil
}

func (s *LoanService) titlePrice(ctx context.Context, titleID string) (decimal.NullDecimal, error) {
	title, err := s.catalog.GetTitle(ctx, titleID)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("load title price: %w", err)
	}
	return title.Price, nil
}

// mutateLoan runs apply on the current loan under the per-loan lock and persists it.
// When releases is set the copy is handed back after the loan is written. A failed
// release is returned together with the persisted loan.
func (s *LoanService) mutateLoan(ctx context.Context, loanID, operation string, releases bool, apply func(*domain.Loan, time.Time) error) (domain.Loan, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return domain.Loan{}, domain.Validationf("loan id is required")
	}

	unlock, err := s.locker.Lock(ctx, loanLockKey(loanID))
	if err != nil {
		return domain.Loan{}, fmt.Errorf("lock loan %s: %w", loanID, err)
	}
	defer unlock()

	loan, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return domain.Loan{}, err
	}
	from := loan.Status
	if err := apply(&loan, s.nowFn()); err != nil {
		s.logger.InfoContext(ctx, "loan operation refused",
			"operation", operation,
			"outcome", "rejected",
			"loan_id", loanID,
			"status", from,
			"error", err,
		)
		return domain.Loan{}, err
	}

	updated, err := s.loans.UpdateLoan(ctx, loan)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("update loan: %w", err)
	}

	s.logger.InfoContext(ctx, "loan updated",
		"operation", operation,
		"outcome", "success",
		"loan_id", loanID,
		"from_status", from,
		"to_status", updated.Status,
		"fine_amount", updated.FineAmount.StringFixed(2),
	)

	if releases {
		if err := s.releaseCopy(ctx, operation, updated); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// releaseCopy survives caller cancellation since the loan side is already committed.
func (s *LoanService) releaseCopy(ctx context.Context, operation string, loan domain.Loan) error {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.catalog.Release(relCtx, loan.TitleID); err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL inventory drift: release failed",
			"operation", operation,
			"outcome", "failure",
			"loan_id", loan.ID,
			"title_id", loan.TitleID,
			"error", err,
		)
		return fmt.Errorf("release copy: %w", err)
	}
	return nil
}
