package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/rl1809/library-lending/internal/core/domain"
)

const (
	EventLoanCreated  = "loan.created"
	EventLoanRenewed  = "loan.renewed"
	EventLoanReturned = "loan.returned"
	EventLoanLost     = "loan.lost"
	EventLoanDamaged  = "loan.damaged"
	EventLoanCanceled = "loan.cancelled"
	EventLoanOverdue  = "loan.overdue"
	EventFinePaid     = "loan.fine_paid"
)

var eventJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// LoanEvent is the payload published for every loan mutation.
type LoanEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	LoanID     string    `json:"loan_id"`
	BorrowerID string    `json:"borrower_id"`
	TitleID    string    `json:"title_id"`
	Status     string    `json:"status"`
	DueDate    string    `json:"due_date"`
	Renewals   int       `json:"renewals"`
	FineAmount string    `json:"fine_amount"`
	FinePaid   bool      `json:"fine_paid"`
}

func newLoanEvent(eventType string, loan domain.Loan, now time.Time) LoanEvent {
	return LoanEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: now.UTC(),
		LoanID:     loan.ID,
		BorrowerID: loan.BorrowerID,
		TitleID:    loan.TitleID,
		Status:     string(loan.Status),
		DueDate:    loan.DueDate.Format(time.DateOnly),
		Renewals:   loan.Renewals,
		FineAmount: loan.FineAmount.StringFixed(2),
		FinePaid:   loan.FinePaid,
	}
}

// publish is best effort: the loan is already persisted, so a broker failure is only logged.
func (s *LoanService) publish(ctx context.Context, eventType string, loan domain.Loan) {
	if s.events == nil {
		return
	}
	payload, err := eventJSON.Marshal(newLoanEvent(eventType, loan, s.nowFn()))
	if err != nil {
		s.logger.WarnContext(ctx, "encode loan event failed",
			"operation", "publish",
			"outcome", "failure",
			"event_type", eventType,
			"loan_id", loan.ID,
			"error", err,
		)
		return
	}
	if err := s.events.Publish(ctx, eventType, loan.ID, payload); err != nil {
		s.logger.WarnContext(ctx, "publish loan event failed",
			"operation", "publish",
			"outcome", "failure",
			"event_type", eventType,
			"loan_id", loan.ID,
			"error", err,
		)
	}
}
