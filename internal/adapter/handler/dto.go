package handler

import (
	"time"

	"github.com/rl1809/library-lending/internal/core/domain"
)

type CreateLoanRequest struct {
	RequestID  string `json:"request_id" validate:"omitempty,max=128"`
	BorrowerID string `json:"borrower_id" validate:"required,max=64"`
	TitleID    string `json:"title_id" validate:"required,max=64"`
}

type LoanIDRequest struct {
	LoanID string `json:"loan_id" validate:"required,max=64"`
}

type MarkDamagedRequest struct {
	LoanID      string `json:"loan_id" validate:"required,max=64"`
	Description string `json:"description" validate:"required,max=1000"`
}

type CancelLoanRequest struct {
	LoanID string `json:"loan_id" validate:"required,max=64"`
	Reason string `json:"reason" validate:"required,max=1000"`
}

type AddTitleRequest struct {
	ID          string `json:"id" validate:"required,max=64"`
	Name        string `json:"name" validate:"max=255"`
	TotalCopies int    `json:"total_copies" validate:"gte=0"`
	Price       string `json:"price" validate:"omitempty,numeric"`
}

type ResizeInventoryRequest struct {
	TitleID     string `json:"title_id" validate:"required,max=64"`
	TotalCopies int    `json:"total_copies" validate:"gte=0"`
}

type BorrowerRequest struct {
	BorrowerID string `json:"borrower_id" validate:"required,max=64"`
}

type DueSoonRequest struct {
	Days int `json:"days" validate:"gte=1"`
}

type Empty struct{}

type LoanResponse struct {
	ID         string     `json:"id"`
	BorrowerID string     `json:"borrower_id"`
	TitleID    string     `json:"title_id"`
	LoanDate   string     `json:"loan_date"`
	DueDate    string     `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Status     string     `json:"status"`
	Renewals   int        `json:"renewals"`
	FineAmount string     `json:"fine_amount"`
	FinePaid   bool       `json:"fine_paid"`
	Notes      string     `json:"notes,omitempty"`
}

type LoanListResponse struct {
	Loans []LoanResponse `json:"loans"`
}

type TitleResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Price           string `json:"price,omitempty"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	Active          bool   `json:"active"`
	LoanCount       int    `json:"loan_count"`
}

type EligibilityResponse struct {
	BorrowerID string `json:"borrower_id"`
	CanBorrow  bool   `json:"can_borrow"`
}

type TotalResponse struct {
	Total string `json:"total"`
}

type StatusCountsResponse struct {
	Counts map[string]int `json:"counts"`
}

type OverdueEntryResponse struct {
	Loan          LoanResponse `json:"loan"`
	DaysOverdue   int          `json:"days_overdue"`
	EstimatedFine string       `json:"estimated_fine"`
}

type OverdueReportResponse struct {
	AsOf           string                 `json:"as_of"`
	Entries        []OverdueEntryResponse `json:"entries"`
	TotalEstimated string                 `json:"total_estimated"`
}

type SweepResponse struct {
	Transitioned int `json:"transitioned"`
}

func toLoanResponse(l domain.Loan) LoanResponse {
	return LoanResponse{
		ID:         l.ID,
		BorrowerID: l.BorrowerID,
		TitleID:    l.TitleID,
		LoanDate:   l.LoanDate.Format(time.DateOnly),
		DueDate:    l.DueDate.Format(time.DateOnly),
		ReturnedAt: l.ReturnedAt,
		Status:     string(l.Status),
		Renewals:   l.Renewals,
		FineAmount: l.FineAmount.StringFixed(2),
		FinePaid:   l.FinePaid,
		Notes:      l.Notes,
	}
}

func toLoanList(loans []domain.Loan) LoanListResponse {
	out := LoanListResponse{Loans: make([]LoanResponse, 0, len(loans))}
	for _, l := range loans {
		out.Loans = append(out.Loans, toLoanResponse(l))
	}
	return out
}

func toTitleResponse(t domain.Title) TitleResponse {
	resp := TitleResponse{
		ID:              t.ID,
		Name:            t.Name,
		TotalCopies:     t.TotalCopies,
		AvailableCopies: t.AvailableCopies,
		Active:          t.Active,
		LoanCount:       t.LoanCount,
	}
	if t.Price.Valid {
		resp.Price = t.Price.Decimal.StringFixed(2)
	}
	return resp
}

func toStatusCounts(stats map[domain.LoanStatus]int) StatusCountsResponse {
	counts := make(map[string]int, len(stats))
	for s, n := range stats {
		counts[string(s)] = n
	}
	return StatusCountsResponse{Counts: counts}
}

func toOverdueReport(r domain.OverdueReport) OverdueReportResponse {
	resp := OverdueReportResponse{
		AsOf:           r.AsOf.Format(time.DateOnly),
		Entries:        make([]OverdueEntryResponse, 0, len(r.Entries)),
		TotalEstimated: r.TotalEstimated.StringFixed(2),
	}
	for _, e := range r.Entries {
		resp.Entries = append(resp.Entries, OverdueEntryResponse{
			Loan:          toLoanResponse(e.Loan),
			DaysOverdue:   e.DaysOverdue,
			EstimatedFine: e.EstimatedFine.StringFixed(2),
		})
	}
	return resp
}
