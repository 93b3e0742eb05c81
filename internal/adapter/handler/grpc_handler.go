package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"

	"github.com/rl1809/library-lending/internal/core/domain"
	"github.com/rl1809/library-lending/internal/core/service"
)

const ServiceName = "lending.v1.LendingService"

// LendingServer is the gRPC surface of the loan service. Messages travel as JSON.
type LendingServer interface {
	CreateLoan(context.Context, *CreateLoanRequest) (*LoanResponse, error)
	GetLoan(context.Context, *LoanIDRequest) (*LoanResponse, error)
	RenewLoan(context.Context, *LoanIDRequest) (*LoanResponse, error)
	ProcessReturn(context.Context, *LoanIDRequest) (*LoanResponse, error)
	MarkLost(context.Context, *LoanIDRequest) (*LoanResponse, error)
	MarkDamaged(context.Context, *MarkDamagedRequest) (*LoanResponse, error)
	CancelLoan(context.Context, *CancelLoanRequest) (*LoanResponse, error)
	PayFine(context.Context, *LoanIDRequest) (*LoanResponse, error)
	FindActiveLoansForBorrower(context.Context, *BorrowerRequest) (*LoanListResponse, error)
	CanBorrow(context.Context, *BorrowerRequest) (*EligibilityResponse, error)
	FindOverdueLoans(context.Context, *Empty) (*LoanListResponse, error)
	FindLoansDueSoon(context.Context, *DueSoonRequest) (*LoanListResponse, error)
	UpdateOverdueLoans(context.Context, *Empty) (*SweepResponse, error)
	AddTitle(context.Context, *AddTitleRequest) (*TitleResponse, error)
	ResizeInventory(context.Context, *ResizeInventoryRequest) (*TitleResponse, error)
}

type GRPCHandler struct {
	loanService *service.LoanService
	validate    *validator.Validate
}

func NewGRPCHandler(loanService *service.LoanService) *GRPCHandler {
	return &GRPCHandler{loanService: loanService, validate: validator.New()}
}

// Register attaches the handler to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&lendingServiceDesc, h)
}

func (h *GRPCHandler) CreateLoan(ctx context.Context, req *CreateLoanRequest) (*LoanResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, grpcError(err)
	}
	if req.RequestID != "" {
		ctx = service.WithRequestID(ctx, req.RequestID)
	}
	loan, err := h.loanService.CreateLoan(ctx, req.BorrowerID, req.TitleID)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLoanResponse(loan)
	return &resp, nil
}

func (h *GRPCHandler) GetLoan(ctx context.Context, req *LoanIDRequest) (*LoanResponse, error) {
	return h.loanCall(ctx, req, h.loanService.GetLoan)
}

func (h *GRPCHandler) RenewLoan(ctx context.Context, req *LoanIDRequest) (*LoanResponse, error) {
	return h.loanCall(ctx, req, h.loanService.RenewLoan)
}

func (h *GRPCHandler) ProcessReturn(ctx context.Context, req *LoanIDRequest) (*LoanResponse, error) {
	return h.loanCall(ctx, req, h.loanService.ProcessReturn)
}

func (h *GRPCHandler) MarkLost(ctx context.Context, req *LoanIDRequest) (*LoanResponse, error) {
	return h.loanCall(ctx, req, h.loanService.MarkLost)
}

func (h *GRPCHandler) PayFine(ctx context.Context, req *LoanIDRequest) (*LoanResponse, error) {
	return h.loanCall(ctx, req, h.loanService.PayFine)
}

func (h *GRPCHandler) MarkDamaged(ctx context.Context, req *MarkDamagedRequest) (*LoanResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, grpcError(err)
	}
	loan, err := h.loanService.MarkDamaged(ctx, req.LoanID, req.Description)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLoanResponse(loan)
	return &resp, nil
}

func (h *GRPCHandler) CancelLoan(ctx context.Context, req *CancelLoanRequest) (*LoanResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, grpcError(err)
	}
	loan, err := h.loanService.CancelLoan(ctx, req.LoanID, req.Reason)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLoanResponse(loan)
	return &resp, nil
}

func (h *GRPCHandler) FindActiveLoansForBorrower(ctx context.Context, req *BorrowerRequest) (*LoanListResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, grpcError(err)
	}
	loans, err := h.loanService.FindActiveLoansForBorrower(ctx, req.BorrowerID)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLoanList(loans)
	return &resp, nil
}

func (h *GRPCHandler) CanBorrow(ctx context.Context, req *BorrowerRequest) (*EligibilityResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, grpcError(err)
	}
	ok, err := h.loanService.CanBorrow(ctx, req.BorrowerID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &EligibilityResponse{BorrowerID: req.BorrowerID, CanBorrow: ok}, nil
}

func (h *GRPCHandler) FindOverdueLoans(ctx context.Context, _ *Empty) (*LoanListResponse, error) {
	loans, err := h.loanService.FindOverdueLoans(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLoanList(loans)
	return &resp, nil
}

func (h *GRPCHandler) FindLoansDueSoon(ctx context.Context, req *DueSoonRequest) (*LoanListResponse, error) {
	loans, err := h.loanService.FindLoansDueSoon(ctx, req.Days)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLoanList(loans)
	return &resp, nil
}

func (h *GRPCHandler) UpdateOverdueLoans(ctx context.Context, _ *Empty) (*SweepResponse, error) {
	n, err := h.loanService.UpdateOverdueLoans(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &SweepResponse{Transitioned: n}, nil
}

func (h *GRPCHandler) AddTitle(ctx context.Context, req *AddTitleRequest) (*TitleResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, grpcError(err)
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, grpcError(err)
	}
	title, err := h.loanService.AddTitle(ctx, req.ID, req.Name, req.TotalCopies, price)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toTitleResponse(title)
	return &resp, nil
}

func (h *GRPCHandler) ResizeInventory(ctx context.Context, req *ResizeInventoryRequest) (*TitleResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, grpcError(err)
	}
	title, err := h.loanService.ResizeInventory(ctx, req.TitleID, req.TotalCopies)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toTitleResponse(title)
	return &resp, nil
}

func (h *GRPCHandler) loanCall(ctx context.Context, req *LoanIDRequest, call func(context.Context, string) (domain.Loan, error)) (*LoanResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, grpcError(err)
	}
	loan, err := call(ctx, req.LoanID)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLoanResponse(loan)
	return &resp, nil
}
