package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/rl1809/library-lending/internal/core/domain"
	"github.com/rl1809/library-lending/internal/core/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type HTTPHandler struct {
	loanService *service.LoanService
	validate    *validator.Validate
	logger      *slog.Logger
	checks      []readinessCheck
}

type readinessCheck struct {
	name  string
	check func(context.Context) error
}

type HTTPOption func(*HTTPHandler)

// WithReadinessCheck registers a dependency that /ready pings, such as a database or Redis.
func WithReadinessCheck(name string, check func(context.Context) error) HTTPOption {
	return func(h *HTTPHandler) {
		h.checks = append(h.checks, readinessCheck{name: name, check: check})
	}
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHTTPHandler(loanService *service.LoanService, logger *slog.Logger, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		loanService: loanService,
		validate:    validator.New(),
		logger:      logger.With("module", "lending", "layer", "http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/titles", func(r chi.Router) {
			r.Post("/", h.AddTitle)
			r.Get("/{titleID}", h.GetTitle)
			r.Put("/{titleID}/copies", h.ResizeInventory)
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoan)
			r.Get("/", h.ListLoans)
			r.Get("/overdue", h.FindOverdueLoans)
			r.Get("/due-soon", h.FindLoansDueSoon)
			r.Get("/due-today", h.FindLoansDueToday)
			r.Get("/unpaid-fines", h.FindLoansWithUnpaidFines)
			r.Get("/{loanID}", h.GetLoan)
			r.Post("/{loanID}/renew", h.RenewLoan)
			r.Post("/{loanID}/return", h.ProcessReturn)
			r.Post("/{loanID}/lost", h.MarkLost)
			r.Post("/{loanID}/damaged", h.MarkDamaged)
			r.Post("/{loanID}/cancel", h.CancelLoan)
			r.Post("/{loanID}/fine/pay", h.PayFine)
		})

		r.Get("/borrowers/{borrowerID}/loans", h.FindActiveLoansForBorrower)
		r.Get("/borrowers/{borrowerID}/eligibility", h.CanBorrow)

		r.Get("/reports/unpaid-fines/total", h.TotalUnpaidFines)
		r.Get("/reports/status-counts", h.LoanStatsByStatus)
		r.Get("/reports/overdue", h.OverdueReport)

		r.Post("/maintenance/overdue", h.UpdateOverdueLoans)
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyCheck pings every registered dependency and reports 503 if any is down.
func (h *HTTPHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]string{"status": "ready"}
	code := http.StatusOK
	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "dependency", c.name, "error", err)
			resp[c.name] = "unavailable"
			resp["status"] = "not_ready"
			code = http.StatusServiceUnavailable
			continue
		}
		resp[c.name] = "ok"
	}
	writeJSON(w, code, resp)
}

func (h *HTTPHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	ctx := r.Context()
	if req.RequestID != "" {
		ctx = service.WithRequestID(ctx, req.RequestID)
	}
	loan, err := h.loanService.CreateLoan(ctx, req.BorrowerID, req.TitleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanResponse(loan))
}

func (h *HTTPHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loanService.GetLoan(r.Context(), chi.URLParam(r, "loanID"))
	h.respondLoan(w, r, loan, err)
}

func (h *HTTPHandler) RenewLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loanService.RenewLoan(r.Context(), chi.URLParam(r, "loanID"))
	h.respondLoan(w, r, loan, err)
}

func (h *HTTPHandler) ProcessReturn(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loanService.ProcessReturn(r.Context(), chi.URLParam(r, "loanID"))
	h.respondLoan(w, r, loan, err)
}

func (h *HTTPHandler) MarkLost(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loanService.MarkLost(r.Context(), chi.URLParam(r, "loanID"))
	h.respondLoan(w, r, loan, err)
}

func (h *HTTPHandler) MarkDamaged(w http.ResponseWriter, r *http.Request) {
	var req MarkDamagedRequest
	if !h.decode(w, r, &req, func() { req.LoanID = chi.URLParam(r, "loanID") }) {
		return
	}
	loan, err := h.loanService.MarkDamaged(r.Context(), req.LoanID, req.Description)
	h.respondLoan(w, r, loan, err)
}

func (h *HTTPHandler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	var req CancelLoanRequest
	if !h.decode(w, r, &req, func() { req.LoanID = chi.URLParam(r, "loanID") }) {
		return
	}
	loan, err := h.loanService.CancelLoan(r.Context(), req.LoanID, req.Reason)
	h.respondLoan(w, r, loan, err)
}

func (h *HTTPHandler) PayFine(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loanService.PayFine(r.Context(), chi.URLParam(r, "loanID"))
	h.respondLoan(w, r, loan, err)
}

// ListLoans filters by ?status=OVERDUE,RENEWED. Every status is listed when the filter is absent.
func (h *HTTPHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.LoanStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := domain.ParseLoanStatus(part)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			statuses = append(statuses, st)
		}
	}
	loans, err := h.loanService.FindLoansByStatus(r.Context(), statuses...)
	h.respondLoans(w, r, loans, err)
}

func (h *HTTPHandler) FindOverdueLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loanService.FindOverdueLoans(r.Context())
	h.respondLoans(w, r, loans, err)
}

func (h *HTTPHandler) FindLoansDueSoon(w http.ResponseWriter, r *http.Request) {
	days := 3
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, domain.Validationf("days must be an integer"))
			return
		}
		days = n
	}
	loans, err := h.loanService.FindLoansDueSoon(r.Context(), days)
	h.respondLoans(w, r, loans, err)
}

func (h *HTTPHandler) FindLoansDueToday(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loanService.FindLoansDueToday(r.Context())
	h.respondLoans(w, r, loans, err)
}

func (h *HTTPHandler) FindLoansWithUnpaidFines(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loanService.FindLoansWithUnpaidFines(r.Context())
	h.respondLoans(w, r, loans, err)
}

func (h *HTTPHandler) FindActiveLoansForBorrower(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loanService.FindActiveLoansForBorrower(r.Context(), chi.URLParam(r, "borrowerID"))
	h.respondLoans(w, r, loans, err)
}

func (h *HTTPHandler) CanBorrow(w http.ResponseWriter, r *http.Request) {
	borrowerID := chi.URLParam(r, "borrowerID")
	ok, err := h.loanService.CanBorrow(r.Context(), borrowerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EligibilityResponse{BorrowerID: borrowerID, CanBorrow: ok})
}

func (h *HTTPHandler) TotalUnpaidFines(w http.ResponseWriter, r *http.Request) {
	total, err := h.loanService.CalculateTotalUnpaidFines(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TotalResponse{Total: total.StringFixed(2)})
}

func (h *HTTPHandler) LoanStatsByStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.loanService.LoanStatsByStatus(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusCounts(stats))
}

func (h *HTTPHandler) OverdueReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.loanService.OverdueReport(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverdueReport(report))
}

func (h *HTTPHandler) UpdateOverdueLoans(w http.ResponseWriter, r *http.Request) {
	n, err := h.loanService.UpdateOverdueLoans(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Transitioned: n})
}

func (h *HTTPHandler) AddTitle(w http.ResponseWriter, r *http.Request) {
	var req AddTitleRequest
	if !h.decode(w, r, &req) {
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	title, err := h.loanService.AddTitle(r.Context(), req.ID, req.Name, req.TotalCopies, price)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTitleResponse(title))
}

func (h *HTTPHandler) GetTitle(w http.ResponseWriter, r *http.Request) {
	title, err := h.loanService.GetTitle(r.Context(), chi.URLParam(r, "titleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTitleResponse(title))
}

func (h *HTTPHandler) ResizeInventory(w http.ResponseWriter, r *http.Request) {
	var req ResizeInventoryRequest
	if !h.decode(w, r, &req, func() { req.TitleID = chi.URLParam(r, "titleID") }) {
		return
	}
	title, err := h.loanService.ResizeInventory(r.Context(), req.TitleID, req.TotalCopies)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTitleResponse(title))
}

func parsePrice(raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, domain.Validationf("price %q is not a number", raw)
	}
	return decimal.NewNullDecimal(d), nil
}

// decode reads the JSON body into dst and validates it. The bind funcs run after
// the body is read, so path parameters they set always win over body fields.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any, bind ...func()) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Code:    domain.KindValidation,
				Message: "invalid request body",
			})
			return false
		}
	}
	for _, b := range bind {
		b()
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func (h *HTTPHandler) respondLoan(w http.ResponseWriter, r *http.Request, loan domain.Loan, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

func (h *HTTPHandler) respondLoans(w http.ResponseWriter, r *http.Request, loans []domain.Loan, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanList(loans))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := errorCode(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
