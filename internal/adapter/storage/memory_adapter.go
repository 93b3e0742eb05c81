package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/library-lending/internal/core/domain"
)

// MemoryStore keeps titles, borrowers and loans in process memory. One mutex guards
// all three maps so a reserve and a loan insert never observe each other half done.
type MemoryStore struct {
	mu        sync.RWMutex
	titles    map[string]domain.Title
	borrowers map[string]domain.Borrower
	loans     map[string]domain.Loan
	nowFn     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		titles:    make(map[string]domain.Title),
		borrowers: make(map[string]domain.Borrower),
		loans:     make(map[string]domain.Loan),
		nowFn:     time.Now,
	}
}

func (m *MemoryStore) CreateTitle(ctx context.Context, title domain.Title) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.titles[title.ID]; ok {
		return domain.ErrTitleExists
	}
	m.titles[title.ID] = title
	return nil
}

func (m *MemoryStore) GetTitle(ctx context.Context, titleID string) (domain.Title, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.titles[titleID]
	if !ok {
		return domain.Title{}, domain.ErrTitleNotFound
	}
	return t, nil
}

func (m *MemoryStore) Reserve(ctx context.Context, titleID string) error {
	return m.updateTitle(titleID, (*domain.Title).Reserve)
}

func (m *MemoryStore) Release(ctx context.Context, titleID string) error {
	return m.updateTitle(titleID, (*domain.Title).Release)
}

func (m *MemoryStore) Resize(ctx context.Context, titleID string, newTotal int) (domain.Title, error) {
	var resized domain.Title
	err := m.updateTitle(titleID, func(t *domain.Title) error {
		if err := t.Resize(newTotal); err != nil {
			return err
		}
		resized = *t
		return nil
	})
	return resized, err
}

func (m *MemoryStore) IncrementLoanCount(ctx context.Context, titleID string) error {
	return m.updateTitle(titleID, func(t *domain.Title) error {
		t.LoanCount++
		return nil
	})
}

func (m *MemoryStore) updateTitle(titleID string, fn func(*domain.Title) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.titles[titleID]
	if !ok {
		return domain.ErrTitleNotFound
	}
	if err := fn(&t); err != nil {
		return err
	}
	t.UpdatedAt = m.nowFn()
	m.titles[titleID] = t
	return nil
}

// SaveBorrower registers or replaces a member record.
func (m *MemoryStore) SaveBorrower(ctx context.Context, borrower domain.Borrower) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.borrowers[borrower.ID] = borrower
	return nil
}

func (m *MemoryStore) LookupBorrower(ctx context.Context, borrowerID string) (domain.Borrower, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.borrowers[borrowerID]
	if !ok {
		return domain.Borrower{}, domain.ErrBorrowerNotFound
	}
	b.HasUnpaidFine = b.HasUnpaidFine || m.hasUnpaidLocked(borrowerID)
	return b, nil
}

func (m *MemoryStore) CreateLoan(ctx context.Context, loan domain.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.loans[loan.ID]; exists {
		return errors.New("loan already exists: " + loan.ID)
	}
	m.loans[loan.ID] = loan
	return nil
}

func (m *MemoryStore) GetLoan(ctx context.Context, loanID string) (domain.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[loanID]
	if !ok {
		return domain.Loan{}, domain.ErrLoanNotFound
	}
	return l, nil
}

func (m *MemoryStore) UpdateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.loans[loan.ID]
	if !ok {
		return domain.Loan{}, domain.ErrLoanNotFound
	}
	if current.Version != loan.Version {
		return domain.Loan{}, ErrOptimisticLock
	}
	loan.Version++
	m.loans[loan.ID] = loan
	return loan, nil
}

func (m *MemoryStore) ListOpenByBorrower(ctx context.Context, borrowerID string) ([]domain.Loan, error) {
	return m.filter(func(l domain.Loan) bool {
		return l.BorrowerID == borrowerID && l.IsOpen()
	}), nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, statuses ...domain.LoanStatus) ([]domain.Loan, error) {
	wanted := make(map[domain.LoanStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	return m.filter(func(l domain.Loan) bool { return wanted[l.Status] }), nil
}

func (m *MemoryStore) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	return m.filter(func(l domain.Loan) bool { return l.IsOverdue(asOf) }), nil
}

func (m *MemoryStore) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Loan, error) {
	from, to = domain.DateOf(from), domain.DateOf(to)
	return m.filter(func(l domain.Loan) bool {
		due := domain.DateOf(l.DueDate)
		return l.ReturnedAt == nil && !due.Before(from) && !due.After(to)
	}), nil
}

func (m *MemoryStore) ListWithUnpaidFines(ctx context.Context) ([]domain.Loan, error) {
	return m.filter(domain.Loan.HasUnpaidFine), nil
}

func (m *MemoryStore) HasUnpaidFines(ctx context.Context, borrowerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasUnpaidLocked(borrowerID), nil
}

func (m *MemoryStore) hasUnpaidLocked(borrowerID string) bool {
	for _, l := range m.loans {
		if l.BorrowerID == borrowerID && l.HasUnpaidFine() {
			return true
		}
	}
	return false
}

func (m *MemoryStore) SumUnpaidFines(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, l := range m.filter(domain.Loan.HasUnpaidFine) {
		total = total.Add(l.FineAmount)
	}
	return total, nil
}

func (m *MemoryStore) CountByStatus(ctx context.Context) (map[domain.LoanStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.LoanStatus]int)
	for _, l := range m.loans {
		counts[l.Status]++
	}
	return counts, nil
}

// filter returns matching loans ordered by due date then id.
func (m *MemoryStore) filter(keep func(domain.Loan) bool) []domain.Loan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Loan
	for _, l := range m.loans {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
