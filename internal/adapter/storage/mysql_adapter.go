package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/library-lending/internal/core/domain"
)

// ErrOptimisticLock wraps domain.ErrConcurrentUpdate so callers see an invalid-state conflict.
var ErrOptimisticLock = fmt.Errorf("optimistic lock conflict: %w", domain.ErrConcurrentUpdate)

const errDuplicateEntry = 1062

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	tableTitles  = "titles"
	tableMembers = "members"
	tableLoans   = "loans"
)

var loanColumns = []any{
	"id", "borrower_id", "title_id", "loan_date", "due_date", "returned_at", "status",
	"renewals", "fine_amount", "fine_paid", "notes", "version", "created_at", "updated_at",
}

type titleRow struct {
	ID              string              `db:"id"`
	Name            string              `db:"name"`
	Price           decimal.NullDecimal `db:"price"`
	TotalCopies     int                 `db:"total_copies"`
	AvailableCopies int                 `db:"available_copies"`
	Active          bool                `db:"active"`
	LoanCount       int                 `db:"loan_count"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

func (r titleRow) toDomain() domain.Title {
	return domain.Title{
		ID:              r.ID,
		Name:            r.Name,
		Price:           r.Price,
		TotalCopies:     r.TotalCopies,
		AvailableCopies: r.AvailableCopies,
		Active:          r.Active,
		LoanCount:       r.LoanCount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type loanRow struct {
	ID         string          `db:"id"`
	BorrowerID string          `db:"borrower_id"`
	TitleID    string          `db:"title_id"`
	LoanDate   time.Time       `db:"loan_date"`
	DueDate    time.Time       `db:"due_date"`
	ReturnedAt sql.NullTime    `db:"returned_at"`
	Status     string          `db:"status"`
	Renewals   int             `db:"renewals"`
	FineAmount decimal.Decimal `db:"fine_amount"`
	FinePaid   bool            `db:"fine_paid"`
	Notes      string          `db:"notes"`
	Version    int             `db:"version"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

func (r loanRow) toDomain() domain.Loan {
	l := domain.Loan{
		ID:         r.ID,
		BorrowerID: r.BorrowerID,
		TitleID:    r.TitleID,
		LoanDate:   domain.DateOf(r.LoanDate),
		DueDate:    domain.DateOf(r.DueDate),
		Status:     domain.LoanStatus(r.Status),
		Renewals:   r.Renewals,
		FineAmount: r.FineAmount,
		FinePaid:   r.FinePaid,
		Notes:      r.Notes,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.ReturnedAt.Valid {
		at := r.ReturnedAt.Time
		l.ReturnedAt = &at
	}
	return l
}

// MySQLAdapter implements the catalog, the identity provider and the loan repository
// on one MySQL schema. Copy counts only move through conditional UPDATEs so the
// database row is the single arbiter of the last copy.
type MySQLAdapter struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	nowFn   func() time.Time
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{
		db:      db,
		dialect: goqu.Dialect("mysql"),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// ConnectMySQL opens a pooled connection and pings it.
func ConnectMySQL(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded schema files in name order. Each file holds one statement.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

func (m *MySQLAdapter) CreateTitle(ctx context.Context, title domain.Title) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO titles (id, name, price, total_copies, available_copies, active, loan_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		title.ID, title.Name, title.Price, title.TotalCopies, title.AvailableCopies, title.Active,
		title.LoanCount, title.CreatedAt, title.UpdatedAt,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
		return domain.ErrTitleExists
	}
	if err != nil {
		return fmt.Errorf("insert title: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetTitle(ctx context.Context, titleID string) (domain.Title, error) {
	return getTitle(ctx, m.db, titleID, false)
}

func getTitle(ctx context.Context, q sqlx.QueryerContext, titleID string, forUpdate bool) (domain.Title, error) {
	query := `SELECT id, name, price, total_copies, available_copies, active, loan_count, created_at, updated_at
		FROM titles WHERE id = ?`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var row titleRow
	err := sqlx.GetContext(ctx, q, &row, query, titleID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Title{}, domain.ErrTitleNotFound
	}
	if err != nil {
		return domain.Title{}, fmt.Errorf("query title: %w", err)
	}
	return row.toDomain(), nil
}

func (m *MySQLAdapter) Reserve(ctx context.Context, titleID string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE titles
		SET available_copies = available_copies - 1, updated_at = ?
		WHERE id = ? AND active = TRUE AND available_copies > 0`,
		m.nowFn(), titleID,
	)
	if err != nil {
		return fmt.Errorf("reserve copy: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 1 {
		return nil
	}

	title, err := m.GetTitle(ctx, titleID)
	if err != nil {
		return err
	}
	if !title.Active {
		return domain.ErrTitleNotLoanable
	}
	return domain.ErrNoCopiesAvailable
}

func (m *MySQLAdapter) Release(ctx context.Context, titleID string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE titles
		SET available_copies = available_copies + 1, updated_at = ?
		WHERE id = ? AND available_copies < total_copies`,
		m.nowFn(), titleID,
	)
	if err != nil {
		return fmt.Errorf("release copy: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 1 {
		return nil
	}
	if _, err := m.GetTitle(ctx, titleID); err != nil {
		return err
	}
	return domain.ErrAllCopiesAvailable
}

func (m *MySQLAdapter) Resize(ctx context.Context, titleID string, newTotal int) (domain.Title, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Title{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	title, err := getTitle(ctx, tx, titleID, true)
	if err != nil {
		return domain.Title{}, err
	}
	if err := title.Resize(newTotal); err != nil {
		return domain.Title{}, err
	}
	title.UpdatedAt = m.nowFn()

	if _, err := tx.ExecContext(ctx, `
		UPDATE titles SET total_copies = ?, available_copies = ?, updated_at = ? WHERE id = ?`,
		title.TotalCopies, title.AvailableCopies, title.UpdatedAt, titleID,
	); err != nil {
		return domain.Title{}, fmt.Errorf("update title: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Title{}, fmt.Errorf("commit: %w", err)
	}
	return title, nil
}

func (m *MySQLAdapter) IncrementLoanCount(ctx context.Context, titleID string) error {
	result, err := m.db.ExecContext(ctx, `UPDATE titles SET loan_count = loan_count + 1 WHERE id = ?`, titleID)
	if err != nil {
		return fmt.Errorf("increment loan count: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrTitleNotFound
	}
	return nil
}

// SaveBorrower registers or replaces a member record.
func (m *MySQLAdapter) SaveBorrower(ctx context.Context, borrower domain.Borrower) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO members (id, name, active) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), active = VALUES(active)`,
		borrower.ID, borrower.Name, borrower.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) LookupBorrower(ctx context.Context, borrowerID string) (domain.Borrower, error) {
	var row struct {
		ID            string `db:"id"`
		Name          string `db:"name"`
		Active        bool   `db:"active"`
		HasUnpaidFine bool   `db:"has_unpaid_fine"`
	}
	err := m.db.GetContext(ctx, &row, `
		SELECT m.id, m.name, m.active,
			EXISTS (
				SELECT 1 FROM loans l
				WHERE l.borrower_id = m.id AND l.fine_amount > 0 AND l.fine_paid = FALSE
			) AS has_unpaid_fine
		FROM members m WHERE m.id = ?`, borrowerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Borrower{}, domain.ErrBorrowerNotFound
	}
	if err != nil {
		return domain.Borrower{}, fmt.Errorf("query member: %w", err)
	}
	return domain.Borrower{ID: row.ID, Name: row.Name, Active: row.Active, HasUnpaidFine: row.HasUnpaidFine}, nil
}

func (m *MySQLAdapter) CreateLoan(ctx context.Context, loan domain.Loan) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO loans (id, borrower_id, title_id, loan_date, due_date, returned_at, status,
			renewals, fine_amount, fine_paid, notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.BorrowerID, loan.TitleID, loan.LoanDate, loan.DueDate, nullTime(loan.ReturnedAt),
		string(loan.Status), loan.Renewals, loan.FineAmount, loan.FinePaid, loan.Notes, loan.Version,
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetLoan(ctx context.Context, loanID string) (domain.Loan, error) {
	loans, err := m.selectLoans(ctx, goqu.C("id").Eq(loanID))
	if err != nil {
		return domain.Loan{}, err
	}
	if len(loans) == 0 {
		return domain.Loan{}, domain.ErrLoanNotFound
	}
	return loans[0], nil
}

func (m *MySQLAdapter) UpdateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE loans
		SET due_date = ?, returned_at = ?, status = ?, renewals = ?, fine_amount = ?, fine_paid = ?,
			notes = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		loan.DueDate, nullTime(loan.ReturnedAt), string(loan.Status), loan.Renewals, loan.FineAmount,
		loan.FinePaid, loan.Notes, loan.UpdatedAt, loan.ID, loan.Version,
	)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("update loan: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := m.GetLoan(ctx, loan.ID); err != nil {
			return domain.Loan{}, err
		}
		return domain.Loan{}, ErrOptimisticLock
	}
	loan.Version++
	return loan, nil
}

func (m *MySQLAdapter) ListOpenByBorrower(ctx context.Context, borrowerID string) ([]domain.Loan, error) {
	return m.selectLoans(ctx,
		goqu.C("borrower_id").Eq(borrowerID),
		goqu.C("status").In(statusValues(domain.OpenLoanStatuses)...),
	)
}

func (m *MySQLAdapter) ListByStatus(ctx context.Context, statuses ...domain.LoanStatus) ([]domain.Loan, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	return m.selectLoans(ctx, goqu.C("status").In(statusValues(statuses)...))
}

func (m *MySQLAdapter) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	return m.selectLoans(ctx,
		goqu.C("returned_at").IsNull(),
		goqu.C("due_date").Lt(domain.DateOf(asOf)),
	)
}

func (m *MySQLAdapter) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Loan, error) {
	return m.selectLoans(ctx,
		goqu.C("returned_at").IsNull(),
		goqu.C("due_date").Between(goqu.Range(domain.DateOf(from), domain.DateOf(to))),
	)
}

func (m *MySQLAdapter) ListWithUnpaidFines(ctx context.Context) ([]domain.Loan, error) {
	return m.selectLoans(ctx, unpaidFine()...)
}

func (m *MySQLAdapter) HasUnpaidFines(ctx context.Context, borrowerID string) (bool, error) {
	var exists bool
	err := m.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM loans WHERE borrower_id = ? AND fine_amount > 0 AND fine_paid = FALSE
		)`, borrowerID)
	if err != nil {
		return false, fmt.Errorf("query unpaid fines: %w", err)
	}
	return exists, nil
}

func (m *MySQLAdapter) SumUnpaidFines(ctx context.Context) (decimal.Decimal, error) {
	query, args, err := m.dialect.From(tableLoans).
		Select(goqu.COALESCE(goqu.SUM("fine_amount"), 0)).
		Where(unpaidFine()...).
		Prepared(true).ToSQL()
	if err != nil {
		return decimal.Zero, fmt.Errorf("build query: %w", err)
	}
	var total decimal.Decimal
	if err := m.db.GetContext(ctx, &total, query, args...); err != nil {
		return decimal.Zero, fmt.Errorf("sum unpaid fines: %w", err)
	}
	return total, nil
}

func (m *MySQLAdapter) CountByStatus(ctx context.Context) (map[domain.LoanStatus]int, error) {
	query, args, err := m.dialect.From(tableLoans).
		Select(goqu.C("status"), goqu.COUNT("*").As("n")).
		GroupBy("status").
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count loans: %w", err)
	}
	counts := make(map[domain.LoanStatus]int, len(rows))
	for _, r := range rows {
		counts[domain.LoanStatus(r.Status)] = r.N
	}
	return counts, nil
}

func (m *MySQLAdapter) selectLoans(ctx context.Context, where ...exp.Expression) ([]domain.Loan, error) {
	query, args, err := m.dialect.From(tableLoans).
		Select(loanColumns...).
		Where(where...).
		Order(goqu.C("due_date").Asc(), goqu.C("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []loanRow
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	loans := make([]domain.Loan, len(rows))
	for i, r := range rows {
		loans[i] = r.toDomain()
	}
	return loans, nil
}

func unpaidFine() []exp.Expression {
	return []exp.Expression{
		goqu.C("fine_amount").Gt(0),
		goqu.C("fine_paid").IsFalse(),
	}
}

func statusValues(statuses []domain.LoanStatus) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
