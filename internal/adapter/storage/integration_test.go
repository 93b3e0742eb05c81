package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/library-lending/internal/adapter/storage"
	"github.com/rl1809/library-lending/internal/core/domain"
	"github.com/rl1809/library-lending/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sqlx.DB
	cache   *storage.RedisAdapter
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/library?parseTime=true"
	}

	ctx := context.Background()
	rdb, err := storage.ConnectRedis(ctx, redisAddr)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	db, err := storage.ConnectMySQL(ctx, mysqlDSN)
	if err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	require.NoError(t, storage.RunMigrations(ctx, db))

	return &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb),
		db:    storage.NewMySQLAdapter(db),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func (e *testEnv) newService(t *testing.T, opts ...service.Option) *service.LoanService {
	t.Helper()
	opts = append([]service.Option{
		service.WithLocker(e.cache),
		service.WithIdempotency(e.cache),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	svc, err := service.NewLoanService(e.db, e.db, e.db, opts...)
	require.NoError(t, err)
	return svc
}

func (e *testEnv) seed(t *testing.T, copies int, borrowers int) (string, []string) {
	t.Helper()
	ctx := context.Background()
	titleID := "it-title-" + uuid.NewString()
	title, err := domain.NewTitle(titleID, "Integration", copies, decimal.NullDecimal{}, time.Now())
	require.NoError(t, err)
	require.NoError(t, e.db.CreateTitle(ctx, title))

	ids := make([]string, borrowers)
	for i := range ids {
		ids[i] = "it-member-" + uuid.NewString()
		require.NoError(t, e.db.SaveBorrower(ctx, domain.Borrower{ID: ids[i], Active: true}))
	}
	t.Cleanup(func() {
		e.mysql.ExecContext(ctx, `DELETE FROM loans WHERE title_id = ?`, titleID)
		e.mysql.ExecContext(ctx, `DELETE FROM titles WHERE id = ?`, titleID)
		for _, id := range ids {
			e.mysql.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
		}
	})
	return titleID, ids
}

func TestIntegration_ConcurrentLoansConserveCopies(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	copies := 10
	titleID, borrowers := env.seed(t, copies, 25)
	svc := env.newService(t)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for _, b := range borrowers {
		wg.Add(1)
		go func(borrowerID string) {
			defer wg.Done()
			if _, err := svc.CreateLoan(ctx, borrowerID, titleID); err == nil {
				successCount.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrPolicyViolation)
			}
		}(b)
	}
	wg.Wait()

	assert.Equal(t, int32(copies), successCount.Load())

	title, err := env.db.GetTitle(ctx, titleID)
	require.NoError(t, err)
	assert.Equal(t, 0, title.AvailableCopies)

	var openLoans int
	require.NoError(t, env.mysql.GetContext(ctx, &openLoans,
		`SELECT COUNT(*) FROM loans WHERE title_id = ? AND returned_at IS NULL`, titleID))
	assert.Equal(t, title.TotalCopies-title.AvailableCopies, openLoans)
}

func TestIntegration_ReturnGivesCopyBack(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	titleID, borrowers := env.seed(t, 1, 2)
	svc := env.newService(t)

	loan, err := svc.CreateLoan(ctx, borrowers[0], titleID)
	require.NoError(t, err)

	_, err = svc.CreateLoan(ctx, borrowers[1], titleID)
	require.ErrorIs(t, err, domain.ErrNoCopiesAvailable)

	returned, err := svc.ProcessReturn(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusReturned, returned.Status)

	_, err = svc.CreateLoan(ctx, borrowers[1], titleID)
	require.NoError(t, err)
}

func TestIntegration_IdempotencyPreventsDoubleLoan(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	titleID, borrowers := env.seed(t, 5, 1)
	svc := env.newService(t)
	ctx := service.WithRequestID(context.Background(), "same-request-id-"+uuid.NewString())

	_, err := svc.CreateLoan(ctx, borrowers[0], titleID)
	require.NoError(t, err)

	_, err = svc.CreateLoan(ctx, borrowers[0], titleID)
	assert.True(t, errors.Is(err, service.ErrDuplicateRequest), "got %v", err)

	title, err := env.db.GetTitle(ctx, titleID)
	require.NoError(t, err)
	assert.Equal(t, 4, title.AvailableCopies)
}

func TestIntegration_OverdueSweep(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	titleID, borrowers := env.seed(t, 2, 1)

	past := time.Now().AddDate(0, 0, -30)
	loan, err := env.newService(t, service.WithClock(func() time.Time { return past })).
		CreateLoan(ctx, borrowers[0], titleID)
	require.NoError(t, err)

	svc := env.newService(t)
	_, err = svc.UpdateOverdueLoans(ctx)
	require.NoError(t, err)

	got, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusOverdue, got.Status)
	assert.True(t, got.FineAmount.IsZero())
}
