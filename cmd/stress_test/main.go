package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/library-lending/internal/adapter/storage"
	"github.com/rl1809/library-lending/internal/core/domain"
	"github.com/rl1809/library-lending/internal/core/service"
)

const titleID = "stress-title"

func main() {
	redisAddr := flag.String("redis", "", "redis address for the distributed locker, empty for in-process locks")
	copies := flag.Int("copies", 20, "copies of the contested title")
	requests := flag.Int("requests", 50, "concurrent loan requests, one borrower each")
	flag.Parse()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	opts := []service.Option{service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}

	// Initialize Redis
	if *redisAddr != "" {
		rdb, err := storage.ConnectRedis(ctx, *redisAddr)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		clearLocks(ctx, rdb)
		opts = append(opts, service.WithLocker(storage.NewRedisAdapter(rdb)))
	}

	loanService, err := service.NewLoanService(store, store, store, opts...)
	if err != nil {
		log.Fatalf("failed to build loan service: %v", err)
	}
	if _, err := loanService.AddTitle(ctx, titleID, "Stress Title", *copies, decimal.NullDecimal{}); err != nil {
		log.Fatalf("failed to add title: %v", err)
	}
	for i := 0; i < *requests; i++ {
		if err := store.SaveBorrower(ctx, domain.Borrower{ID: borrowerID(i), Active: true}); err != nil {
			log.Fatalf("failed to seed borrower: %v", err)
		}
	}

	// Phase 1: every borrower races for the same title
	var successCount, rejectCount, errorCount atomic.Int32
	loanIDs := make(chan string, *requests)
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loan, err := loanService.CreateLoan(ctx, borrowerID(i), titleID)
			switch {
			case err == nil:
				successCount.Add(1)
				loanIDs <- loan.ID
			case errors.Is(err, domain.ErrNoCopiesAvailable):
				rejectCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("unexpected create error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(loanIDs)
	createElapsed := time.Since(start)

	// Phase 2: return every loan while a second wave of requests competes for the copies
	var returned, secondWave atomic.Int32
	start = time.Now()
	for id := range loanIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := loanService.ProcessReturn(ctx, id); err != nil {
				log.Printf("unexpected return error: %v", err)
				return
			}
			returned.Add(1)
		}(id)
	}
	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := loanService.CreateLoan(ctx, borrowerID(i), titleID); err == nil {
				secondWave.Add(1)
			}
		}(i)
	}
	wg.Wait()
	churnElapsed := time.Since(start)

	title, err := loanService.GetTitle(ctx, titleID)
	if err != nil {
		log.Fatalf("failed to read title: %v", err)
	}
	stats, err := loanService.LoanStatsByStatus(ctx)
	if err != nil {
		log.Fatalf("failed to read stats: %v", err)
	}
	open := stats[domain.LoanStatusActive] + stats[domain.LoanStatusRenewed] + stats[domain.LoanStatusOverdue]

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Copies:            %d\n", *copies)
	fmt.Printf("Requests:          %d\n", *requests)
	fmt.Printf("Loans Created:     %d\n", successCount.Load())
	fmt.Printf("No Copies:         %d\n", rejectCount.Load())
	fmt.Printf("Errors:            %d\n", errorCount.Load())
	fmt.Printf("Create Duration:   %v\n", createElapsed)
	fmt.Printf("Returned:          %d\n", returned.Load())
	fmt.Printf("Second Wave Loans: %d\n", secondWave.Load())
	fmt.Printf("Churn Duration:    %v\n", churnElapsed)
	fmt.Printf("Available Copies:  %d\n", title.AvailableCopies)
	fmt.Printf("Open Loans:        %d\n", open)
	fmt.Println("==========================================")

	expected := min(*copies, *requests)
	if int(successCount.Load()) == expected && errorCount.Load() == 0 {
		fmt.Printf("PASS: exactly %d loans created in the first wave\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d loans and no errors, got %d loans and %d errors\n",
			expected, successCount.Load(), errorCount.Load())
	}

	if title.AvailableCopies+open == title.TotalCopies && title.AvailableCopies >= 0 {
		fmt.Println("PASS: available + open loans == total copies")
	} else {
		fmt.Printf("FAIL: available %d + open %d != total %d\n", title.AvailableCopies, open, title.TotalCopies)
	}
}

func borrowerID(i int) string {
	return fmt.Sprintf("borrower-%d", i)
}

// clearLocks drops lock keys left behind by an aborted run.
func clearLocks(ctx context.Context, rdb *redis.Client) {
	keys, _ := rdb.Keys(ctx, "lock:*").Result()
	for _, k := range keys {
		rdb.Del(ctx, k)
	}
}
