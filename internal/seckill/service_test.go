package seckill

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sqkstwj/juzhondianping/internal/cache"
	"github.com/sqkstwj/juzhondianping/internal/domain"
	"github.com/sqkstwj/juzhondianping/internal/idgen"
	"github.com/sqkstwj/juzhondianping/internal/lock"
	"github.com/sqkstwj/juzhondianping/internal/repository"
)

func newTestService(t *testing.T) (*Service, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "seckill-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewMemoryCache(1000)
	svc := NewService(repo, lock.New(c), idgen.NewGenerator(c), domain.SeckillConfig{
		UserLockTTL:          10 * time.Second,
		UserLockRetryBackoff: 10 * time.Millisecond,
		UserLockMaxRetries:   50,
	})
	return svc, repo
}

func seedVoucher(t *testing.T, repo domain.Repository, id, stock int64, begin, end time.Time) {
	t.Helper()
	err := repo.SaveVoucher(context.Background(), &domain.SeckillVoucher{
		VoucherID: id,
		Title:     "flash sale voucher",
		Stock:     stock,
		BeginTime: begin.UTC(),
		EndTime:   end.UTC(),
	})
	if err != nil {
		t.Fatalf("SaveVoucher failed: %v", err)
	}
}

func TestPurchaseWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("NotStarted", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedVoucher(t, repo, 1, 10, now.Add(time.Hour), now.Add(2*time.Hour))

		_, err := svc.Purchase(ctx, 1, 7)
		if !errors.Is(err, domain.ErrNotStarted) {
			t.Errorf("expected ErrNotStarted, got %v", err)
		}
	})

	t.Run("Ended", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedVoucher(t, repo, 1, 10, now.Add(-2*time.Hour), now.Add(-time.Hour))

		_, err := svc.Purchase(ctx, 1, 7)
		if !errors.Is(err, domain.ErrEnded) {
			t.Errorf("expected ErrEnded, got %v", err)
		}
	})

	t.Run("UnknownVoucher", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Purchase(ctx, 404, 7)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("EmptyStockPreCheck", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedVoucher(t, repo, 1, 0, now.Add(-time.Hour), now.Add(time.Hour))

		_, err := svc.Purchase(ctx, 1, 7)
		if !errors.Is(err, domain.ErrOutOfStock) {
			t.Errorf("expected ErrOutOfStock, got %v", err)
		}
	})
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedVoucher(t, repo, 1, 10, now.Add(-time.Hour), now.Add(time.Hour))

		orderID, err := svc.Purchase(ctx, 1, 7)
		if err != nil {
			t.Fatalf("Purchase failed: %v", err)
		}
		if orderID <= 0 {
			t.Errorf("expected positive order id, got %d", orderID)
		}

		order, err := repo.GetOrder(ctx, 7, 1)
		if err != nil {
			t.Fatalf("GetOrder failed: %v", err)
		}
		if order.ID != orderID {
			t.Errorf("order id mismatch: %d vs %d", order.ID, orderID)
		}

		v, _ := repo.GetVoucher(ctx, 1)
		if v.Stock != 9 {
			t.Errorf("expected stock 9, got %d", v.Stock)
		}
	})

	t.Run("SecondPurchaseRejected", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedVoucher(t, repo, 1, 10, now.Add(-time.Hour), now.Add(time.Hour))

		if _, err := svc.Purchase(ctx, 1, 7); err != nil {
			t.Fatalf("first purchase failed: %v", err)
		}

		_, err := svc.Purchase(ctx, 1, 7)
		if !errors.Is(err, domain.ErrAlreadyPurchased) {
			t.Errorf("expected ErrAlreadyPurchased, got %v", err)
		}
	})

	t.Run("NoOverselling", func(t *testing.T) {
		svc, repo := newTestService(t)

		const stock = 5
		const buyers = 25
		seedVoucher(t, repo, 1, stock, now.Add(-time.Hour), now.Add(time.Hour))

		var succeeded, soldOut, other atomic.Int64
		var wg sync.WaitGroup
		for userID := int64(1); userID <= buyers; userID++ {
			wg.Add(1)
			go func(uid int64) {
				defer wg.Done()
				_, err := svc.Purchase(ctx, 1, uid)
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, domain.ErrOutOfStock):
					soldOut.Add(1)
				default:
					other.Add(1)
					t.Errorf("unexpected purchase error: %v", err)
				}
			}(userID)
		}
		wg.Wait()

		if succeeded.Load() != stock {
			t.Errorf("expected exactly %d successful purchases, got %d", stock, succeeded.Load())
		}
		if soldOut.Load() != buyers-stock {
			t.Errorf("expected %d sold-out rejections, got %d", buyers-stock, soldOut.Load())
		}

		v, _ := repo.GetVoucher(ctx, 1)
		if v.Stock != 0 {
			t.Errorf("expected final stock 0, got %d", v.Stock)
		}
	})

	t.Run("SameUserConcurrentAttempts", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedVoucher(t, repo, 1, 5, now.Add(-time.Hour), now.Add(time.Hour))

		const attempts = 8
		var succeeded, duplicate atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Purchase(ctx, 1, 7)
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, domain.ErrAlreadyPurchased):
					duplicate.Add(1)
				case errors.Is(err, domain.ErrLockTimeout):
					// starved by the user's own attempts, acceptable
				default:
					t.Errorf("unexpected purchase error: %v", err)
				}
			}()
		}
		wg.Wait()

		if succeeded.Load() != 1 {
			t.Errorf("expected exactly 1 successful purchase for one user, got %d", succeeded.Load())
		}

		// Exactly one order row exists, and only one unit of stock is
		// gone.
		if _, err := repo.GetOrder(ctx, 7, 1); err != nil {
			t.Errorf("expected order to exist: %v", err)
		}
		v, _ := repo.GetVoucher(ctx, 1)
		if v.Stock != 4 {
			t.Errorf("expected stock 4, got %d", v.Stock)
		}
	})

	t.Run("WindowBoundaries", func(t *testing.T) {
		svc, repo := newTestService(t)
		begin := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		end := begin.Add(time.Hour)
		seedVoucher(t, repo, 1, 10, begin, end)

		svc.now = func() time.Time { return begin }
		if _, err := svc.Purchase(ctx, 1, 1); err != nil {
			t.Errorf("purchase at window open failed: %v", err)
		}

		svc.now = func() time.Time { return end }
		if _, err := svc.Purchase(ctx, 1, 2); err != nil {
			t.Errorf("purchase at window close failed: %v", err)
		}

		svc.now = func() time.Time { return end.Add(time.Second) }
		if _, err := svc.Purchase(ctx, 1, 3); !errors.Is(err, domain.ErrEnded) {
			t.Errorf("expected ErrEnded just past close, got %v", err)
		}
	})
}
