package shop

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sqkstwj/juzhondianping/internal/cache"
	"github.com/sqkstwj/juzhondianping/internal/cacheaside"
	"github.com/sqkstwj/juzhondianping/internal/domain"
	"github.com/sqkstwj/juzhondianping/internal/lock"
	"github.com/sqkstwj/juzhondianping/internal/repository"
)

func newTestService(t *testing.T, strategy domain.LoaderStrategy) (*Service, domain.Repository, domain.Cache) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "shop-test-*.db")
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
	pool := cacheaside.NewRebuildPool(2, 100)
	t.Cleanup(pool.Stop)

	loader := cacheaside.NewLoader(c, lock.New(c), pool, domain.LoaderConfig{
		Strategy:     strategy,
		BaseTTL:      time.Minute,
		NullTTL:      time.Minute,
		LockTTL:      time.Second,
		RetryBackoff: 5 * time.Millisecond,
		MaxRetries:   50,
	})

	return NewService(repo, c, loader), repo, c
}

func seedShop(t *testing.T, repo domain.Repository, id int64, name string) {
	t.Helper()
	err := repo.SaveShop(context.Background(), &domain.Shop{
		ID:      id,
		Name:    name,
		TypeID:  1,
		Address: "1 Main St",
		Score:   4.2,
	})
	if err != nil {
		t.Fatalf("SaveShop failed: %v", err)
	}
}

func TestShopService(t *testing.T) {
	ctx := context.Background()

	t.Run("QueryByID", func(t *testing.T) {
		svc, repo, c := newTestService(t, domain.StrategyMutex)
		seedShop(t, repo, 1, "noodle house")

		got, err := svc.QueryByID(ctx, 1)
		if err != nil {
			t.Fatalf("QueryByID failed: %v", err)
		}
		if got.Name != "noodle house" {
			t.Errorf("unexpected shop: %+v", got)
		}

		// Second read comes from cache.
		if val, _ := c.Get(ctx, "cache:shop:1"); val == nil {
			t.Error("expected shop to be cached after first read")
		}
		got, err = svc.QueryByID(ctx, 1)
		if err != nil || got.Name != "noodle house" {
			t.Errorf("cached read failed: %+v, %v", got, err)
		}
	})

	t.Run("QueryMissing", func(t *testing.T) {
		svc, _, _ := newTestService(t, domain.StrategyMutex)

		_, err := svc.QueryByID(ctx, 404)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateInvalidatesCache", func(t *testing.T) {
		svc, _, c := newTestService(t, domain.StrategyMutex)
		seedShop(t, svc.repo, 2, "old name")

		// Populate the cache, then update.
		if _, err := svc.QueryByID(ctx, 2); err != nil {
			t.Fatalf("QueryByID failed: %v", err)
		}

		shop, _ := svc.repo.GetShop(ctx, 2)
		shop.Name = "new name"
		if err := svc.Update(ctx, shop); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		if val, _ := c.Get(ctx, "cache:shop:2"); val != nil {
			t.Error("expected cache entry to be invalidated by update")
		}

		got, err := svc.QueryByID(ctx, 2)
		if err != nil {
			t.Fatalf("QueryByID after update failed: %v", err)
		}
		if got.Name != "new name" {
			t.Errorf("expected updated name, got %q", got.Name)
		}
	})

	t.Run("WarmThenLogicalRead", func(t *testing.T) {
		svc, repo, _ := newTestService(t, domain.StrategyLogicalExpire)
		seedShop(t, repo, 3, "hotpot palace")

		if err := svc.Warm(ctx, 3, time.Minute); err != nil {
			t.Fatalf("Warm failed: %v", err)
		}

		got, err := svc.QueryByID(ctx, 3)
		if err != nil {
			t.Fatalf("QueryByID failed: %v", err)
		}
		if got.Name != "hotpot palace" {
			t.Errorf("unexpected shop: %+v", got)
		}
	})

	t.Run("WarmMissingShop", func(t *testing.T) {
		svc, _, _ := newTestService(t, domain.StrategyLogicalExpire)

		if err := svc.Warm(ctx, 404, time.Minute); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
