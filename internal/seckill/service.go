// Package seckill implements flash-sale voucher purchasing.
package seckill

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/sqkstwj/juzhondianping/internal/domain"
	"github.com/sqkstwj/juzhondianping/internal/idgen"
	"github.com/sqkstwj/juzhondianping/internal/lock"
)

// orderPrefix is the business prefix for order IDs.
const orderPrefix = "order"

// Service runs the flash-sale purchase protocol. Two guards share the
// work: the per-user lock serializes one user's concurrent attempts so
// the order-existence check and insert cannot race for that user, and
// the conditional stock decrement makes overselling lose at the store
// level no matter how many users race.
type Service struct {
	repo  domain.Repository
	locks *lock.KeyLock
	ids   *idgen.Generator
	cfg   domain.SeckillConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a seckill service. The lock must be backed by the
// shared cache when the service runs as more than one replica,
// otherwise the one-order-per-user guarantee only holds per process.
func NewService(repo domain.Repository, locks *lock.KeyLock, ids *idgen.Generator, cfg domain.SeckillConfig) *Service {
	return &Service{
		repo:  repo,
		locks: locks,
		ids:   ids,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Purchase attempts to buy one unit of the voucher for the user.
// Terminal outcomes: domain.ErrNotFound, ErrNotStarted, ErrEnded,
// ErrOutOfStock, ErrAlreadyPurchased. ErrLockTimeout means the user's
// own concurrent attempts starved this one; it is retryable.
func (s *Service) Purchase(ctx context.Context, voucherID, userID int64) (int64, error) {
	voucher, err := s.repo.GetVoucher(ctx, voucherID)
	if err != nil {
		return 0, err
	}

	// Fast-path rejections without taking any lock.
	now := s.now()
	if now.Before(voucher.BeginTime) {
		return 0, domain.ErrNotStarted
	}
	if now.After(voucher.EndTime) {
		return 0, domain.ErrEnded
	}
	if voucher.Stock < 1 {
		return 0, domain.ErrOutOfStock
	}

	// Per-user critical section around the transactional part. Keyed
	// by user, not voucher: it only exists to make the existence check
	// and insert non-racy for one user's duplicate requests.
	userKey := lock.OrderPrefix + strconv.FormatInt(userID, 10)
	token, err := s.locks.Acquire(ctx, userKey,
		s.cfg.UserLockTTL, s.cfg.UserLockRetryBackoff, s.cfg.UserLockMaxRetries)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := s.locks.Release(ctx, userKey, token); err != nil {
			slog.Warn("failed to release user lock", "user_id", userID, "error", err)
		}
	}()

	orderID, err := s.ids.NextID(ctx, orderPrefix)
	if err != nil {
		return 0, err
	}

	order := &domain.VoucherOrder{
		ID:        orderID,
		UserID:    userID,
		VoucherID: voucherID,
		CreatedAt: now.UTC(),
	}

	if err := s.repo.CreateVoucherOrder(ctx, order); err != nil {
		return 0, err
	}

	slog.Info("voucher purchased",
		"order_id", orderID,
		"voucher_id", voucherID,
		"user_id", userID,
	)

	return orderID, nil
}
