package domain

import (
	"context"
	"time"
)

// Repository defines data persistence operations for shops, vouchers
// and orders.
type Repository interface {
	// GetShop retrieves a shop by ID. Returns ErrNotFound if absent.
	GetShop(ctx context.Context, id int64) (*Shop, error)

	// SaveShop inserts a shop.
	SaveShop(ctx context.Context, shop *Shop) error

	// UpdateShop updates a shop's mutable fields.
	UpdateShop(ctx context.Context, shop *Shop) error

	// GetVoucher retrieves a seckill voucher by ID. Returns ErrNotFound
	// if absent.
	GetVoucher(ctx context.Context, voucherID int64) (*SeckillVoucher, error)

	// SaveVoucher inserts a seckill voucher.
	SaveVoucher(ctx context.Context, v *SeckillVoucher) error

	// GetOrder retrieves an order by (userID, voucherID). Returns
	// ErrNotFound if the user has not purchased the voucher.
	GetOrder(ctx context.Context, userID, voucherID int64) (*VoucherOrder, error)

	// CreateVoucherOrder runs the purchase as one transaction: verify
	// the user has no existing order for the voucher, conditionally
	// decrement stock (stock > 0), and insert the order row. Returns
	// ErrAlreadyPurchased or ErrOutOfStock as terminal outcomes.
	CreateVoucherOrder(ctx context.Context, order *VoucherOrder) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite settings (community tier)
	SQLitePath string

	// PostgreSQL settings (pro tier)
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
