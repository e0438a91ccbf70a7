// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sqkstwj/juzhondianping/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// GetShop retrieves a shop by ID.
func (r *SQLRepository) GetShop(ctx context.Context, id int64) (*domain.Shop, error) {
	query := `
		SELECT id, name, type_id, address, avg_price, sold, comments, score, created_at, updated_at
		FROM shops
		WHERE id = ?
	`

	var shop domain.Shop
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&shop.ID, &shop.Name, &shop.TypeID, &shop.Address,
		&shop.AvgPrice, &shop.Sold, &shop.Comments, &shop.Score,
		&shop.CreatedAt, &shop.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &shop, nil
}

// SaveShop inserts a shop.
func (r *SQLRepository) SaveShop(ctx context.Context, shop *domain.Shop) error {
	now := time.Now().UTC()
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = now
	}
	shop.UpdatedAt = now

	query := `
		INSERT INTO shops (id, name, type_id, address, avg_price, sold, comments, score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		shop.ID, shop.Name, shop.TypeID, shop.Address,
		shop.AvgPrice, shop.Sold, shop.Comments, shop.Score,
		shop.CreatedAt, shop.UpdatedAt,
	)
	return err
}

// UpdateShop updates a shop's mutable fields.
func (r *SQLRepository) UpdateShop(ctx context.Context, shop *domain.Shop) error {
	shop.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE shops
		SET name = ?, type_id = ?, address = ?, avg_price = ?, sold = ?, comments = ?, score = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		shop.Name, shop.TypeID, shop.Address, shop.AvgPrice,
		shop.Sold, shop.Comments, shop.Score, shop.UpdatedAt,
		shop.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetVoucher retrieves a seckill voucher by ID.
func (r *SQLRepository) GetVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error) {
	query := `
		SELECT voucher_id, title, stock, begin_time, end_time, created_at, updated_at
		FROM seckill_vouchers
		WHERE voucher_id = ?
	`

	var v domain.SeckillVoucher
	err := r.db.QueryRowContext(ctx, r.rebind(query), voucherID).Scan(
		&v.VoucherID, &v.Title, &v.Stock, &v.BeginTime, &v.EndTime,
		&v.CreatedAt, &v.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// SaveVoucher inserts a seckill voucher.
func (r *SQLRepository) SaveVoucher(ctx context.Context, v *domain.SeckillVoucher) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	query := `
		INSERT INTO seckill_vouchers (voucher_id, title, stock, begin_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.VoucherID, v.Title, v.Stock, v.BeginTime, v.EndTime,
		v.CreatedAt, v.UpdatedAt,
	)
	return err
}

// GetOrder retrieves an order by (userID, voucherID).
func (r *SQLRepository) GetOrder(ctx context.Context, userID, voucherID int64) (*domain.VoucherOrder, error) {
	query := `
		SELECT id, user_id, voucher_id, pay_type, status, created_at
		FROM voucher_orders
		WHERE user_id = ? AND voucher_id = ?
	`

	var order domain.VoucherOrder
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, voucherID).Scan(
		&order.ID, &order.UserID, &order.VoucherID,
		&order.PayType, &order.Status, &order.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// CreateVoucherOrder runs the purchase as one transaction:
//
//  1. re-check that (user, voucher) has no existing order
//  2. decrement stock conditionally; zero rows affected means another
//     request took the last unit
//  3. insert the order row
//
// The decrement is the authoritative stock check. It never reads the
// stock value first; the predicate makes racing writers lose at the
// store instead of overselling.
func (r *SQLRepository) CreateVoucherOrder(ctx context.Context, order *domain.VoucherOrder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		r.rebind(`SELECT COUNT(*) FROM voucher_orders WHERE user_id = ? AND voucher_id = ?`),
		order.UserID, order.VoucherID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return domain.ErrAlreadyPurchased
	}

	res, err := tx.ExecContext(ctx,
		r.rebind(`UPDATE seckill_vouchers SET stock = stock - 1 WHERE voucher_id = ? AND stock > 0`),
		order.VoucherID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrOutOfStock
	}

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		r.rebind(`INSERT INTO voucher_orders (id, user_id, voucher_id, pay_type, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		order.ID, order.UserID, order.VoucherID,
		order.PayType, order.Status, order.CreatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
