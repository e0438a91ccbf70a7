// Package domain defines the core types and interfaces shared across
// the service: entities, the cache and repository contracts, the
// configuration tree, and the sentinel errors.
package domain

import "time"

// Shop is a merchant record. It is the hot-read entity served through
// the cache-aside layer.
type Shop struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	TypeID   int64   `json:"typeId"`
	Address  string  `json:"address"`
	AvgPrice int64   `json:"avgPrice"`
	Sold     int64   `json:"sold"`
	Comments int64   `json:"comments"`
	Score    float64 `json:"score"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SeckillVoucher is a limited-stock voucher with a sale window.
// Stock is only ever mutated through a conditional decrement at the
// store level, never read-then-write in the application.
type SeckillVoucher struct {
	VoucherID int64     `json:"voucherId"`
	Title     string    `json:"title"`
	Stock     int64     `json:"stock"`
	BeginTime time.Time `json:"beginTime"`
	EndTime   time.Time `json:"endTime"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VoucherOrder is created once per successful purchase. The
// (UserID, VoucherID) pair is unique; the row is never updated or
// deleted by this service.
type VoucherOrder struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	VoucherID int64     `json:"voucherId"`
	PayType   int       `json:"payType"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
