package repository

// Schema definitions. Compatible with both SQLite and PostgreSQL.

const schemaShops = `
CREATE TABLE IF NOT EXISTS shops (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    type_id BIGINT NOT NULL DEFAULT 0,
    address TEXT,
    avg_price BIGINT NOT NULL DEFAULT 0,
    sold BIGINT NOT NULL DEFAULT 0,
    comments BIGINT NOT NULL DEFAULT 0,
    score REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shops_type ON shops(type_id);
`

const schemaSeckillVouchers = `
CREATE TABLE IF NOT EXISTS seckill_vouchers (
    voucher_id BIGINT PRIMARY KEY,
    title TEXT NOT NULL,
    stock BIGINT NOT NULL,
    begin_time TIMESTAMP NOT NULL,
    end_time TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaVoucherOrders = `
CREATE TABLE IF NOT EXISTS voucher_orders (
    id BIGINT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    voucher_id BIGINT NOT NULL,
    pay_type INTEGER NOT NULL DEFAULT 0,
    status INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (user_id, voucher_id)
);

CREATE INDEX IF NOT EXISTS idx_voucher_orders_voucher ON voucher_orders(voucher_id);
`

// AllSchemas returns all schema definitions in creation order.
func AllSchemas() []string {
	return []string{
		schemaShops,
		schemaSeckillVouchers,
		schemaVoucherOrders,
	}
}
