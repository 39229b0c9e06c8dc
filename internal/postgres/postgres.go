// internal/postgres/postgres.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Statements are idempotent so startup can
// always run them.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		status TEXT NOT NULL DEFAULT 'active',
		department TEXT,
		phone TEXT,
		permissions JSONB NOT NULL DEFAULT '{}'::jsonb,
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS items (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT NOT NULL,
		subcategory TEXT,
		sku TEXT UNIQUE,
		barcode TEXT UNIQUE,
		qr_code TEXT UNIQUE,
		total_quantity INTEGER NOT NULL DEFAULT 0,
		available_quantity INTEGER NOT NULL DEFAULT 0,
		reserved_quantity INTEGER NOT NULL DEFAULT 0,
		unit TEXT NOT NULL DEFAULT 'piece',
		cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		value NUMERIC(12,2) NOT NULL DEFAULT 0,
		location JSONB NOT NULL DEFAULT '{}'::jsonb,
		tags TEXT[] NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'active',
		is_checkoutable BOOLEAN NOT NULL DEFAULT TRUE,
		max_checkout_days INTEGER NOT NULL DEFAULT 7,
		requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
		created_by UUID NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT quantities_non_negative CHECK (
			total_quantity >= 0 AND available_quantity >= 0 AND reserved_quantity >= 0
		),
		CONSTRAINT quantity_partition CHECK (
			available_quantity + reserved_quantity <= total_quantity
		)
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		item_id UUID NOT NULL REFERENCES items(id),
		user_id UUID NOT NULL REFERENCES users(id),
		created_by UUID NOT NULL REFERENCES users(id),
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		checkout_date TIMESTAMPTZ NOT NULL,
		expected_return_date TIMESTAMPTZ NOT NULL,
		actual_return_date TIMESTAMPTZ,
		purpose TEXT NOT NULL,
		project TEXT,
		location TEXT,
		notes TEXT,
		condition_checkout TEXT NOT NULL DEFAULT 'good',
		condition_return TEXT,
		approval_required BOOLEAN NOT NULL DEFAULT FALSE,
		approved_by UUID REFERENCES users(id),
		approved_at TIMESTAMPTZ,
		approval_notes TEXT,
		extensions JSONB NOT NULL DEFAULT '[]'::jsonb,
		penalties JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		recipient_id UUID NOT NULL REFERENCES users(id),
		sender_id UUID REFERENCES users(id),
		related_transaction_id UUID REFERENCES transactions(id),
		related_item_id UUID,
		channels JSONB NOT NULL DEFAULT '[]'::jsonb,
		priority TEXT NOT NULL DEFAULT 'medium',
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_items_category ON items (category)`,
	`CREATE INDEX IF NOT EXISTS idx_items_status ON items (status)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_item ON transactions (item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_due ON transactions (expected_return_date)
		WHERE type = 'checkout' AND status IN ('active', 'overdue')`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_pending_email ON notifications
		USING GIN (channels jsonb_path_ops)`,
}
