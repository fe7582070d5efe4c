package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'rfq_status') THEN
			CREATE TYPE rfq_status AS ENUM ('OPEN', 'BIDDING', 'AWARDED', 'CLOSED', 'CANCELLED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'rfq_kind') THEN
			CREATE TYPE rfq_kind AS ENUM ('STANDARD', 'CUSTOM_SERVICE');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'urgency_tier') THEN
			CREATE TYPE urgency_tier AS ENUM ('STANDARD', 'URGENT');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'broadcast_response') THEN
			CREATE TYPE broadcast_response AS ENUM ('PENDING', 'ACCEPT', 'DECLINE', 'INFO_REQUEST');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		category VARCHAR(128) NOT NULL DEFAULT '',
		capabilities TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS rfqs (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		buyer_id UUID NOT NULL,
		foundry_id UUID NOT NULL,
		title VARCHAR(255) NOT NULL,
		rfq_type rfq_kind NOT NULL DEFAULT 'STANDARD',
		category VARCHAR(128) NOT NULL DEFAULT '',
		specification TEXT NOT NULL DEFAULT '',
		budget_min NUMERIC(18,2) NOT NULL DEFAULT 0,
		budget_max NUMERIC(18,2) NOT NULL DEFAULT 0,
		deadline TIMESTAMPTZ,
		urgency urgency_tier NOT NULL DEFAULT 'STANDARD',
		status rfq_status NOT NULL DEFAULT 'OPEN',
		priority_supplier_id UUID REFERENCES suppliers(id),
		priority_hold_expires_at TIMESTAMPTZ,
		awarded_supplier_id UUID REFERENCES suppliers(id),
		awarded_at TIMESTAMPTZ,
		order_id UUID,
		cancel_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rfqs_buyer ON rfqs (buyer_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_rfqs_expired_holds ON rfqs (priority_hold_expires_at)
		WHERE priority_supplier_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS rfq_broadcasts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		rfq_id UUID NOT NULL REFERENCES rfqs(id),
		supplier_id UUID NOT NULL REFERENCES suppliers(id),
		delivered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		viewed_at TIMESTAMPTZ,
		response broadcast_response NOT NULL DEFAULT 'PENDING',
		quoted_price NUMERIC(18,2),
		message TEXT,
		responded_at TIMESTAMPTZ,
		CONSTRAINT uq_rfq_broadcasts_pair UNIQUE (rfq_id, supplier_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rfq_broadcasts_rfq ON rfq_broadcasts (rfq_id);`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		buyer_id UUID NOT NULL,
		supplier_id UUID NOT NULL REFERENCES suppliers(id),
		rfq_id UUID NOT NULL REFERENCES rfqs(id),
		quoted_price NUMERIC(18,2),
		deadline TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_orders_supplier_active ON orders (supplier_id)
		WHERE completed_at IS NULL;`,
}

func Migrate(database *gorm.DB) error {
	for i, statement := range migrationStatements {
		if err := database.Exec(statement).Error; err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
