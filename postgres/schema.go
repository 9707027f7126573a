package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func InitialiseDB(ctx context.Context, db *sqlx.DB) error {
	if err := CreateSeatsTable(ctx, db); err != nil {
		return fmt.Errorf("creating seats table: %w", err)
	}

	if err := CreateOrdersTable(ctx, db); err != nil {
		return fmt.Errorf("creating orders table: %w", err)
	}

	if err := CreateTicketsTable(ctx, db); err != nil {
		return fmt.Errorf("creating tickets table: %w", err)
	}

	return nil
}

func CreateSeatsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS seats (
		seat_id BIGSERIAL PRIMARY KEY,
		event_id BIGINT NOT NULL,
		seat_number VARCHAR(8) NOT NULL,
		seat_row VARCHAR(4) NOT NULL,
		seat_type VARCHAR(32) NOT NULL,
		price BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_seats_event ON seats (event_id);
	CREATE INDEX IF NOT EXISTS idx_seats_status ON seats (event_id, status);`)
	return err
}

func CreateOrdersTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS orders (
		order_id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		pay_type VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		trans_id VARCHAR(64),
		gateway_session TEXT,
		paid_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id);
	CREATE INDEX IF NOT EXISTS idx_orders_sweep ON orders (status, created_at);`)
	return err
}

func CreateTicketsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tickets (
		ticket_id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders (order_id),
		seat_id BIGINT NOT NULL REFERENCES seats (seat_id),
		event_id BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_order ON tickets (order_id);
	CREATE INDEX IF NOT EXISTS idx_tickets_event ON tickets (event_id);`)
	return err
}
