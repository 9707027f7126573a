package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking/entity"
	"booking/event"
	"booking/message"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrSeatsNotFound is returned when a requested seat id does not resolve
// to a seat row.
var ErrSeatsNotFound = errors.New("some requested seats do not exist")

// ErrOrderNotFound is returned when an order id does not resolve.
var ErrOrderNotFound = errors.New("order not found")

// SeatUnavailableError is returned when a requested seat is not
// AVAILABLE. It is terminal for the attempt: the customer has to reselect
// seats, a retry with the same set cannot succeed.
type SeatUnavailableError struct {
	SeatNumber string
	Status     entity.SeatStatus
}

func (e SeatUnavailableError) Error() string {
	return fmt.Sprintf("seat %s is not available (status %s)", e.SeatNumber, e.Status)
}

func (e SeatUnavailableError) SeatUnavailable() bool {
	return true
}

type OrderRepo struct {
	db     *sqlx.DB
	logger watermill.LoggerAdapter
}

func NewOrderRepo(db *sqlx.DB, logger watermill.LoggerAdapter) OrderRepo {
	return OrderRepo{
		db:     db,
		logger: logger,
	}
}

// Create flips every requested seat AVAILABLE→HOLD and persists the
// order with one RESERVED ticket per seat, all in one transaction: either
// every row exists afterwards or none does. Callers must hold the lock
// coordinator handle for the same seat-id set.
func (r OrderRepo) Create(ctx context.Context, userID int64, seatIDs []int64, payType string) (entity.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.Order{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT seat_id, event_id, seat_number, seat_row, seat_type, price, status
		FROM seats WHERE seat_id = ANY($1) ORDER BY seat_id`, pq.Array(seatIDs))
	if err != nil {
		return entity.Order{}, fmt.Errorf("querying seats: %w", err)
	}

	var seats []entity.Seat
	for rows.Next() {
		var s entity.Seat
		if err := rows.Scan(&s.ID, &s.EventID, &s.Number, &s.Row, &s.Type, &s.Price, &s.Status); err != nil {
			rows.Close()
			return entity.Order{}, fmt.Errorf("scanning seat row: %w", err)
		}
		seats = append(seats, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return entity.Order{}, fmt.Errorf("reading seat rows: %w", err)
	}

	if len(seats) != len(seatIDs) {
		return entity.Order{}, ErrSeatsNotFound
	}

	var amount int64
	for _, seat := range seats {
		if seat.Status != entity.SeatAvailable {
			return entity.Order{}, SeatUnavailableError{SeatNumber: seat.Number, Status: seat.Status}
		}
		amount += seat.Price
	}

	res, err := tx.ExecContext(ctx, `UPDATE seats SET status = $1
		WHERE seat_id = ANY($2) AND status = $3`,
		entity.SeatHold, pq.Array(seatIDs), entity.SeatAvailable)
	if err != nil {
		return entity.Order{}, fmt.Errorf("holding seats: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return entity.Order{}, fmt.Errorf("getting rows affected: %w", err)
	} else if int(n) != len(seatIDs) {
		return entity.Order{}, fmt.Errorf("unexpected exec result: held %d of %d seats", n, len(seatIDs))
	}

	order := entity.Order{
		UserID:  userID,
		Amount:  amount,
		PayType: payType,
		Status:  entity.OrderPending,
	}
	err = tx.QueryRowContext(ctx, `INSERT INTO orders (user_id, amount, pay_type, status)
		VALUES ($1, $2, $3, $4)
		RETURNING order_id, created_at;`,
		order.UserID, order.Amount, order.PayType, order.Status,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return entity.Order{}, fmt.Errorf("inserting order: %w", err)
	}

	for _, seat := range seats {
		ticket := entity.Ticket{
			OrderID: order.ID,
			SeatID:  seat.ID,
			EventID: seat.EventID,
			Status:  entity.TicketReserved,
		}
		err := tx.QueryRowContext(ctx, `INSERT INTO tickets (order_id, seat_id, event_id, status)
			VALUES ($1, $2, $3, $4)
			RETURNING ticket_id;`,
			ticket.OrderID, ticket.SeatID, ticket.EventID, ticket.Status,
		).Scan(&ticket.ID)
		if err != nil {
			return entity.Order{}, fmt.Errorf("inserting ticket for seat %d: %w", seat.ID, err)
		}
		order.Tickets = append(order.Tickets, ticket)
	}

	if err := tx.Commit(); err != nil {
		return entity.Order{}, fmt.Errorf("committing transaction: %w", err)
	}

	return order, nil
}

// MarkWaitingPayment records the gateway's opaque session reference and
// moves the order PENDING→WAITING_PAYMENT.
func (r OrderRepo) MarkWaitingPayment(ctx context.Context, orderID int64, gatewaySession string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = $1, gateway_session = $2
		WHERE order_id = $3 AND status = $4`,
		entity.OrderWaitingPayment, gatewaySession, orderID, entity.OrderPending)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", orderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n != 1 {
		return entity.InvalidTransitionError{Entity: "order", From: "?", To: string(entity.OrderWaitingPayment)}
	}

	return nil
}

// Release is the compensating action when gateway-session creation
// fails: seats and tickets go back to AVAILABLE while the order stays
// PENDING for the sweeper to expire.
func (r OrderRepo) Release(ctx context.Context, orderID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := releaseInventory(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// SettlePaid applies a successful payment outcome: order→PAID with the
// gateway transaction id and paid-at, tickets RESERVED→SOLD, seats
// HOLD→BOOKED, and an OrderConfirmed event published in the same
// transaction through the outbox. A duplicate delivery for an already
// PAID order is a no-op; a success arriving after the sweeper won the
// terminal race, or for an order whose inventory was compensated away,
// is rejected with an InvalidTransitionError.
func (r OrderRepo) SettlePaid(ctx context.Context, orderID int64, transID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := getForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	if order.Status == entity.OrderPaid {
		return nil
	}
	if !order.Status.CanTransitionTo(entity.OrderPaid) {
		return entity.InvalidTransitionError{Entity: "order", From: string(order.Status), To: string(entity.OrderPaid)}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `UPDATE orders SET status = $1, trans_id = $2, paid_at = $3
		WHERE order_id = $4`,
		entity.OrderPaid, transID, now, orderID)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", orderID, err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE tickets SET status = $1
		WHERE order_id = $2 AND status = $3`,
		entity.TicketSold, orderID, entity.TicketReserved)
	if err != nil {
		return fmt.Errorf("updating tickets for order %d: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		// The inventory was compensated away after a gateway failure.
		// There is nothing left to book, and the seats may already be
		// held by another order; a PAID order with no SOLD tickets must
		// never exist.
		return entity.InvalidTransitionError{Entity: "ticket", From: string(entity.TicketAvailable), To: string(entity.TicketSold)}
	}

	// Book only the seats of the tickets flipped above, never a seat a
	// stale ticket row still names.
	_, err = tx.ExecContext(ctx, `UPDATE seats SET status = $1
		WHERE status = $2 AND seat_id IN (
			SELECT seat_id FROM tickets WHERE order_id = $3 AND status = $4)`,
		entity.SeatBooked, entity.SeatHold, orderID, entity.TicketSold)
	if err != nil {
		return fmt.Errorf("updating seats for order %d: %w", orderID, err)
	}

	e := event.NewOrderConfirmed(transID, order.ID, order.UserID, order.Amount, order.PayType)
	if err := message.PublishInTx(ctx, e, tx, r.logger); err != nil {
		return fmt.Errorf("publishing order confirmed event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// SettleFailed applies a failed payment outcome, releasing inventory
// immediately instead of waiting for the TTL sweep. Any already-terminal
// order makes this a no-op.
func (r OrderRepo) SettleFailed(ctx context.Context, orderID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := getForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	if order.Status.Terminal() {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = $1 WHERE order_id = $2`,
		entity.OrderPaymentFailed, orderID); err != nil {
		return fmt.Errorf("updating order %d: %w", orderID, err)
	}

	if err := releaseInventory(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Expire moves an abandoned order to EXPIRED and releases its inventory.
// It reports false without error when the settlement consumer already
// won the terminal race.
func (r OrderRepo) Expire(ctx context.Context, orderID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := getForUpdate(ctx, tx, orderID)
	if err != nil {
		return false, err
	}

	if !order.Status.CanTransitionTo(entity.OrderExpired) {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = $1 WHERE order_id = $2`,
		entity.OrderExpired, orderID); err != nil {
		return false, fmt.Errorf("updating order %d: %w", orderID, err)
	}

	if err := releaseInventory(ctx, tx, orderID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}

	return true, nil
}

// FindExpirable lists orders still PENDING or WAITING_PAYMENT that were
// created before the cutoff.
func (r OrderRepo) FindExpirable(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT order_id FROM orders
		WHERE status = ANY($1) AND created_at < $2 ORDER BY order_id`,
		pq.Array([]string{string(entity.OrderPending), string(entity.OrderWaitingPayment)}), cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying expirable orders: %w", err)
	}

	return ids, nil
}

func (r OrderRepo) Get(ctx context.Context, orderID int64) (entity.Order, error) {
	var order entity.Order
	err := r.db.GetContext(ctx, &order, `SELECT order_id, user_id, amount, pay_type, status, trans_id, gateway_session, paid_at, created_at
		FROM orders WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return entity.Order{}, fmt.Errorf("querying order %d: %w", orderID, err)
	}

	if err := r.loadTickets(ctx, &order); err != nil {
		return entity.Order{}, err
	}

	return order, nil
}

func (r OrderRepo) ListByUser(ctx context.Context, userID int64) ([]entity.Order, error) {
	var orders []entity.Order
	err := r.db.SelectContext(ctx, &orders, `SELECT order_id, user_id, amount, pay_type, status, trans_id, gateway_session, paid_at, created_at
		FROM orders WHERE user_id = $1 ORDER BY order_id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying orders for user %d: %w", userID, err)
	}

	for i := range orders {
		if err := r.loadTickets(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

func (r OrderRepo) loadTickets(ctx context.Context, order *entity.Order) error {
	err := r.db.SelectContext(ctx, &order.Tickets, `SELECT ticket_id, order_id, seat_id, event_id, status
		FROM tickets WHERE order_id = $1 ORDER BY ticket_id`, order.ID)
	if err != nil {
		return fmt.Errorf("querying tickets for order %d: %w", order.ID, err)
	}

	return nil
}

func getForUpdate(ctx context.Context, tx *sql.Tx, orderID int64) (entity.Order, error) {
	var order entity.Order
	err := tx.QueryRowContext(ctx, `SELECT order_id, user_id, amount, pay_type, status
		FROM orders WHERE order_id = $1 FOR UPDATE`, orderID,
	).Scan(&order.ID, &order.UserID, &order.Amount, &order.PayType, &order.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return entity.Order{}, fmt.Errorf("locking order %d: %w", orderID, err)
	}

	return order, nil
}

func releaseInventory(ctx context.Context, tx *sql.Tx, orderID int64) error {
	// Only seats named by this order's still-RESERVED tickets: once the
	// tickets have been released, a later sweep of the same order must
	// not free a seat that another order now holds.
	_, err := tx.ExecContext(ctx, `UPDATE seats SET status = $1
		WHERE status = $2 AND seat_id IN (
			SELECT seat_id FROM tickets WHERE order_id = $3 AND status = $4)`,
		entity.SeatAvailable, entity.SeatHold, orderID, entity.TicketReserved)
	if err != nil {
		return fmt.Errorf("releasing seats for order %d: %w", orderID, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE tickets SET status = $1
		WHERE order_id = $2 AND status = $3`,
		entity.TicketAvailable, orderID, entity.TicketReserved)
	if err != nil {
		return fmt.Errorf("releasing tickets for order %d: %w", orderID, err)
	}

	return nil
}
