package postgres

import (
	"context"
	"fmt"

	"booking/entity"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type SeatRepo struct {
	db *sqlx.DB
}

func NewSeatRepo(db *sqlx.DB) SeatRepo {
	return SeatRepo{
		db: db,
	}
}

// CreateSeats bulk-creates the seat grid for an event at venue setup:
// numRows rows labelled from 'A', seatsPerRow seats per row, all
// AVAILABLE at basePrice. Seats are created once and only transition
// status afterwards.
func (r SeatRepo) CreateSeats(ctx context.Context, eventID int64, numRows, seatsPerRow int, seatType string, basePrice int64) ([]entity.Seat, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var seats []entity.Seat
	for row := 0; row < numRows; row++ {
		rowLabel := string(rune('A' + row))
		for num := 1; num <= seatsPerRow; num++ {
			seat := entity.Seat{
				EventID: eventID,
				Number:  fmt.Sprintf("%s%d", rowLabel, num),
				Row:     rowLabel,
				Type:    seatType,
				Price:   basePrice,
				Status:  entity.SeatAvailable,
			}

			err := tx.QueryRowContext(ctx, `INSERT INTO seats
				(event_id, seat_number, seat_row, seat_type, price, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING seat_id;`,
				seat.EventID, seat.Number, seat.Row, seat.Type, seat.Price, seat.Status,
			).Scan(&seat.ID)
			if err != nil {
				return nil, fmt.Errorf("inserting seat %s: %w", seat.Number, err)
			}

			seats = append(seats, seat)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return seats, nil
}

func (r SeatRepo) ListByEvent(ctx context.Context, eventID int64) ([]entity.Seat, error) {
	var seats []entity.Seat
	err := r.db.SelectContext(ctx, &seats, `SELECT seat_id, event_id, seat_number, seat_row, seat_type, price, status
		FROM seats WHERE event_id = $1 ORDER BY seat_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying seats for event %d: %w", eventID, err)
	}

	return seats, nil
}

func (r SeatRepo) ListAvailableByEvent(ctx context.Context, eventID int64) ([]entity.Seat, error) {
	var seats []entity.Seat
	err := r.db.SelectContext(ctx, &seats, `SELECT seat_id, event_id, seat_number, seat_row, seat_type, price, status
		FROM seats WHERE event_id = $1 AND status = $2 ORDER BY seat_id`, eventID, entity.SeatAvailable)
	if err != nil {
		return nil, fmt.Errorf("querying available seats for event %d: %w", eventID, err)
	}

	return seats, nil
}

func (r SeatRepo) GetByIDs(ctx context.Context, seatIDs []int64) ([]entity.Seat, error) {
	var seats []entity.Seat
	err := r.db.SelectContext(ctx, &seats, `SELECT seat_id, event_id, seat_number, seat_row, seat_type, price, status
		FROM seats WHERE seat_id = ANY($1) ORDER BY seat_id`, pq.Array(seatIDs))
	if err != nil {
		return nil, fmt.Errorf("querying seats: %w", err)
	}

	return seats, nil
}
