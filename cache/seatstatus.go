// Package cache mirrors seat statuses into Redis as a read-through
// performance hint. The cache is advisory only: the Postgres seat row is
// the single source of truth and hold/book decisions never consult it.
package cache

import (
	"context"
	"fmt"
	"time"

	"booking/entity"

	"github.com/redis/go-redis/v9"
)

type SeatStatus struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewSeatStatus(client redis.Cmdable, ttl time.Duration) *SeatStatus {
	return &SeatStatus{
		client: client,
		ttl:    ttl,
	}
}

func seatKey(eventID, seatID int64) string {
	return fmt.Sprintf("event:%d::seat:%d", eventID, seatID)
}

// Warm writes the current status of every seat. Used after venue setup
// and to refresh a whole event.
func (c *SeatStatus) Warm(ctx context.Context, seats []entity.Seat) error {
	for _, seat := range seats {
		if err := c.Set(ctx, seat.EventID, seat.ID, seat.Status); err != nil {
			return err
		}
	}
	return nil
}

func (c *SeatStatus) Set(ctx context.Context, eventID, seatID int64, status entity.SeatStatus) error {
	if err := c.client.Set(ctx, seatKey(eventID, seatID), string(status), c.ttl).Err(); err != nil {
		return fmt.Errorf("caching status for seat %d: %w", seatID, err)
	}
	return nil
}

// Get returns the cached status, or ok=false on a miss. Callers must
// treat a hit as a hint, never as permission to sell.
func (c *SeatStatus) Get(ctx context.Context, eventID, seatID int64) (entity.SeatStatus, bool, error) {
	status, err := c.client.Get(ctx, seatKey(eventID, seatID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cached status for seat %d: %w", seatID, err)
	}

	return entity.SeatStatus(status), true, nil
}
