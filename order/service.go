// Package order implements the checkout pipeline: lock the seat set,
// hold the seats and persist the order, then start a payment session.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking/entity"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

// ErrNoSeats is returned when a checkout request names no seats.
var ErrNoSeats = errors.New("order must cover at least one seat")

// PaymentInitiationError means the gateway session could not be created.
// The seats have already been released; the customer can retry checkout.
type PaymentInitiationError struct {
	Err error
}

func (e PaymentInitiationError) Error() string {
	return fmt.Sprintf("initiating payment: %s", e.Err)
}

func (e PaymentInitiationError) Unwrap() error {
	return e.Err
}

func (e PaymentInitiationError) PaymentInitiationFailed() bool {
	return true
}

type LockHandle interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Acquire(ctx context.Context, seatIDs []int64, wait, hold time.Duration) (LockHandle, error)
}

type OrderRepo interface {
	Create(ctx context.Context, userID int64, seatIDs []int64, payType string) (entity.Order, error)
	MarkWaitingPayment(ctx context.Context, orderID int64, gatewaySession string) error
	Release(ctx context.Context, orderID int64) error
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, orderID, amount int64, description string) (string, error)
}

type SeatCache interface {
	Set(ctx context.Context, eventID, seatID int64, status entity.SeatStatus) error
}

type Result struct {
	Order  entity.Order
	PayURL string
}

type Service struct {
	locker  Locker
	orders  OrderRepo
	gateway PaymentGateway
	cache   SeatCache

	lockWait time.Duration
	lockHold time.Duration
}

func NewService(locker Locker, orders OrderRepo, gateway PaymentGateway, cache SeatCache, lockWait, lockHold time.Duration) *Service {
	return &Service{
		locker:   locker,
		orders:   orders,
		gateway:  gateway,
		cache:    cache,
		lockWait: lockWait,
		lockHold: lockHold,
	}
}

// Create runs one checkout attempt for userID over seatIDs. The critical
// section covers only seat validation, the status flip and order
// persistence; the lock is released before the gateway call, so an
// uncontrolled external latency never extends the mutex. If the gateway
// call then fails, the already-persisted hold is compensated by releasing
// the seats.
//
// Lock contention comes back as lock.ErrContention and is the caller's
// retry decision, never an internal loop.
func (s *Service) Create(ctx context.Context, userID int64, seatIDs []int64, payType string) (Result, error) {
	seatIDs = dedupeSeatIDs(seatIDs)
	if len(seatIDs) == 0 {
		return Result{}, ErrNoSeats
	}

	logger := log.FromContext(ctx).WithField("user_id", userID)

	handle, err := s.locker.Acquire(ctx, seatIDs, s.lockWait, s.lockHold)
	if err != nil {
		return Result{}, err
	}
	// Covers every early return below; Release is idempotent.
	defer func() {
		if err := handle.Release(ctx); err != nil {
			logger.WithError(err).Error("Releasing seat lock")
		}
	}()

	order, err := s.orders.Create(ctx, userID, seatIDs, payType)
	if err != nil {
		return Result{}, err
	}

	logger = logger.WithField("order_id", order.ID)
	s.cacheSeatStatus(ctx, order, entity.SeatHold)

	if err := handle.Release(ctx); err != nil {
		logger.WithError(err).Error("Releasing seat lock")
	}

	payURL, err := s.gateway.CreateSession(ctx, order.ID, order.Amount, fmt.Sprintf("Event ticket order #%d", order.ID))
	if err != nil {
		if releaseErr := s.orders.Release(ctx, order.ID); releaseErr != nil {
			// Seats stay HOLD until the sweeper expires the order.
			logger.WithError(releaseErr).Error("Releasing seats after gateway failure")
		} else {
			s.cacheSeatStatus(ctx, order, entity.SeatAvailable)
		}

		return Result{}, PaymentInitiationError{Err: err}
	}

	if err := s.orders.MarkWaitingPayment(ctx, order.ID, payURL); err != nil {
		return Result{}, fmt.Errorf("marking order %d waiting for payment: %w", order.ID, err)
	}

	order.Status = entity.OrderWaitingPayment
	order.GatewaySession = &payURL

	return Result{Order: order, PayURL: payURL}, nil
}

// dedupeSeatIDs drops repeated ids so a request naming a seat twice is
// treated as one seat, not as a missing one.
func dedupeSeatIDs(seatIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(seatIDs))
	unique := make([]int64, 0, len(seatIDs))
	for _, id := range seatIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	return unique
}

// cacheSeatStatus refreshes the advisory cache. Failures are logged and
// ignored: the cache must never affect the outcome of a checkout.
func (s *Service) cacheSeatStatus(ctx context.Context, order entity.Order, status entity.SeatStatus) {
	for _, ticket := range order.Tickets {
		if err := s.cache.Set(ctx, ticket.EventID, ticket.SeatID, status); err != nil {
			log.FromContext(ctx).WithError(err).Warn("Updating seat status cache")
			return
		}
	}
}
