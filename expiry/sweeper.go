// Package expiry reclaims seats whose reservation never reached a
// terminal payment outcome: the backstop against abandoned checkouts and
// gateway outages.
package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type OrderRepo interface {
	FindExpirable(ctx context.Context, cutoff time.Time) ([]int64, error)
	Expire(ctx context.Context, orderID int64) (bool, error)
}

type Sweeper struct {
	orders   OrderRepo
	holdTTL  time.Duration
	interval time.Duration

	now func() time.Time
}

func NewSweeper(orders OrderRepo, holdTTL, interval time.Duration) *Sweeper {
	return &Sweeper{
		orders:   orders,
		holdTTL:  holdTTL,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				logrus.WithError(err).Error("Sweeping expired holds")
			}
		}
	}
}

// Sweep expires every order still PENDING or WAITING_PAYMENT past the
// hold TTL and releases its seats. It races the settlement consumer:
// Expire reports false for orders the consumer settled first, and that
// outcome stands.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.holdTTL)

	ids, err := s.orders.FindExpirable(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("finding expirable orders: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	var expired, lost int
	for _, orderID := range ids {
		ok, err := s.orders.Expire(ctx, orderID)
		if err != nil {
			logrus.WithField("order_id", orderID).WithError(err).Error("Expiring order")
			continue
		}
		if ok {
			expired++
		} else {
			lost++
		}
	}

	logrus.WithFields(logrus.Fields{
		"expired":           expired,
		"settled_meanwhile": lost,
	}).Info("Swept expired holds")

	return nil
}
