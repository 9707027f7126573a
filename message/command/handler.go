package command

import (
	"context"
	"errors"
	"fmt"

	"booking/command"
	"booking/entity"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

type SettlementRepo interface {
	SettlePaid(ctx context.Context, orderID int64, transID string) error
	SettleFailed(ctx context.Context, orderID int64) error
}

type Handler struct {
	orders SettlementRepo
}

func NewHandler(orders SettlementRepo) Handler {
	return Handler{
		orders: orders,
	}
}

// ReplaySettlement re-applies a dead-lettered payment outcome on operator
// request. The repo's transition guards make a replay of an already
// settled order a no-op.
func (h Handler) ReplaySettlement(ctx context.Context, cmd *command.ReplaySettlement) error {
	logger := log.FromContext(ctx).WithField("order_id", cmd.OrderID)

	if cmd.ResultCode != 0 {
		if err := h.orders.SettleFailed(ctx, cmd.OrderID); err != nil {
			return fmt.Errorf("replaying failed settlement for order %d: %w", cmd.OrderID, err)
		}
		logger.Info("Replayed failed settlement")
		return nil
	}

	err := h.orders.SettlePaid(ctx, cmd.OrderID, cmd.TransID)

	var invalid entity.InvalidTransitionError
	if errors.As(err, &invalid) {
		logger.WithError(err).Warn("Replay rejected by transition guard")
		return nil
	}
	if err != nil {
		return fmt.Errorf("replaying settlement for order %d: %w", cmd.OrderID, err)
	}

	logger.Info("Replayed settlement")
	return nil
}
