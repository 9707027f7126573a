package event

import (
	"context"
	"errors"
	"fmt"

	"booking/entity"
	"booking/event"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

const resultCodeSuccess = 0

type SettlementRepo interface {
	SettlePaid(ctx context.Context, orderID int64, transID string) error
	SettleFailed(ctx context.Context, orderID int64) error
}

type EmailSender interface {
	SendOrderConfirmation(ctx context.Context, orderID, userID, amount int64) error
}

func NewProcessorConfig(logger watermill.LoggerAdapter, redisClient *redis.Client) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        redisClient,
				ConsumerGroup: "svc-booking." + params.HandlerName,
			}, logger)
		},
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return params.EventName, nil
		},
		Marshaler: cqrs.JSONMarshaler{
			GenerateName: cqrs.StructName,
		},
		Logger: logger,
	}
}

type Handler struct {
	orders SettlementRepo
	email  EmailSender
}

func NewHandler(orders SettlementRepo, email EmailSender) Handler {
	return Handler{
		orders: orders,
		email:  email,
	}
}

// SettlePayment applies exactly one terminal transition per gateway
// outcome. The two result paths fail differently on purpose: a success
// is a fact that must not be lost, so its errors are returned for retry
// and eventual dead-lettering; a failure cleanup is inventory hygiene,
// so its errors are logged and dropped.
func (h Handler) SettlePayment(ctx context.Context, e *event.PaymentReceived) error {
	logger := log.FromContext(ctx)

	if e.ResultCode == resultCodeSuccess {
		err := h.orders.SettlePaid(ctx, e.OrderID, e.TransID)

		var invalid entity.InvalidTransitionError
		if errors.As(err, &invalid) {
			// The sweeper already expired the order. Retrying cannot
			// change a terminal status; this needs an operator, not a
			// requeue loop.
			logger.
				WithField("order_id", e.OrderID).
				WithError(err).
				Warn("Payment success for an already-terminal order")
			return nil
		}
		if err != nil {
			return fmt.Errorf("settling order %d as paid: %w", e.OrderID, err)
		}

		return nil
	}

	if err := h.orders.SettleFailed(ctx, e.OrderID); err != nil {
		logger.
			WithField("order_id", e.OrderID).
			WithError(err).
			Error("Releasing inventory for failed payment")
	}

	return nil
}

// SendConfirmationEmail handles the email traffic class. It never shares
// a consumer group with settlement.
func (h Handler) SendConfirmationEmail(ctx context.Context, e *event.OrderConfirmed) error {
	if err := h.email.SendOrderConfirmation(ctx, e.OrderID, e.UserID, e.Amount); err != nil {
		return fmt.Errorf("sending confirmation for order %d: %w", e.OrderID, err)
	}

	return nil
}
