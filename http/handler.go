package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"booking/command"
	"booking/entity"
	"booking/event"
	"booking/lock"
	"booking/order"
	"booking/postgres"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v3"
)

const headerKeyUserID = "X-User-ID"

type OrderCreator interface {
	Create(ctx context.Context, userID int64, seatIDs []int64, payType string) (order.Result, error)
}

type OrderRepo interface {
	Get(ctx context.Context, orderID int64) (entity.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]entity.Order, error)
}

type SeatRepo interface {
	CreateSeats(ctx context.Context, eventID int64, numRows, seatsPerRow int, seatType string, basePrice int64) ([]entity.Seat, error)
	ListByEvent(ctx context.Context, eventID int64) ([]entity.Seat, error)
	ListAvailableByEvent(ctx context.Context, eventID int64) ([]entity.Seat, error)
}

type SeatCacheWarmer interface {
	Warm(ctx context.Context, seats []entity.Seat) error
}

type EventBus interface {
	Publish(ctx context.Context, event any) error
}

type CommandBus interface {
	Send(ctx context.Context, cmd any) error
}

type handler struct {
	orderCreator OrderCreator
	orderRepo    OrderRepo
	seatRepo     SeatRepo
	seatCache    SeatCacheWarmer
	eventBus     EventBus
	commandBus   CommandBus
}

type createOrderRequest struct {
	SeatIDs []int64 `json:"seat_ids"`
	PayType string  `json:"pay_type"`
}

type createOrderResponse struct {
	Order  entity.Order `json:"order"`
	PayURL string       `json:"pay_url"`
}

func (h handler) CreateOrder(c echo.Context) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return err
	}

	var request createOrderRequest
	if err := c.Bind(&request); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to parse request",
			Internal: fmt.Errorf("failed to bind request: %w", err),
		}
	}

	res, err := h.orderCreator.Create(c.Request().Context(), userID, request.SeatIDs, request.PayType)
	switch {
	case err == nil:
	case errors.Is(err, order.ErrNoSeats):
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "order must cover at least one seat",
		}
	case errors.Is(err, lock.ErrContention):
		return &echo.HTTPError{
			Code:    http.StatusConflict,
			Message: "seats are being processed by another request, please try again",
		}
	case errors.Is(err, postgres.ErrSeatsNotFound):
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: "some requested seats do not exist",
		}
	case isSeatUnavailable(err):
		return &echo.HTTPError{
			Code:    http.StatusConflict,
			Message: "seat unavailable, please reselect",
		}
	case isPaymentInitiationFailure(err):
		return &echo.HTTPError{
			Code:     http.StatusBadGateway,
			Message:  "payment could not be initiated, please retry",
			Internal: err,
		}
	default:
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("creating order: %w", err),
		}
	}

	return c.JSON(http.StatusCreated, createOrderResponse{
		Order:  res.Order,
		PayURL: res.PayURL,
	})
}

func (h handler) GetOrder(c echo.Context) error {
	orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "invalid order id",
		}
	}

	o, err := h.orderRepo.Get(c.Request().Context(), orderID)
	if errors.Is(err, postgres.ErrOrderNotFound) {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: "order not found",
		}
	}
	if err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("getting order: %w", err),
		}
	}

	return c.JSON(http.StatusOK, o)
}

func (h handler) ListOrders(c echo.Context) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return err
	}

	orders, err := h.orderRepo.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("listing orders: %w", err),
		}
	}

	return c.JSON(http.StatusOK, orders)
}

type paymentNotificationRequest struct {
	OrderID     int64  `json:"order_id"`
	ResultCode  int    `json:"result_code"`
	TransID     string `json:"trans_id"`
	Amount      int64  `json:"amount"`
	PaymentType string `json:"payment_type"`
}

// PostPaymentNotification accepts the gateway's asynchronous callback.
// Signature verification happens upstream; here the outcome is only
// turned into a durable message for the settlement consumer.
func (h handler) PostPaymentNotification(c echo.Context) error {
	var request paymentNotificationRequest
	if err := c.Bind(&request); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to parse request",
			Internal: fmt.Errorf("failed to bind request: %w", err),
		}
	}

	idempotencyKey := request.TransID
	if idempotencyKey == "" {
		idempotencyKey = "gen_" + shortuuid.New()
	}

	e := event.NewPaymentReceived(
		idempotencyKey,
		request.OrderID,
		request.ResultCode,
		request.TransID,
		request.Amount,
		request.PaymentType,
	)
	if err := h.eventBus.Publish(c.Request().Context(), e); err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("publishing payment received event: %w", err),
		}
	}

	return c.NoContent(http.StatusNoContent)
}

// PostSettlementReplay lets an operator re-apply a dead-lettered
// settlement after manual reconciliation.
func (h handler) PostSettlementReplay(c echo.Context) error {
	var request paymentNotificationRequest
	if err := c.Bind(&request); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to parse request",
			Internal: fmt.Errorf("failed to bind request: %w", err),
		}
	}

	cmd := command.NewReplaySettlement(
		"replay_"+shortuuid.New(),
		request.OrderID,
		request.ResultCode,
		request.TransID,
		request.Amount,
		request.PaymentType,
	)
	if err := h.commandBus.Send(c.Request().Context(), cmd); err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("sending replay settlement command: %w", err),
		}
	}

	return c.NoContent(http.StatusAccepted)
}

type createSeatsRequest struct {
	NumRows     int    `json:"num_rows"`
	SeatsPerRow int    `json:"seats_per_row"`
	SeatType    string `json:"seat_type"`
	BasePrice   int64  `json:"base_price"`
}

func (h handler) CreateSeats(c echo.Context) error {
	eventID, err := eventIDFromPath(c)
	if err != nil {
		return err
	}

	var request createSeatsRequest
	if err := c.Bind(&request); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to parse request",
			Internal: fmt.Errorf("failed to bind request: %w", err),
		}
	}
	if request.NumRows < 1 || request.NumRows > 26 || request.SeatsPerRow < 1 {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "num_rows must be 1-26 and seats_per_row at least 1",
		}
	}

	seats, err := h.seatRepo.CreateSeats(c.Request().Context(), eventID, request.NumRows, request.SeatsPerRow, request.SeatType, request.BasePrice)
	if err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("creating seats: %w", err),
		}
	}

	// Best effort: the cache is advisory.
	if err := h.seatCache.Warm(c.Request().Context(), seats); err != nil {
		c.Logger().Warnf("warming seat cache: %s", err)
	}

	return c.JSON(http.StatusCreated, seats)
}

func (h handler) ListSeats(c echo.Context) error {
	eventID, err := eventIDFromPath(c)
	if err != nil {
		return err
	}

	seats, err := h.seatRepo.ListByEvent(c.Request().Context(), eventID)
	if err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("listing seats: %w", err),
		}
	}

	return c.JSON(http.StatusOK, seats)
}

func (h handler) ListAvailableSeats(c echo.Context) error {
	eventID, err := eventIDFromPath(c)
	if err != nil {
		return err
	}

	seats, err := h.seatRepo.ListAvailableByEvent(c.Request().Context(), eventID)
	if err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("listing available seats: %w", err),
		}
	}

	return c.JSON(http.StatusOK, seats)
}

func (h handler) WarmSeatCache(c echo.Context) error {
	eventID, err := eventIDFromPath(c)
	if err != nil {
		return err
	}

	seats, err := h.seatRepo.ListByEvent(c.Request().Context(), eventID)
	if err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("listing seats: %w", err),
		}
	}

	if err := h.seatCache.Warm(c.Request().Context(), seats); err != nil {
		return &echo.HTTPError{
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("warming seat cache: %w", err),
		}
	}

	return c.JSON(http.StatusOK, map[string]int{"seats": len(seats)})
}

// userIDFromHeader reads the authenticated user id supplied by the
// identity collaborator. It is trusted input, threaded explicitly rather
// than read from any ambient context.
func userIDFromHeader(c echo.Context) (int64, error) {
	userID, err := strconv.ParseInt(c.Request().Header.Get(headerKeyUserID), 10, 64)
	if err != nil {
		return 0, &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "missing or invalid " + headerKeyUserID + " header",
		}
	}

	return userID, nil
}

func eventIDFromPath(c echo.Context) (int64, error) {
	eventID, err := strconv.ParseInt(c.Param("event_id"), 10, 64)
	if err != nil {
		return 0, &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "invalid event id",
		}
	}

	return eventID, nil
}

func isSeatUnavailable(err error) bool {
	var unavailable interface{ SeatUnavailable() bool }
	return errors.As(err, &unavailable) && unavailable.SeatUnavailable()
}

func isPaymentInitiationFailure(err error) bool {
	var failure interface{ PaymentInitiationFailed() bool }
	return errors.As(err, &failure) && failure.PaymentInitiationFailed()
}
