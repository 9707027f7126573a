package http

import (
	"net/http"

	commonHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/labstack/echo/v4"
)

var ErrServerClosed = http.ErrServerClosed

func NewRouter(
	orderCreator OrderCreator,
	orderRepo OrderRepo,
	seatRepo SeatRepo,
	seatCache SeatCacheWarmer,
	eventBus EventBus,
	commandBus CommandBus,
) *echo.Echo {
	e := commonHTTP.NewEcho()

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	h := handler{
		orderCreator: orderCreator,
		orderRepo:    orderRepo,
		seatRepo:     seatRepo,
		seatCache:    seatCache,
		eventBus:     eventBus,
		commandBus:   commandBus,
	}

	e.POST("/orders", h.CreateOrder)
	e.GET("/orders", h.ListOrders)
	e.GET("/orders/:order_id", h.GetOrder)

	e.POST("/payments/notifications", h.PostPaymentNotification)

	e.POST("/events/:event_id/seats", h.CreateSeats)
	e.GET("/events/:event_id/seats", h.ListSeats)
	e.GET("/events/:event_id/seats/available", h.ListAvailableSeats)
	e.POST("/events/:event_id/seats/cache", h.WarmSeatCache)

	e.POST("/admin/settlements/replay", h.PostSettlementReplay)

	return e
}
