package entity

import "fmt"

type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHold      SeatStatus = "HOLD"
	SeatBooked    SeatStatus = "BOOKED"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderWaitingPayment OrderStatus = "WAITING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderPaymentFailed  OrderStatus = "PAYMENT_FAILED"
	OrderExpired        OrderStatus = "EXPIRED"
)

type TicketStatus string

const (
	TicketReserved  TicketStatus = "RESERVED"
	TicketSold      TicketStatus = "SOLD"
	TicketAvailable TicketStatus = "AVAILABLE"
)

var seatTransitions = map[SeatStatus][]SeatStatus{
	SeatAvailable: {SeatHold},
	SeatHold:      {SeatBooked, SeatAvailable},
	SeatBooked:    {},
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderWaitingPayment, OrderPaid, OrderPaymentFailed, OrderExpired},
	OrderWaitingPayment: {OrderPaid, OrderPaymentFailed, OrderExpired},
	OrderPaid:           {},
	OrderPaymentFailed:  {},
	OrderExpired:        {},
}

// CanTransitionTo reports whether the seat status change is one of the
// permitted from→to pairs.
func (s SeatStatus) CanTransitionTo(next SeatStatus) bool {
	for _, allowed := range seatTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the order status change is permitted.
// Terminal statuses (PAID, PAYMENT_FAILED, EXPIRED) allow no further
// transitions, which is what resolves the sweeper/consumer race.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the order has reached a final status.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// MirrorsSeat reports whether the ticket status is the required mirror of
// the paired seat's status (RESERVED↔HOLD, SOLD↔BOOKED,
// AVAILABLE↔AVAILABLE).
func (s TicketStatus) MirrorsSeat(seat SeatStatus) bool {
	switch s {
	case TicketReserved:
		return seat == SeatHold
	case TicketSold:
		return seat == SeatBooked
	case TicketAvailable:
		return seat == SeatAvailable
	}
	return false
}

// InvalidTransitionError is returned when a guarded status change is
// rejected by the transition table.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

func (e InvalidTransitionError) InvalidTransition() bool {
	return true
}
