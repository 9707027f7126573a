package entity

import "time"

// Seat is a single sellable inventory unit belonging to one event. Its
// Status column is the single source of truth for sellability.
type Seat struct {
	ID      int64      `json:"seat_id" db:"seat_id"`
	EventID int64      `json:"event_id" db:"event_id"`
	Number  string     `json:"seat_number" db:"seat_number"`
	Row     string     `json:"seat_row" db:"seat_row"`
	Type    string     `json:"seat_type" db:"seat_type"`
	Price   int64      `json:"price" db:"price"`
	Status  SeatStatus `json:"status" db:"status"`
}

// Order is one checkout attempt covering one or more seats. Amount is the
// sum of seat prices at creation and never changes afterwards.
type Order struct {
	ID             int64       `json:"order_id" db:"order_id"`
	UserID         int64       `json:"user_id" db:"user_id"`
	Amount         int64       `json:"amount" db:"amount"`
	PayType        string      `json:"pay_type" db:"pay_type"`
	Status         OrderStatus `json:"status" db:"status"`
	TransID        *string     `json:"trans_id" db:"trans_id"`
	GatewaySession *string     `json:"gateway_session" db:"gateway_session"`
	PaidAt         *time.Time  `json:"paid_at" db:"paid_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`

	Tickets []Ticket `json:"tickets" db:"-"`
}

// Ticket is the per-seat record within an order. It is created with the
// order and mutated only in lockstep with its seat.
type Ticket struct {
	ID      int64        `json:"ticket_id" db:"ticket_id"`
	OrderID int64        `json:"order_id" db:"order_id"`
	SeatID  int64        `json:"seat_id" db:"seat_id"`
	EventID int64        `json:"event_id" db:"event_id"`
	Status  TicketStatus `json:"status" db:"status"`
}
