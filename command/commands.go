package command

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

type header struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func newHeader(idempotencyKey string) header {
	return header{
		ID:             watermill.NewUUID(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

// ReplaySettlement re-applies a payment outcome that ended up on the dead
// letter queue. Operators publish it from the admin endpoint after manual
// reconciliation; the status-transition guards make replays safe.
type ReplaySettlement struct {
	Header      header `json:"header"`
	OrderID     int64  `json:"order_id"`
	ResultCode  int    `json:"result_code"`
	TransID     string `json:"trans_id"`
	Amount      int64  `json:"amount"`
	PaymentType string `json:"payment_type"`
}

func NewReplaySettlement(idempotencyKey string, orderID int64, resultCode int, transID string, amount int64, paymentType string) ReplaySettlement {
	return ReplaySettlement{
		Header:      newHeader(idempotencyKey),
		OrderID:     orderID,
		ResultCode:  resultCode,
		TransID:     transID,
		Amount:      amount,
		PaymentType: paymentType,
	}
}
