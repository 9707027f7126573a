package event

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

// PaymentReceived carries the gateway's asynchronous payment outcome from
// the verified callback handler to the settlement consumer. ResultCode 0
// means the payment succeeded.
type PaymentReceived struct {
	Header      header `json:"header"`
	OrderID     int64  `json:"order_id"`
	ResultCode  int    `json:"result_code"`
	TransID     string `json:"trans_id"`
	Amount      int64  `json:"amount"`
	PaymentType string `json:"payment_type"`
}

func NewPaymentReceived(idempotencyKey string, orderID int64, resultCode int, transID string, amount int64, paymentType string) PaymentReceived {
	return PaymentReceived{
		Header:      newHeader(idempotencyKey),
		OrderID:     orderID,
		ResultCode:  resultCode,
		TransID:     transID,
		Amount:      amount,
		PaymentType: paymentType,
	}
}

// OrderConfirmed is published inside the settlement transaction once an
// order reaches PAID. It feeds the email traffic class, which is isolated
// from settlement by its own consumer group.
type OrderConfirmed struct {
	Header  header `json:"header"`
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Amount  int64  `json:"amount"`
	PayType string `json:"pay_type"`
}

func NewOrderConfirmed(idempotencyKey string, orderID, userID, amount int64, payType string) OrderConfirmed {
	return OrderConfirmed{
		Header:  newHeader(idempotencyKey),
		OrderID: orderID,
		UserID:  userID,
		Amount:  amount,
		PayType: payType,
	}
}
