package tests_test

import (
	"context"
	"fmt"
	"sync"
)

type MockPaymentGateway struct {
	lock     sync.Mutex
	Sessions []CreateSessionRequest

	// When set, CreateSession fails and the order must be compensated.
	Err error
}

type CreateSessionRequest struct {
	orderID     int64
	amount      int64
	description string
}

func (m *MockPaymentGateway) CreateSession(_ context.Context, orderID, amount int64, description string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.Err != nil {
		return "", m.Err
	}

	m.Sessions = append(m.Sessions, CreateSessionRequest{orderID: orderID, amount: amount, description: description})

	return fmt.Sprintf("https://pay.example.com/sessions/%d", orderID), nil
}

type MockEmailSender struct {
	lock          sync.Mutex
	Confirmations []ConfirmationRequest
}

type ConfirmationRequest struct {
	orderID int64
	userID  int64
	amount  int64
}

func (m *MockEmailSender) SendOrderConfirmation(_ context.Context, orderID, userID, amount int64) error {
	m.lock.Lock()
	m.Confirmations = append(m.Confirmations, ConfirmationRequest{orderID: orderID, userID: userID, amount: amount})
	m.lock.Unlock()

	return nil
}

func (m *MockEmailSender) ConfirmationFor(orderID int64) (ConfirmationRequest, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, c := range m.Confirmations {
		if c.orderID == orderID {
			return c, true
		}
	}

	return ConfirmationRequest{}, false
}
