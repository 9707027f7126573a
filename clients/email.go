package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

// EmailClient asks the mail collaborator to send an order confirmation.
// Rendering and delivery are entirely the collaborator's problem.
type EmailClient struct {
	addr   string
	client *http.Client
}

func NewEmailClient(addr string) EmailClient {
	return EmailClient{
		addr: addr,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendConfirmationRequest struct {
	OrderID int64 `json:"order_id"`
	UserID  int64 `json:"user_id"`
	Amount  int64 `json:"amount"`
}

func (c EmailClient) SendOrderConfirmation(ctx context.Context, orderID, userID, amount int64) error {
	body, err := json.Marshal(sendConfirmationRequest{
		OrderID: orderID,
		UserID:  userID,
		Amount:  amount,
	})
	if err != nil {
		return fmt.Errorf("marshalling confirmation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/confirmations", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating confirmation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Correlation-ID", log.CorrelationIDFromContext(ctx))

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting confirmation request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	return nil
}
