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

// PaymentGatewayClient creates payment sessions with the external
// gateway. The gateway's protocol is a black box to the rest of the
// system: it takes an amount and a merchant order id and returns an
// opaque redirect URL.
type PaymentGatewayClient struct {
	addr   string
	client *http.Client
}

func NewPaymentGatewayClient(addr string) PaymentGatewayClient {
	return PaymentGatewayClient{
		addr: addr,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type createSessionRequest struct {
	OrderID     int64  `json:"order_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type createSessionResponse struct {
	PayURL string `json:"pay_url"`
}

func (c PaymentGatewayClient) CreateSession(ctx context.Context, orderID, amount int64, description string) (string, error) {
	body, err := json.Marshal(createSessionRequest{
		OrderID:     orderID,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Correlation-ID", log.CorrelationIDFromContext(ctx))

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting session request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var session createSessionResponse
	if err := json.NewDecoder(res.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("decoding session response: %w", err)
	}

	return session.PayURL, nil
}
