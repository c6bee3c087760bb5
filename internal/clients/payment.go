package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aagii9912/smarthub-sub002/internal/config"
)

// Invoice is a created payment invoice with its deep link.
type Invoice struct {
	ID         string  `json:"invoice_id"`
	Amount     float64 `json:"amount"`
	PaymentURL string  `json:"payment_url"`
	QRText     string  `json:"qr_text,omitempty"`
}

// PaymentClient creates invoices against the payment gateway.
type PaymentClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewPaymentClient(cfg config.PaymentConfig) *PaymentClient {
	return &PaymentClient{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// CreateInvoice requests an invoice for one order.
func (c *PaymentClient) CreateInvoice(ctx context.Context, orderID string, amount float64, description string) (*Invoice, error) {
	body, err := json.Marshal(map[string]any{
		"order_id":    orderID,
		"amount":      amount,
		"description": description,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding invoice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoice", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building invoice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, upstreamError("payment gateway", resp)
	}

	var invoice Invoice
	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return nil, fmt.Errorf("decoding invoice response: %w", err)
	}
	return &invoice, nil
}
