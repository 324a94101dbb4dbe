// Package payment talks to the external payment gateway: it creates charge
// intents (gateway orders) and verifies the signed payment proof returned
// to the client after checkout.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Order is a charge intent created on the gateway.
type Order struct {
	ID          string `json:"id"`
	Receipt     string `json:"receipt"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

// Gateway creates charge intents keyed by a server-generated receipt id.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, amountMinor int64, receipt string, notes map[string]string) (Order, error)
}

// HTTPGateway is a Razorpay-compatible orders API client.
type HTTPGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	currency  string
	logger    *logrus.Logger
	hc        *http.Client
}

func NewHTTPGateway(baseURL, keyID, keySecret, currency string, timeout time.Duration, logger *logrus.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		currency:  currency,
		logger:    logger,
		hc:        &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Name() string { return "razorpay" }

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder posts a new order.  Timeouts and non-2xx answers are
// failures; no retry is attempted.
func (g *HTTPGateway) CreateOrder(ctx context.Context, amountMinor int64, receipt string, notes map[string]string) (Order, error) {
	reqBody, err := json.Marshal(createOrderRequest{
		Amount:   amountMinor,
		Currency: g.currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return Order{}, err
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(reqBody))
	if err != nil {
		return Order{}, err
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	hr.SetBasicAuth(g.keyID, g.keySecret)

	hresp, err := g.hc.Do(hr)
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).WithField("receipt", receipt).Error("payment gateway unreachable")
		return Order{}, fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer hresp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(hresp.Body, 1<<20))
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).Error("read payment gateway response")
		return Order{}, fmt.Errorf("read payment gateway response: %w", err)
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		var er errorResponse
		msg := http.StatusText(hresp.StatusCode)
		if json.Unmarshal(respBody, &er) == nil && er.Error.Description != "" {
			msg = er.Error.Description
		}
		g.logger.WithContext(ctx).WithFields(logrus.Fields{
			"status":  hresp.StatusCode,
			"receipt": receipt,
			"body":    string(respBody),
		}).Error("payment gateway rejected order")
		return Order{}, fmt.Errorf("payment gateway: %s", msg)
	}

	var order Order
	if err := json.Unmarshal(respBody, &order); err != nil {
		g.logger.WithContext(ctx).WithError(err).Error("decode payment gateway response")
		return Order{}, fmt.Errorf("decode payment gateway response: %w", err)
	}
	if order.ID == "" {
		return Order{}, fmt.Errorf("payment gateway returned no order id")
	}
	return order, nil
}
