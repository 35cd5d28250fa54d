// Package payment talks to the external payment collaborator. Only order
// creation is driven from here; capture arrives later as a confirmation call.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrGatewayRejected = errors.New("payment gateway rejected order")

type OrderRequest struct {
	BookingID uuid.UUID `json:"booking_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Amount    int64     `json:"amount"`
}

type Order struct {
	ID     string `json:"order_id"`
	Status string `json:"status"`
}

// HTTPGateway posts orders as JSON to {baseURL}/orders. The booking id is sent
// as Idempotency-Key so that retries from the outbox never create two orders.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (g *HTTPGateway) CreatePaymentOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.BookingID.String())

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrGatewayRejected)
	}
	return &order, nil
}

// Noop issues local order handles. Used when no gateway is configured.
type Noop struct{}

func (Noop) CreatePaymentOrder(_ context.Context, req OrderRequest) (*Order, error) {
	return &Order{ID: "local-" + req.BookingID.String(), Status: "created"}, nil
}
