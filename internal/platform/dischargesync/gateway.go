package dischargesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrDownstreamSyncFailed signals a failed delivery to the discharge gateway.
// It is logged and retried by the dispatcher, never surfaced to the caller
// who performed the discharge.
var ErrDownstreamSyncFailed = errors.New("downstream sync failed")

// Notifier delivers a discharge payload to the downstream system.
type Notifier interface {
	Notify(ctx context.Context, payload DischargePayload) error
}

// Gateway is the HTTP client for the downstream discharge system.
type Gateway struct {
	client *resty.Client
}

func NewGateway(baseURL, token string, timeout time.Duration) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &Gateway{client: client}
}

// Notify POSTs the discharge to the gateway and expects a 2xx acknowledgment.
func (g *Gateway) Notify(ctx context.Context, payload DischargePayload) error {
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/discharges")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownstreamSyncFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: gateway returned %d", ErrDownstreamSyncFailed, resp.StatusCode())
	}
	return nil
}
