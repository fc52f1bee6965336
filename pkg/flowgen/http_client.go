package flowgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/erain9/deepmatch/pkg/server"
)

// httpOrderPlacer implements OrderPlacer against the deepmatch HTTP API
type httpOrderPlacer struct {
	client  *http.Client
	cfg     *Config
	logger  *slog.Logger
	baseURL string
}

// NewOrderPlacer creates an OrderPlacer talking to the configured server
func NewOrderPlacer(cfg *Config, logger *slog.Logger) (OrderPlacer, error) {
	if _, err := url.Parse(cfg.ServerAddr); err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", cfg.ServerAddr, err)
	}
	return &httpOrderPlacer{
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		cfg:     cfg,
		logger:  logger.With("component", "httpOrderPlacer"),
		baseURL: cfg.ServerAddr,
	}, nil
}

// PlaceOrder implements OrderPlacer
func (p *httpOrderPlacer) PlaceOrder(ctx context.Context, req *server.PlaceOrderRequest) (*server.PlaceOrderResponse, error) {
	path := fmt.Sprintf("%s/api/v1/markets/%s/orders", p.baseURL, url.PathEscape(p.cfg.Market))

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out server.PlaceOrderResponse
	if err := p.roundTrip(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelAllOrders implements OrderPlacer
func (p *httpOrderPlacer) CancelAllOrders(ctx context.Context, owner string) ([]string, error) {
	path := fmt.Sprintf("%s/api/v1/markets/%s/orders?owner=%s",
		p.baseURL, url.PathEscape(p.cfg.Market), url.QueryEscape(owner))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return nil, err
	}

	var out server.CancelAllResponse
	if err := p.roundTrip(httpReq, &out); err != nil {
		return nil, err
	}
	return out.OrderIDs, nil
}

func (p *httpOrderPlacer) roundTrip(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Close implements OrderPlacer
func (p *httpOrderPlacer) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
