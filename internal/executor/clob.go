package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/crypto"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

// CLOB places fill-or-kill orders against the exchange REST API using L2
// HMAC authentication. Short proposals carry the down-token ID, so both
// sides are plain BUY orders; prices and fills are converted between
// up-token terms (what the ledger tracks) and venue terms (the token
// actually traded).
type CLOB struct {
	log        *slog.Logger
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	address    string
}

// orderRequest is the CLOB order payload.
type orderRequest struct {
	TokenID   string `json:"tokenID"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	OrderType string `json:"orderType"`
}

// orderResult is the response from placing an order.
type orderResult struct {
	Success    bool   `json:"success"`
	ErrorMsg   string `json:"errorMsg,omitempty"`
	OrderID    string `json:"orderID,omitempty"`
	Status     string `json:"status,omitempty"`
	TransactID string `json:"transactID,omitempty"`
}

// NewCLOB creates a live executor. Credentials come from the encrypted file
// when credentials_path is set, otherwise from the inline config fields.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewCLOB(logger *slog.Logger, baseURL string, cfg config.ExecutionConfig) (*CLOB, error) {
	creds, err := resolveCredentials(cfg)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	return &CLOB{
		log:     logger.With(slog.String("component", "clob_executor")),
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth:    crypto.NewHMACAuth(creds),
		address: creds.Address,
	}, nil
}

func resolveCredentials(cfg config.ExecutionConfig) (crypto.Credentials, error) {
	if cfg.CredentialsPath != "" {
		return crypto.LoadCredentials(cfg.CredentialsPath, cfg.CredentialsPassword)
	}
	creds := crypto.Credentials{
		Address:    cfg.ApiAddress,
		APIKey:     cfg.ApiKey,
		Secret:     cfg.ApiSecret,
		Passphrase: cfg.ApiPassphrase,
	}
	if err := creds.Validate(); err != nil {
		return crypto.Credentials{}, err
	}
	return creds, nil
}

// Name identifies the venue in logs and persisted trades.
func (c *CLOB) Name() string { return "clob" }

// Execute buys the proposal's token with a fill-or-kill order. The returned
// fill price is in up-token terms regardless of side.
func (c *CLOB) Execute(ctx context.Context, prop domain.TradeProposal) (domain.Fill, error) {
	venuePrice := prop.LimitPrice
	if prop.Side == domain.SideShort {
		venuePrice = 1 - venuePrice
	}
	if err := checkPrice(venuePrice); err != nil {
		return domain.Fill{}, &domain.ExecutionError{Venue: c.Name(), Err: err}
	}

	shares := prop.SizeUSD / venuePrice
	result, err := c.postOrder(ctx, orderRequest{
		TokenID:   prop.TokenID,
		Price:     fmt.Sprintf("%.4f", venuePrice),
		Size:      fmt.Sprintf("%.2f", shares),
		Side:      "BUY",
		OrderType: "FOK",
	})
	if err != nil {
		return domain.Fill{}, &domain.ExecutionError{Venue: c.Name(), Err: err}
	}

	filled := venuePrice
	if prop.Side == domain.SideShort {
		filled = 1 - filled
	}
	fill := domain.Fill{
		OrderID:     result.OrderID,
		FilledPrice: filled,
		FeeUSD:      0,
		FilledAt:    time.Now().UTC(),
	}

	c.log.InfoContext(ctx, "order filled",
		slog.String("order_id", fill.OrderID),
		slog.String("symbol", prop.Symbol),
		slog.String("side", string(prop.Side)),
		slog.String("status", result.Status),
		slog.Float64("price", fill.FilledPrice),
		slog.Float64("size_usd", prop.SizeUSD))

	return fill, nil
}

// Unwind sells the position's token back to the book with a fill-or-kill
// order at limitPrice (up-token terms).
func (c *CLOB) Unwind(ctx context.Context, pos domain.Position, limitPrice float64) (domain.Fill, error) {
	venuePrice := limitPrice
	if pos.Side == domain.SideShort {
		venuePrice = 1 - venuePrice
	}
	if err := checkPrice(venuePrice); err != nil {
		return domain.Fill{}, &domain.ExecutionError{Venue: c.Name(), Err: err}
	}

	shares := pos.SizeUSD / venuePrice
	result, err := c.postOrder(ctx, orderRequest{
		TokenID:   pos.TokenID,
		Price:     fmt.Sprintf("%.4f", venuePrice),
		Size:      fmt.Sprintf("%.2f", shares),
		Side:      "SELL",
		OrderType: "FOK",
	})
	if err != nil {
		return domain.Fill{}, &domain.ExecutionError{Venue: c.Name(), Err: err}
	}

	filled := venuePrice
	if pos.Side == domain.SideShort {
		filled = 1 - filled
	}
	fill := domain.Fill{
		OrderID:     result.OrderID,
		FilledPrice: filled,
		FeeUSD:      0,
		FilledAt:    time.Now().UTC(),
	}

	c.log.InfoContext(ctx, "position unwound",
		slog.String("order_id", fill.OrderID),
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("price", fill.FilledPrice))

	return fill, nil
}

func (c *CLOB) postOrder(ctx context.Context, order orderRequest) (orderResult, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", order)
	if err != nil {
		return orderResult{}, fmt.Errorf("post order: %w", err)
	}

	var result orderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return orderResult{}, fmt.Errorf("decode order result: %w", err)
	}
	if !result.Success {
		return result, fmt.Errorf("order rejected: %s", result.ErrorMsg)
	}

	return result, nil
}

func (c *CLOB) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.auth.L2Headers(c.address, method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
