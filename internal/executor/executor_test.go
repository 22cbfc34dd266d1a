package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func proposal(side domain.PositionSide, limit, sizeUSD float64) domain.TradeProposal {
	tokenID := "tok-up"
	if side == domain.SideShort {
		tokenID = "tok-down"
	}
	return domain.TradeProposal{
		ID:         "prop-1",
		Symbol:     "BTC",
		TokenID:    tokenID,
		Side:       side,
		SizeUSD:    sizeUSD,
		LimitPrice: limit,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestPaperFillsAtLimitPrice(t *testing.T) {
	p := NewPaper(discardLogger())
	if p.Name() != "paper" {
		t.Fatalf("Name() = %q, want paper", p.Name())
	}

	fill, err := p.Execute(context.Background(), proposal(domain.SideLong, 0.52, 30))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fill.FilledPrice != 0.52 {
		t.Fatalf("FilledPrice = %v, want 0.52", fill.FilledPrice)
	}
	if fill.FeeUSD != 0 {
		t.Fatalf("FeeUSD = %v, want 0", fill.FeeUSD)
	}
	if fill.OrderID != "paper-1" {
		t.Fatalf("OrderID = %q, want paper-1", fill.OrderID)
	}

	second, err := p.Execute(context.Background(), proposal(domain.SideShort, 0.48, 20))
	if err != nil {
		t.Fatalf("Execute second: %v", err)
	}
	if second.OrderID != "paper-2" {
		t.Fatalf("second OrderID = %q, want paper-2", second.OrderID)
	}
	if second.FilledPrice != 0.48 {
		t.Fatalf("short FilledPrice = %v, want limit unchanged", second.FilledPrice)
	}
}

func TestPaperUnwindFillsAtLimit(t *testing.T) {
	p := NewPaper(discardLogger())
	pos := domain.Position{ID: "pos-1", Symbol: "ETH", TokenID: "tok-up", Side: domain.SideLong, SizeUSD: 25}

	fill, err := p.Unwind(context.Background(), pos, 0.61)
	if err != nil {
		t.Fatalf("Unwind: %v", err)
	}
	if fill.FilledPrice != 0.61 {
		t.Fatalf("FilledPrice = %v, want 0.61", fill.FilledPrice)
	}
}

func TestPaperRejectsDegeneratePrices(t *testing.T) {
	p := NewPaper(discardLogger())
	for _, price := range []float64{0, 1, -0.2, 1.7} {
		_, err := p.Execute(context.Background(), proposal(domain.SideLong, price, 30))
		if err == nil {
			t.Fatalf("Execute at price %v succeeded, want error", price)
		}
		var execErr *domain.ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("error %v is not an ExecutionError", err)
		}
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("error %v does not wrap ErrInvalidInput", err)
		}
	}
}

func clobConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		Enabled:       true,
		Venue:         "clob",
		ApiAddress:    "0xabc",
		ApiKey:        "key-1",
		ApiSecret:     "c2VjcmV0LWJ5dGVz",
		ApiPassphrase: "pass-1",
	}
}

func TestCLOBPostsBuyOrder(t *testing.T) {
	var got orderRequest
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/order" {
			t.Errorf("request %s %s, want POST /order", r.Method, r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode order: %v", err)
		}
		json.NewEncoder(w).Encode(orderResult{Success: true, OrderID: "ord-77", Status: "matched"})
	}))
	defer srv.Close()

	c, err := NewCLOB(discardLogger(), srv.URL, clobConfig())
	if err != nil {
		t.Fatalf("NewCLOB: %v", err)
	}

	fill, err := c.Execute(context.Background(), proposal(domain.SideLong, 0.52, 26))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got.TokenID != "tok-up" || got.Side != "BUY" || got.OrderType != "FOK" {
		t.Fatalf("order = %+v, want BUY FOK on tok-up", got)
	}
	if got.Price != "0.5200" {
		t.Fatalf("order price = %q, want 0.5200", got.Price)
	}
	if got.Size != "50.00" { // 26 USD / 0.52
		t.Fatalf("order size = %q, want 50.00", got.Size)
	}
	if fill.OrderID != "ord-77" || fill.FilledPrice != 0.52 {
		t.Fatalf("fill = %+v, want ord-77 at 0.52", fill)
	}

	for _, h := range []string{"POLY_ADDRESS", "POLY_API_KEY", "POLY_TIMESTAMP", "POLY_PASSPHRASE", "POLY_SIGNATURE"} {
		if gotHeaders.Get(h) == "" {
			t.Fatalf("missing auth header %s", h)
		}
	}
}

func TestCLOBShortTradesDownToken(t *testing.T) {
	var got orderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode order: %v", err)
		}
		json.NewEncoder(w).Encode(orderResult{Success: true, OrderID: "ord-78"})
	}))
	defer srv.Close()

	c, err := NewCLOB(discardLogger(), srv.URL, clobConfig())
	if err != nil {
		t.Fatalf("NewCLOB: %v", err)
	}

	// Up-token quote 0.40; a short buys the down token at 0.60.
	fill, err := c.Execute(context.Background(), proposal(domain.SideShort, 0.40, 30))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got.TokenID != "tok-down" || got.Side != "BUY" {
		t.Fatalf("order = %+v, want BUY on tok-down", got)
	}
	if got.Price != "0.6000" {
		t.Fatalf("venue price = %q, want 0.6000", got.Price)
	}
	if got.Size != "50.00" { // 30 USD / 0.60
		t.Fatalf("order size = %q, want 50.00", got.Size)
	}
	if fill.FilledPrice != 0.40 {
		t.Fatalf("fill price = %v, want up-token terms 0.40", fill.FilledPrice)
	}
}

func TestCLOBUnwindSells(t *testing.T) {
	var got orderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode order: %v", err)
		}
		json.NewEncoder(w).Encode(orderResult{Success: true, OrderID: "ord-79"})
	}))
	defer srv.Close()

	c, err := NewCLOB(discardLogger(), srv.URL, clobConfig())
	if err != nil {
		t.Fatalf("NewCLOB: %v", err)
	}

	pos := domain.Position{
		ID: "pos-9", Symbol: "BTC", TokenID: "tok-up",
		Side: domain.SideLong, EntryPrice: 0.50, SizeUSD: 20,
		Status: domain.PositionStatusOpen,
	}
	fill, err := c.Unwind(context.Background(), pos, 0.55)
	if err != nil {
		t.Fatalf("Unwind: %v", err)
	}

	if got.Side != "SELL" || got.TokenID != "tok-up" {
		t.Fatalf("order = %+v, want SELL on tok-up", got)
	}
	if got.Price != "0.5500" {
		t.Fatalf("order price = %q, want 0.5500", got.Price)
	}
	if fill.FilledPrice != 0.55 || fill.OrderID != "ord-79" {
		t.Fatalf("fill = %+v, want ord-79 at 0.55", fill)
	}
}

func TestCLOBRejectionIsExecutionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(orderResult{Success: false, ErrorMsg: "not enough balance"})
	}))
	defer srv.Close()

	c, err := NewCLOB(discardLogger(), srv.URL, clobConfig())
	if err != nil {
		t.Fatalf("NewCLOB: %v", err)
	}

	_, err = c.Execute(context.Background(), proposal(domain.SideLong, 0.52, 26))
	if err == nil {
		t.Fatal("Execute succeeded, want rejection error")
	}
	var execErr *domain.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error %v is not an ExecutionError", err)
	}
	if execErr.Venue != "clob" {
		t.Fatalf("Venue = %q, want clob", execErr.Venue)
	}
}

func TestCLOBMapsHTTPStatusToSentinels(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusNotFound, domain.ErrNotFound},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		c, err := NewCLOB(discardLogger(), srv.URL, clobConfig())
		if err != nil {
			t.Fatalf("NewCLOB: %v", err)
		}
		_, err = c.Execute(context.Background(), proposal(domain.SideLong, 0.52, 26))
		if !errors.Is(err, tt.want) {
			t.Fatalf("status %d: error %v does not wrap %v", tt.status, err, tt.want)
		}
		srv.Close()
	}
}

func TestNewCLOBRequiresCompleteCredentials(t *testing.T) {
	cfg := clobConfig()
	cfg.ApiSecret = ""
	if _, err := NewCLOB(discardLogger(), "http://localhost", cfg); err == nil {
		t.Fatal("NewCLOB with incomplete inline credentials succeeded, want error")
	}
}
