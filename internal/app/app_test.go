package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/feed"
	"github.com/alanyoungcy/lagbot/internal/lag"
	"github.com/alanyoungcy/lagbot/internal/ledger"
	"github.com/alanyoungcy/lagbot/internal/risk"
	"github.com/alanyoungcy/lagbot/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	return &cfg
}

func TestWireAllDisabled(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), testConfig(), testLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.SignalStore != nil || deps.PositionStore != nil || deps.TradeStore != nil || deps.StatsStore != nil {
		t.Fatal("expected nil stores with postgres disabled")
	}
	if deps.PriceCache != nil || deps.EventRelay != nil || deps.RateLimiter != nil || deps.LockManager != nil {
		t.Fatal("expected nil adapters with redis disabled")
	}
	if deps.Archiver != nil {
		t.Fatal("expected nil archiver with s3 disabled")
	}
	if len(deps.Senders) != 0 {
		t.Fatalf("senders = %d, want 0 without credentials", len(deps.Senders))
	}
}

func TestWireBuildsConfiguredSenders(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Notify.TelegramChatID = "-100200300"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/1/x"

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if len(deps.Senders) != 2 {
		t.Fatalf("senders = %d, want 2", len(deps.Senders))
	}
	names := map[string]bool{}
	for _, s := range deps.Senders {
		names[s.Name()] = true
	}
	if !names["telegram"] || !names["discord"] {
		t.Fatalf("sender names = %v, want telegram and discord", names)
	}
}

func TestBuildExecutorDisabled(t *testing.T) {
	a := New(testConfig(), testLogger())

	exec, err := a.buildExecutor()
	if err != nil {
		t.Fatalf("buildExecutor: %v", err)
	}
	if exec != nil {
		t.Fatalf("exec = %v, want nil with execution disabled", exec.Name())
	}
}

func TestBuildExecutorVenues(t *testing.T) {
	tests := []struct {
		name     string
		venue    string
		wantName string
		wantErr  bool
	}{
		{"empty venue defaults to paper", "", "paper", false},
		{"paper", "paper", "paper", false},
		{"venue is case insensitive", "Paper", "paper", false},
		{"unknown venue", "ftx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Execution.Enabled = true
			cfg.Execution.Venue = tt.venue
			a := New(cfg, testLogger())

			exec, err := a.buildExecutor()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildExecutor: %v", err)
			}
			if exec.Name() != tt.wantName {
				t.Fatalf("Name() = %q, want %q", exec.Name(), tt.wantName)
			}
		})
	}
}

func TestBuildExecutorCLOB(t *testing.T) {
	cfg := testConfig()
	cfg.Execution.Enabled = true
	cfg.Execution.Venue = "clob"
	cfg.Execution.ApiAddress = "0x1111111111111111111111111111111111111111"
	cfg.Execution.ApiKey = "key-1"
	cfg.Execution.ApiSecret = "c3VwZXItc2VjcmV0"
	cfg.Execution.ApiPassphrase = "phrase"
	a := New(cfg, testLogger())

	exec, err := a.buildExecutor()
	if err != nil {
		t.Fatalf("buildExecutor: %v", err)
	}
	if exec.Name() != "clob" {
		t.Fatalf("Name() = %q, want clob", exec.Name())
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = "backtest"
	a := New(cfg, testLogger())
	defer a.Close()

	err := a.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unsupported mode") {
		t.Fatalf("err = %v, want unsupported mode", err)
	}
}

type stubTradeStore struct{}

func (stubTradeStore) Insert(context.Context, domain.TradeRecord) error { return nil }
func (stubTradeStore) ListRecent(context.Context, int) ([]domain.TradeRecord, error) {
	return nil, nil
}
func (stubTradeStore) ListByPosition(context.Context, string) ([]domain.TradeRecord, error) {
	return nil, nil
}

func TestAPIHandlersFollowWiredStores(t *testing.T) {
	cfg := testConfig()
	a := New(cfg, testLogger())

	agg := feed.NewAggregator(testLogger(), 16)
	detector := lag.NewDetector(testLogger(), agg, time.Minute)
	engine := strategy.NewEngine(testLogger(), cfg)
	gate := risk.NewGate(testLogger(), cfg)
	book := ledger.NewLedger(testLogger(), cfg.Ledger)
	started := time.Now().UTC()

	h := a.apiHandlers(started, agg, detector, engine, book, gate, &Dependencies{})
	if h.Trades != nil {
		t.Fatal("trades handler should be nil without a trade store")
	}
	if h.Health == nil || h.Prices == nil || h.Lag == nil || h.Signals == nil ||
		h.Positions == nil || h.Risk == nil || h.Stats == nil {
		t.Fatal("expected every core handler to be built")
	}

	h = a.apiHandlers(started, agg, detector, engine, book, gate, &Dependencies{TradeStore: stubTradeStore{}})
	if h.Trades == nil {
		t.Fatal("trades handler missing with a trade store wired")
	}
}
