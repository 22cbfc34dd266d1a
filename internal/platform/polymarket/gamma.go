// Package polymarket talks to the prediction-market venue: the Gamma REST
// API for market discovery and the CLOB WebSocket for live token quotes.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

// resolveFetchLimit is how many markets one discovery call pages through.
const resolveFetchLimit = 500

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListMarkets returns a page of active markets.
func (g *GammaClient) ListMarkets(ctx context.Context, limit, offset int) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("active", "true")
	params.Set("closed", "false")

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	return apiMarkets, nil
}

// MarketBySlug returns a single market looked up by its URL slug.
func (g *GammaClient) MarketBySlug(ctx context.Context, slug string) (APIMarket, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(apiMarkets) == 0 {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}

	return apiMarkets[0], nil
}

// ResolveMarkets finds the price-threshold markets to monitor for each watch
// symbol. An explicit slug in the config pins that symbol to one market;
// otherwise discovery keeps the top markets by liquidity that name the
// symbol, parse to a strike, and clear the liquidity floor.
func (g *GammaClient) ResolveMarkets(ctx context.Context, watch config.WatchConfig) (map[string][]domain.Market, error) {
	out := make(map[string][]domain.Market, len(watch.Symbols))

	var discovered []APIMarket
	needDiscovery := false
	for _, sym := range watch.Symbols {
		if _, pinned := watch.MarketSlugs[sym]; !pinned {
			needDiscovery = true
			break
		}
	}
	if needDiscovery {
		var err error
		discovered, err = g.ListMarkets(ctx, resolveFetchLimit, 0)
		if err != nil {
			return nil, err
		}
	}

	for _, sym := range watch.Symbols {
		if slug, pinned := watch.MarketSlugs[sym]; pinned {
			api, err := g.MarketBySlug(ctx, slug)
			if err != nil {
				return nil, err
			}
			m, ok := api.toDomainMarket(sym)
			if !ok {
				return nil, fmt.Errorf("polymarket/gamma: %w: market %s has no parseable strike or tokens", domain.ErrInvalidInput, slug)
			}
			out[sym] = []domain.Market{m}
			continue
		}
		out[sym] = filterSymbolMarkets(discovered, sym, watch)
	}

	return out, nil
}

// filterSymbolMarkets keeps active markets matching the symbol keywords,
// sorted by liquidity, capped at the configured count.
func filterSymbolMarkets(apiMarkets []APIMarket, symbol string, watch config.WatchConfig) []domain.Market {
	var kept []domain.Market
	for i := range apiMarkets {
		api := &apiMarkets[i]
		if MatchSymbol(api.Question, api.Description, []string{symbol}) != symbol {
			continue
		}
		m, ok := api.toDomainMarket(symbol)
		if !ok || !m.Active {
			continue
		}
		if m.LiquidityUSD < watch.MinLiquidityUSD {
			continue
		}
		kept = append(kept, m)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].LiquidityUSD > kept[j].LiquidityUSD })
	if watch.TopMarkets > 0 && len(kept) > watch.TopMarkets {
		kept = kept[:watch.TopMarkets]
	}
	return kept
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
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
