package polymarket

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	Description   string   `json:"description"`
	ActiveFromAPI flexBool `json:"active"` // API may send bool or "true"/"false" string
	Closed        bool     `json:"closed"`
	Liquidity     string   `json:"liquidity"`
	Volume        string   `json:"volume"`
	Outcomes      string   `json:"outcomes"`       // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	ClobTokenIDs  string   `json:"clob_token_ids"` // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Tokens        []Token  `json:"tokens"`
	EndDateISO    string   `json:"end_date_iso"`
	UpdatedAt     string   `json:"updated_at"`
}

// Token represents a token entry inside the Gamma API market response.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// symbolKeywords maps watch symbols to the words that identify their markets.
var symbolKeywords = map[string][]string{
	"BTC": {"bitcoin", "btc"},
	"ETH": {"ethereum", "eth"},
	"SOL": {"solana", "sol"},
	"XRP": {"xrp", "ripple"},
}

// MatchSymbol returns the watch symbol whose keywords appear in the market
// question or description, or "" when none match.
func MatchSymbol(question, description string, symbols []string) string {
	combined := strings.ToLower(question + " " + description)
	for _, sym := range symbols {
		for _, kw := range symbolKeywords[sym] {
			if strings.Contains(combined, kw) {
				return sym
			}
		}
	}
	return ""
}

// thresholdPattern matches a dollar amount in a market question, e.g.
// "$100,000" or "$0.60".
var thresholdPattern = regexp.MustCompile(`\$([0-9][0-9,]*(?:\.[0-9]+)?)`)

// ParseThreshold extracts the strike price from a market question.
func ParseThreshold(question string) (float64, bool) {
	m := thresholdPattern.FindStringSubmatch(question)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// toDomainMarket converts a Gamma market for the given watch symbol. It
// returns false when the market has no parseable strike or no token pair.
func (m *APIMarket) toDomainMarket(symbol string) (domain.Market, bool) {
	threshold, ok := ParseThreshold(m.Question)
	if !ok {
		return domain.Market{}, false
	}

	up, down, ok := m.tokenPair()
	if !ok {
		return domain.Market{}, false
	}

	dm := domain.Market{
		ID:          m.ID,
		Question:    m.Question,
		Slug:        m.Slug,
		Symbol:      symbol,
		Threshold:   threshold,
		UpTokenID:   up,
		DownTokenID: down,
		Active:      bool(m.ActiveFromAPI) && !m.Closed,
	}

	if v, err := strconv.ParseFloat(m.Liquidity, 64); err == nil {
		dm.LiquidityUSD = v
	}
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		dm.EndDate = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	}

	return dm, true
}

// tokenPair resolves the (up, down) token IDs. The CLOB-style tokens array
// wins; Gamma's JSON-encoded clob_token_ids + outcomes strings are the
// fallback. The "Yes"/"Up" outcome is the up token.
func (m *APIMarket) tokenPair() (up, down string, ok bool) {
	if len(m.Tokens) >= 2 {
		upIdx := 0
		for i, tok := range m.Tokens[:2] {
			if isUpOutcome(tok.Outcome) {
				upIdx = i
				break
			}
		}
		return m.Tokens[upIdx].TokenID, m.Tokens[1-upIdx].TokenID, true
	}

	var ids, outcomes []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil || len(ids) < 2 {
		return "", "", false
	}
	_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)

	upIdx := 0
	for i, o := range outcomes {
		if i >= 2 {
			break
		}
		if isUpOutcome(o) {
			upIdx = i
			break
		}
	}
	return ids[upIdx], ids[1-upIdx], true
}

func isUpOutcome(outcome string) bool {
	return strings.EqualFold(outcome, "Yes") || strings.EqualFold(outcome, "Up")
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookMessage represents a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BestBidAsk returns the top of book. A missing side reports zero.
func (b *BookMessage) BestBidAsk() (bid, ask float64) {
	for _, lvl := range b.Bids {
		if p, err := strconv.ParseFloat(lvl.Price, 64); err == nil && p > bid {
			bid = p
		}
	}
	for _, lvl := range b.Asks {
		if p, err := strconv.ParseFloat(lvl.Price, 64); err == nil && (ask == 0 || p < ask) {
			ask = p
		}
	}
	return bid, ask
}

// TradeMessage represents the most recent trade price for an asset.
type TradeMessage struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// wsCommand is the JSON payload sent to the WebSocket to subscribe or
// unsubscribe.
type wsCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}
