// Package chainlink polls on-chain aggregator contracts for oracle prices.
package chainlink

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/metrics"
)

// aggregatorABI covers the two read-only calls the reader needs from the
// Chainlink AggregatorV3Interface.
const aggregatorABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
   "stateMutability":"view","type":"function"}
]`

// PriceSink receives oracle observations. *feed.Aggregator satisfies it.
type PriceSink interface {
	Update(obs domain.PriceObservation)
}

// contractCaller is the slice of the RPC client the reader uses.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader polls each configured aggregator on a fixed interval and pushes
// the latest round as an oracle observation. Observations are stamped at
// read time: the on-chain answer is the oracle's current value regardless
// of when the round last moved.
type Reader struct {
	log         *slog.Logger
	caller      contractCaller
	closer      func()
	feeds       map[string]common.Address
	interval    time.Duration
	confidence  float64
	sink        PriceSink
	contractABI abi.ABI

	mu       sync.Mutex
	decimals map[string]uint8

	now func() time.Time
}

// NewReader dials the RPC endpoint and prepares a reader for every
// configured aggregator.
func NewReader(logger *slog.Logger, cfg config.ChainlinkConfig, oracleConfidence float64, sink PriceSink) (*Reader, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chainlink: dial %s: %w", cfg.RPCURL, err)
	}

	r, err := newReader(logger, cfg, oracleConfidence, sink, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	r.closer = client.Close
	return r, nil
}

func newReader(logger *slog.Logger, cfg config.ChainlinkConfig, oracleConfidence float64, sink PriceSink, caller contractCaller) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("chainlink: parse aggregator abi: %w", err)
	}

	feeds := make(map[string]common.Address, len(cfg.Aggregators))
	for symbol, addr := range cfg.Aggregators {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("chainlink: %w: bad aggregator address %q for %s", domain.ErrInvalidInput, addr, symbol)
		}
		feeds[symbol] = common.HexToAddress(addr)
	}

	return &Reader{
		log:         logger.With(slog.String("component", "chainlink_reader")),
		caller:      caller,
		feeds:       feeds,
		interval:    cfg.PollInterval.Duration,
		confidence:  oracleConfidence,
		sink:        sink,
		contractABI: parsed,
		decimals:    make(map[string]uint8, len(cfg.Aggregators)),
		now:         time.Now,
	}, nil
}

// Run polls until the context is cancelled.
func (r *Reader) Run(ctx context.Context) error {
	r.log.InfoContext(ctx, "starting oracle poller",
		slog.Int("feeds", len(r.feeds)),
		slog.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.pollAll(ctx)
		}
	}
}

// Close releases the underlying RPC connection.
func (r *Reader) Close() {
	if r.closer != nil {
		r.closer()
	}
}

func (r *Reader) pollAll(ctx context.Context) {
	for symbol := range r.feeds {
		obs, err := r.readLatest(ctx, symbol)
		if err != nil {
			r.log.WarnContext(ctx, "oracle read failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
			continue
		}
		r.sink.Update(obs)
		metrics.ObservationsTotal.WithLabelValues(symbol, string(domain.SourceOracle)).Inc()
	}
}

// readLatest fetches latestRoundData for one symbol and converts the fixed
// point answer to a float price.
func (r *Reader) readLatest(ctx context.Context, symbol string) (domain.PriceObservation, error) {
	addr, ok := r.feeds[symbol]
	if !ok {
		return domain.PriceObservation{}, fmt.Errorf("chainlink: no aggregator for %s: %w", symbol, domain.ErrNotFound)
	}

	dec, err := r.feedDecimals(ctx, symbol, addr)
	if err != nil {
		return domain.PriceObservation{}, err
	}

	out, err := r.call(ctx, addr, "latestRoundData")
	if err != nil {
		return domain.PriceObservation{}, fmt.Errorf("chainlink: latestRoundData %s: %w", symbol, err)
	}
	vals, err := r.contractABI.Unpack("latestRoundData", out)
	if err != nil {
		return domain.PriceObservation{}, fmt.Errorf("chainlink: unpack latestRoundData %s: %w", symbol, err)
	}

	answer, ok := vals[1].(*big.Int)
	if !ok || answer == nil || answer.Sign() <= 0 {
		return domain.PriceObservation{}, fmt.Errorf("chainlink: %s: non-positive answer", symbol)
	}

	price, _ := new(big.Float).Quo(
		new(big.Float).SetInt(answer),
		big.NewFloat(math.Pow10(int(dec))),
	).Float64()

	obs := domain.PriceObservation{
		Symbol:     symbol,
		Source:     domain.SourceOracle,
		Value:      price,
		Confidence: r.confidence,
		Timestamp:  r.now().UTC(),
	}

	if updatedAt, ok := vals[3].(*big.Int); ok && updatedAt.IsInt64() {
		r.log.DebugContext(ctx, "oracle round",
			slog.String("symbol", symbol),
			slog.Float64("price", price),
			slog.Duration("round_age", obs.Timestamp.Sub(time.Unix(updatedAt.Int64(), 0))))
	}

	return obs, nil
}

// feedDecimals returns the aggregator's decimal count, fetching it on first
// use and caching it after.
func (r *Reader) feedDecimals(ctx context.Context, symbol string, addr common.Address) (uint8, error) {
	r.mu.Lock()
	dec, ok := r.decimals[symbol]
	r.mu.Unlock()
	if ok {
		return dec, nil
	}

	out, err := r.call(ctx, addr, "decimals")
	if err != nil {
		return 0, fmt.Errorf("chainlink: decimals %s: %w", symbol, err)
	}
	vals, err := r.contractABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("chainlink: unpack decimals %s: %w", symbol, err)
	}
	dec, ok = vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chainlink: decimals %s: unexpected type %T", symbol, vals[0])
	}

	r.mu.Lock()
	r.decimals[symbol] = dec
	r.mu.Unlock()
	return dec, nil
}

func (r *Reader) call(ctx context.Context, addr common.Address, method string) ([]byte, error) {
	data, err := r.contractABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return r.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
}
