// Package server hosts trading markets over HTTP. A MarketManager owns one
// order book per market, serializes access to each, and wires books to the
// shared custodian, event publishing and metrics.
package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/logging"
	"github.com/erain9/deepmatch/pkg/messaging"
	"github.com/erain9/deepmatch/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrMarketExists is returned when creating a market that already exists.
	ErrMarketExists = errors.New("market with this name already exists")

	// ErrMarketNotFound is returned when accessing a non-existent market.
	ErrMarketNotFound = errors.New("market not found")
)

// MarketConfig describes one trading pair. Rates are FloatScaling-scaled
// fractions, sizes are scaled units.
type MarketConfig struct {
	Name            string
	BaseAsset       string
	QuoteAsset      string
	TickSize        uint64
	LotSize         uint64
	TakerFeeRate    uint64
	MakerRebateRate uint64
}

// MarketInfo is a point-in-time snapshot of a market's metadata.
type MarketInfo struct {
	Name            string
	BaseAsset       string
	QuoteAsset      string
	TickSize        uint64
	LotSize         uint64
	TakerFeeRate    uint64
	MakerRebateRate uint64
	CreatedAt       time.Time
	OpenOrders      int
}

// Market serializes access to a single order book. The book itself is not
// safe for concurrent use, so every operation takes the market mutex.
type Market struct {
	mu        sync.Mutex
	book      *core.OrderBook
	cfg       MarketConfig
	createdAt time.Time
	now       func() int64
	sink      *messaging.Sink
}

// MarketManager owns all markets and the shared custodian.
type MarketManager struct {
	mu        sync.RWMutex
	markets   map[string]*Market
	custodian core.Custodian
	sender    messaging.MessageSender
	now       func() int64
}

// ManagerOption tweaks manager construction.
type ManagerOption func(*MarketManager)

// WithMessageSender publishes each market's order events through sender.
func WithMessageSender(sender messaging.MessageSender) ManagerOption {
	return func(m *MarketManager) { m.sender = sender }
}

// WithClock overrides the millisecond clock, mainly for tests.
func WithClock(now func() int64) ManagerOption {
	return func(m *MarketManager) { m.now = now }
}

// NewMarketManager creates a manager whose books settle against custodian.
func NewMarketManager(custodian core.Custodian, opts ...ManagerOption) *MarketManager {
	m := &MarketManager{
		markets:   make(map[string]*Market),
		custodian: custodian,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateMarket registers a new market and its order book.
func (m *MarketManager) CreateMarket(ctx context.Context, cfg MarketConfig) (*MarketInfo, error) {
	logger := logging.FromContext(ctx).With().Str("market", cfg.Name).Logger()

	if cfg.Name == "" {
		return nil, errors.New("market name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.markets[cfg.Name]; exists {
		logger.Error().Msg("Market already exists")
		return nil, ErrMarketExists
	}

	var sink *messaging.Sink
	var events core.EventSink = marketMetricsSink{market: cfg.Name}
	if m.sender != nil {
		sink = messaging.NewSink(cfg.Name, m.sender, logger)
		events = fanoutSink{sink, events}
	}

	book, err := core.NewOrderBook(core.Params{
		BaseAsset:       cfg.BaseAsset,
		QuoteAsset:      cfg.QuoteAsset,
		TickSize:        cfg.TickSize,
		LotSize:         cfg.LotSize,
		TakerFeeRate:    cfg.TakerFeeRate,
		MakerRebateRate: cfg.MakerRebateRate,
	}, m.custodian, core.WithEventSink(events))
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		logger.Error().Err(err).Msg("Failed to create order book")
		return nil, err
	}

	mkt := &Market{
		book:      book,
		cfg:       cfg,
		createdAt: time.Now(),
		now:       m.now,
		sink:      sink,
	}
	m.markets[cfg.Name] = mkt

	logger.Info().
		Str("base", cfg.BaseAsset).
		Str("quote", cfg.QuoteAsset).
		Uint64("tick_size", cfg.TickSize).
		Uint64("lot_size", cfg.LotSize).
		Msg("Created market")
	return mkt.snapshotInfo(), nil
}

// GetMarket retrieves a market by name.
func (m *MarketManager) GetMarket(ctx context.Context, name string) (*Market, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mkt, exists := m.markets[name]
	if !exists {
		logger := logging.FromContext(ctx)
		logger.Debug().Str("market", name).Msg("Market not found")
		return nil, ErrMarketNotFound
	}
	return mkt, nil
}

// DeleteMarket removes a market and stops its event publishing.
func (m *MarketManager) DeleteMarket(ctx context.Context, name string) error {
	logger := logging.FromContext(ctx).With().Str("market", name).Logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	mkt, exists := m.markets[name]
	if !exists {
		logger.Debug().Msg("Market not found")
		return ErrMarketNotFound
	}
	delete(m.markets, name)

	if mkt.sink != nil {
		if err := mkt.sink.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close event sink")
		}
	}

	logger.Info().Msg("Deleted market")
	return nil
}

// ListMarkets returns snapshots of all markets, sorted by name.
func (m *MarketManager) ListMarkets(ctx context.Context) []*MarketInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*MarketInfo, 0, len(m.markets))
	for _, mkt := range m.markets {
		result = append(result, mkt.snapshotInfo())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	logger := logging.FromContext(ctx)
	logger.Debug().Int("count", len(result)).Msg("Listed markets")
	return result
}

// Close shuts down all markets' event sinks.
func (m *MarketManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mkt := range m.markets {
		if mkt.sink != nil {
			mkt.sink.Close()
		}
	}
	m.markets = make(map[string]*Market)
}

// Custodian exposes the shared balance service for account operations.
func (m *MarketManager) Custodian() core.Custodian {
	return m.custodian
}

func (mkt *Market) snapshotInfo() *MarketInfo {
	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return &MarketInfo{
		Name:            mkt.cfg.Name,
		BaseAsset:       mkt.cfg.BaseAsset,
		QuoteAsset:      mkt.cfg.QuoteAsset,
		TickSize:        mkt.cfg.TickSize,
		LotSize:         mkt.cfg.LotSize,
		TakerFeeRate:    mkt.cfg.TakerFeeRate,
		MakerRebateRate: mkt.cfg.MakerRebateRate,
		CreatedAt:       mkt.createdAt,
		OpenOrders:      mkt.book.OpenOrderCount(),
	}
}

// Info returns a metadata snapshot of the market.
func (mkt *Market) Info() *MarketInfo {
	return mkt.snapshotInfo()
}

// PlaceLimitOrder places a limit order under the market lock.
func (mkt *Market) PlaceLimitOrder(ctx context.Context, owner string, price, quantity uint64, isBid bool, expireTimestamp int64, restriction core.Restriction) (*core.PlaceResult, error) {
	_, span := otel.StartOrderSpan(ctx, otel.SpanPlaceOrder,
		attribute.String(otel.AttributeMarket, mkt.cfg.Name))
	defer span.End()

	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.PlaceLimitOrder(owner, price, quantity, isBid, expireTimestamp, restriction, mkt.now())
}

// PlaceMarketOrder places a base-quantity market order under the market lock.
func (mkt *Market) PlaceMarketOrder(ctx context.Context, owner string, quantity uint64, isBid bool) (*core.PlaceResult, error) {
	_, span := otel.StartOrderSpan(ctx, otel.SpanPlaceOrder,
		attribute.String(otel.AttributeMarket, mkt.cfg.Name))
	defer span.End()

	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.PlaceMarketOrder(owner, quantity, isBid, mkt.now())
}

// PlaceMarketOrderWithQuote places a quote-budget market bid under the market
// lock.
func (mkt *Market) PlaceMarketOrderWithQuote(ctx context.Context, owner string, quoteQuantity uint64) (*core.PlaceResult, error) {
	_, span := otel.StartOrderSpan(ctx, otel.SpanPlaceOrder,
		attribute.String(otel.AttributeMarket, mkt.cfg.Name))
	defer span.End()

	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.PlaceMarketOrderWithQuote(owner, quoteQuantity, mkt.now())
}

// CancelOrder cancels one order under the market lock.
func (mkt *Market) CancelOrder(ctx context.Context, owner string, orderID uint64) error {
	_, span := otel.StartOrderSpan(ctx, otel.SpanCancelOrder,
		attribute.String(otel.AttributeMarket, mkt.cfg.Name))
	defer span.End()

	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.CancelOrder(owner, orderID, mkt.now())
}

// BatchCancelOrders cancels several orders atomically under the market lock.
func (mkt *Market) BatchCancelOrders(ctx context.Context, owner string, orderIDs []uint64) error {
	_, span := otel.StartOrderSpan(ctx, otel.SpanCancelOrder,
		attribute.String(otel.AttributeMarket, mkt.cfg.Name))
	defer span.End()

	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.BatchCancelOrders(owner, orderIDs, mkt.now())
}

// CancelAllOrders cancels every open order belonging to owner.
func (mkt *Market) CancelAllOrders(ctx context.Context, owner string) []uint64 {
	_, span := otel.StartOrderSpan(ctx, otel.SpanCancelOrder,
		attribute.String(otel.AttributeMarket, mkt.cfg.Name))
	defer span.End()

	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.CancelAllOrders(owner, mkt.now())
}

// MarketPrice reports the best bid and ask under the market lock.
func (mkt *Market) MarketPrice() (bestBid uint64, hasBid bool, bestAsk uint64, hasAsk bool) {
	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.MarketPrice()
}

// Level2Range reports live depth per price within [priceLow, priceHigh] on
// one side, best price first.
func (mkt *Market) Level2Range(priceLow, priceHigh uint64, isBidSide bool) []core.PriceLevel {
	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	if isBidSide {
		return mkt.book.Level2BidSide(priceLow, priceHigh, mkt.now())
	}
	return mkt.book.Level2AskSide(priceLow, priceHigh, mkt.now())
}

// OrderStatus returns a copy of the owner's open order.
func (mkt *Market) OrderStatus(owner string, orderID uint64) (core.Order, error) {
	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.OrderStatus(owner, orderID)
}

// OpenOrders returns copies of all open orders belonging to owner.
func (mkt *Market) OpenOrders(owner string) []core.Order {
	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.OpenOrders(owner)
}

// TradingFees reports the accrued fee pools.
func (mkt *Market) TradingFees() (baseFees, quoteFees uint64) {
	mkt.mu.Lock()
	defer mkt.mu.Unlock()
	return mkt.book.TradingFees()
}
