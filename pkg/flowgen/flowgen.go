package flowgen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Generator is the order flow generation service. Each cycle it fetches the
// reference price, withdraws its standing quotes and lays out a fresh ladder.
type Generator struct {
	cfg          *Config
	logger       *slog.Logger
	orderPlacer  OrderPlacer
	priceFetcher PriceFetcher
	strategy     QuotingStrategy
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewGenerator creates a new flow generator service
func NewGenerator(cfg *Config, logger *slog.Logger, orderPlacer OrderPlacer, priceFetcher PriceFetcher, strategy QuotingStrategy) *Generator {
	return &Generator{
		cfg:          cfg,
		logger:       logger.With("component", "Generator"),
		orderPlacer:  orderPlacer,
		priceFetcher: priceFetcher,
		strategy:     strategy,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the quoting loop
func (g *Generator) Start(ctx context.Context) {
	g.logger.Info("Starting flow generator",
		"market", g.cfg.Market,
		"owner", g.cfg.Owner,
		"update_interval", g.cfg.UpdateInterval)

	g.wg.Add(1)
	go g.run(ctx)
}

// Stop gracefully shuts down the generator and withdraws its quotes
func (g *Generator) Stop(ctx context.Context) error {
	g.logger.Info("Stopping flow generator")
	close(g.stopCh)

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for flow generator to stop: %w", ctx.Err())
	}

	if _, err := g.orderPlacer.CancelAllOrders(ctx, g.cfg.Owner); err != nil {
		g.logger.Error("Failed to withdraw quotes during shutdown", "error", err)
		return fmt.Errorf("failed to withdraw quotes during shutdown: %w", err)
	}

	g.logger.Info("Flow generator stopped")
	return nil
}

// run is the main quoting loop
func (g *Generator) run(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("Context cancelled, stopping quoting loop")
			return
		case <-g.stopCh:
			g.logger.Info("Stop signal received, stopping quoting loop")
			return
		case <-ticker.C:
			if err := g.refreshQuotes(ctx); err != nil {
				g.logger.Error("Failed to refresh quotes", "error", err)
				// Keep running despite errors
			}
		}
	}
}

// refreshQuotes performs a single quoting cycle
func (g *Generator) refreshQuotes(ctx context.Context) error {
	price, err := g.priceFetcher.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	orders, err := g.strategy.CalculateOrders(ctx, price)
	if err != nil {
		return fmt.Errorf("failed to calculate orders: %w", err)
	}

	canceled, err := g.orderPlacer.CancelAllOrders(ctx, g.cfg.Owner)
	if err != nil {
		return fmt.Errorf("failed to withdraw standing quotes: %w", err)
	}
	if len(canceled) > 0 {
		g.logger.Debug("Withdrew standing quotes", "count", len(canceled))
	}

	placed := 0
	for _, order := range orders {
		resp, err := g.orderPlacer.PlaceOrder(ctx, order)
		if err != nil {
			g.logger.Warn("Failed to place quote",
				"side", order.Side,
				"price", order.Price,
				"error", err)
			continue
		}
		if resp.Rested {
			placed++
		}
	}

	g.logger.Info("Refreshed quotes",
		"reference_price", price,
		"placed", placed,
		"attempted", len(orders))
	return nil
}
