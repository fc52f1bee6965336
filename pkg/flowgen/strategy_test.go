package flowgen

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

func testConfig() *Config {
	size, _ := fpdecimal.FromString("0.01")
	return &Config{
		Market:            "BTC-USD",
		Owner:             "flowgen-test",
		NumLevels:         3,
		BaseSpreadPercent: 0.1,  // 0.1%
		PriceStepPercent:  0.05, // 0.05%
		OrderSize:         size,
		OrderTTL:          time.Hour,
	}
}

func TestLayeredSymmetricQuoting(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	strategy := NewLayeredSymmetricQuoting(testConfig(), logger)

	t.Run("Basic order creation", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), 50000.0)
		if err != nil {
			t.Fatalf("CalculateOrders failed: %v", err)
		}

		if len(orders) != 6 {
			t.Errorf("Expected 6 orders (3 bids + 3 asks), got %d", len(orders))
		}

		if orders[0].Side != "buy" {
			t.Errorf("Expected first order to be a buy order")
		}
		if orders[1].Side != "sell" {
			t.Errorf("Expected second order to be a sell order")
		}

		for _, order := range orders {
			if order.Type != "limit" {
				t.Errorf("Expected limit order type")
			}
			if order.Restriction != "POST_OR_ABORT" {
				t.Errorf("Expected post-only quotes, got %q", order.Restriction)
			}
			if order.ExpireAt <= time.Now().UnixMilli() {
				t.Errorf("Expected expiry in the future, got %d", order.ExpireAt)
			}
			if order.Owner != "flowgen-test" {
				t.Errorf("Expected owner flowgen-test, got %q", order.Owner)
			}
		}
	})

	t.Run("Quotes straddle the reference price", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), 50000.0)
		if err != nil {
			t.Fatalf("CalculateOrders failed: %v", err)
		}

		for i := 0; i < len(orders); i += 2 {
			bid := parsePrice(t, orders[i].Price)
			ask := parsePrice(t, orders[i+1].Price)
			if bid >= 50000.0 {
				t.Errorf("Bid %f not below reference price", bid)
			}
			if ask <= 50000.0 {
				t.Errorf("Ask %f not above reference price", ask)
			}
		}
	})

	t.Run("Levels step outward", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), 50000.0)
		if err != nil {
			t.Fatalf("CalculateOrders failed: %v", err)
		}

		var bidPrices []float64
		for i := 0; i < len(orders); i += 2 {
			bidPrices = append(bidPrices, parsePrice(t, orders[i].Price))
		}
		for i := 1; i < len(bidPrices); i++ {
			if bidPrices[i] >= bidPrices[i-1] {
				t.Errorf("Expected bids to step down, got %f then %f", bidPrices[i-1], bidPrices[i])
			}
		}
	})

	t.Run("Negative bid levels are skipped", func(t *testing.T) {
		cfg := testConfig()
		cfg.NumLevels = 5
		cfg.PriceStepPercent = 40 // Steps larger than the price itself
		deep := NewLayeredSymmetricQuoting(cfg, logger)

		orders, err := deep.CalculateOrders(context.Background(), 1.0)
		if err != nil {
			t.Fatalf("CalculateOrders failed: %v", err)
		}
		for _, order := range orders {
			if order.Side == "buy" && parsePrice(t, order.Price) <= 0 {
				t.Errorf("Emitted non-positive bid price %s", order.Price)
			}
		}
	})
}

func parsePrice(t *testing.T, s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		t.Fatalf("Failed to parse price: %v", err)
	}
	return f
}
