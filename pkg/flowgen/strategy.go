package flowgen

import (
	"context"
	"log/slog"
	"time"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/server"
)

// LayeredSymmetricQuoting quotes NumLevels bid/ask pairs spaced outward from
// the reference price, the same size at every level.
type LayeredSymmetricQuoting struct {
	cfg    *Config
	logger *slog.Logger
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger *slog.Logger) QuotingStrategy {
	return &LayeredSymmetricQuoting{
		cfg:    cfg,
		logger: logger.With("component", "LayeredSymmetricQuoting"),
	}
}

// CalculateOrders implements QuotingStrategy
func (s *LayeredSymmetricQuoting) CalculateOrders(ctx context.Context, currentPrice float64) ([]*server.PlaceOrderRequest, error) {
	baseHalfSpread := currentPrice * (s.cfg.BaseSpreadPercent / 2 / 100)
	priceStep := currentPrice * (s.cfg.PriceStepPercent / 100)

	orders := make([]*server.PlaceOrderRequest, 0, s.cfg.NumLevels*2)
	expireAt := time.Now().Add(s.cfg.OrderTTL).UnixMilli()
	size := s.cfg.OrderSize.String()

	for i := 1; i <= s.cfg.NumLevels; i++ {
		bidPrice := fpdecimal.FromFloat(currentPrice - baseHalfSpread - float64(i-1)*priceStep)
		askPrice := fpdecimal.FromFloat(currentPrice + baseHalfSpread + float64(i-1)*priceStep)

		if !bidPrice.GreaterThan(fpdecimal.Zero) {
			s.logger.Warn("Skipping level with non-positive bid price", "level", i)
			continue
		}

		orders = append(orders, &server.PlaceOrderRequest{
			Owner:       s.cfg.Owner,
			Side:        "buy",
			Type:        "limit",
			Price:       bidPrice.String(),
			Quantity:    size,
			Restriction: core.PostOrAbort.String(),
			ExpireAt:    expireAt,
		})
		orders = append(orders, &server.PlaceOrderRequest{
			Owner:       s.cfg.Owner,
			Side:        "sell",
			Type:        "limit",
			Price:       askPrice.String(),
			Quantity:    size,
			Restriction: core.PostOrAbort.String(),
			ExpireAt:    expireAt,
		})

		s.logger.Debug("Calculated order pair",
			"level", i,
			"bid_price", bidPrice.String(),
			"ask_price", askPrice.String(),
			"quantity", size)
	}

	return orders, nil
}
