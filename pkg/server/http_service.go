package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/logging"
	"github.com/erain9/deepmatch/pkg/otel"
)

// HTTPService exposes the market manager as a JSON API.
type HTTPService struct {
	manager *MarketManager
}

// NewHTTPService creates a service backed by manager.
func NewHTTPService(manager *MarketManager) *HTTPService {
	return &HTTPService{manager: manager}
}

// Router builds the gin engine with logging, tracing and metrics middleware.
func (s *HTTPService) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger())
	router.Use(otel.GinMiddleware(otel.ServiceOrderAPI))
	router.Use(httpMetrics())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/markets", s.createMarket)
		v1.GET("/markets", s.listMarkets)
		v1.GET("/markets/:market", s.getMarket)
		v1.DELETE("/markets/:market", s.deleteMarket)

		v1.POST("/markets/:market/orders", s.placeOrder)
		v1.GET("/markets/:market/orders", s.openOrders)
		v1.DELETE("/markets/:market/orders", s.cancelAllOrders)
		v1.POST("/markets/:market/orders/batch-cancel", s.batchCancelOrders)
		v1.GET("/markets/:market/orders/:id", s.orderStatus)
		v1.DELETE("/markets/:market/orders/:id", s.cancelOrder)

		v1.GET("/markets/:market/price", s.marketPrice)
		v1.GET("/markets/:market/book", s.level2)
		v1.GET("/markets/:market/fees", s.tradingFees)

		v1.POST("/accounts/:user/deposit", s.deposit)
		v1.POST("/accounts/:user/withdraw", s.withdraw)
		v1.GET("/accounts/:user/balance", s.balance)
	}

	return router
}

// httpMetrics records request counts, latency and in-flight gauge.
func httpMetrics() gin.HandlerFunc {
	meter := otel.GetMeterProvider().Meter("github.com/erain9/deepmatch/pkg/server")
	metrics, err := otel.GetHTTPServerMetrics(meter)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx := c.Request.Context()

		metrics.AddInFlightRequests(ctx, 1)
		start := time.Now()
		c.Next()
		metrics.AddInFlightRequests(ctx, -1)

		status := c.Writer.Status()
		metrics.IncRequests(ctx, route)
		metrics.RecordLatency(ctx, route, time.Since(start), status)
		if status >= http.StatusInternalServerError {
			metrics.IncErrors(ctx, route, status)
		}
	}
}

// statusForError maps book errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrMarketNotFound), errors.Is(err, core.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMarketExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrFillOrKill),
		errors.Is(err, core.ErrPostOrAbort):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvalidPrice),
		errors.Is(err, core.ErrInvalidQuantity),
		errors.Is(err, core.ErrInvalidExpiry),
		errors.Is(err, core.ErrInvalidRestriction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger := logging.FromContext(c.Request.Context())
		logger.Error().Err(err).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func (s *HTTPService) createMarket(c *gin.Context) {
	var req CreateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	cfg := MarketConfig{
		Name:       req.Name,
		BaseAsset:  req.BaseAsset,
		QuoteAsset: req.QuoteAsset,
	}
	var err error
	if cfg.TickSize, err = ParseScaled(req.TickSize); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if cfg.LotSize, err = ParseScaled(req.LotSize); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.TakerFeeRate != "" {
		if cfg.TakerFeeRate, err = ParseScaled(req.TakerFeeRate); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	if req.MakerRebateRate != "" {
		if cfg.MakerRebateRate, err = ParseScaled(req.MakerRebateRate); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	info, err := s.manager.CreateMarket(c.Request.Context(), cfg)
	if err != nil {
		if errors.Is(err, ErrMarketExists) {
			abortWithError(c, err)
		} else {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, marketResponse(info))
}

func (s *HTTPService) listMarkets(c *gin.Context) {
	infos := s.manager.ListMarkets(c.Request.Context())
	out := make([]*MarketResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, marketResponse(info))
	}
	c.JSON(http.StatusOK, gin.H{"markets": out})
}

func (s *HTTPService) getMarket(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, marketResponse(mkt.Info()))
}

func (s *HTTPService) deleteMarket(c *gin.Context) {
	if err := s.manager.DeleteMarket(c.Request.Context(), c.Param("market")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPService) placeOrder(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	isBid, err := parseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var res *core.PlaceResult
	switch req.Type {
	case "limit":
		price, err := ParseScaled(req.Price)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		quantity, err := ParseScaled(req.Quantity)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		restriction, err := parseRestriction(req.Restriction)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		res, err = mkt.PlaceLimitOrder(c.Request.Context(), req.Owner, price, quantity, isBid, req.ExpireAt, restriction)
		if err != nil {
			abortWithError(c, err)
			return
		}
	case "market":
		if req.QuoteQuantity != "" {
			if !isBid {
				c.JSON(http.StatusBadRequest, errorResponse{Error: "quote_quantity is only valid for market buys"})
				return
			}
			quoteQuantity, err := ParseScaled(req.QuoteQuantity)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
				return
			}
			res, err = mkt.PlaceMarketOrderWithQuote(c.Request.Context(), req.Owner, quoteQuantity)
			if err != nil {
				abortWithError(c, err)
				return
			}
		} else {
			quantity, err := ParseScaled(req.Quantity)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
				return
			}
			res, err = mkt.PlaceMarketOrder(c.Request.Context(), req.Owner, quantity, isBid)
			if err != nil {
				abortWithError(c, err)
				return
			}
		}
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "type must be limit or market"})
		return
	}

	c.JSON(http.StatusOK, placeOrderResponse(res))
}

func (s *HTTPService) cancelOrder(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	orderID, err := parseOrderID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "owner query parameter is required"})
		return
	}

	if err := mkt.CancelOrder(c.Request.Context(), owner, orderID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPService) batchCancelOrders(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req BatchCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	orderIDs := make([]uint64, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		id, err := parseOrderID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		orderIDs = append(orderIDs, id)
	}

	if err := mkt.BatchCancelOrders(c.Request.Context(), req.Owner, orderIDs); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPService) cancelAllOrders(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "owner query parameter is required"})
		return
	}

	canceled := mkt.CancelAllOrders(c.Request.Context(), owner)
	out := make([]string, 0, len(canceled))
	for _, id := range canceled {
		out = append(out, formatOrderID(id))
	}
	c.JSON(http.StatusOK, CancelAllResponse{OrderIDs: out})
}

func (s *HTTPService) orderStatus(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	orderID, err := parseOrderID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "owner query parameter is required"})
		return
	}

	order, err := mkt.OrderStatus(owner, orderID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(order))
}

func (s *HTTPService) openOrders(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "owner query parameter is required"})
		return
	}

	orders := mkt.OpenOrders(owner)
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (s *HTTPService) marketPrice(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	bestBid, hasBid, bestAsk, hasAsk := mkt.MarketPrice()
	resp := MarketPriceResponse{}
	if hasBid {
		v := FormatScaled(bestBid)
		resp.BestBid = &v
	}
	if hasAsk {
		v := FormatScaled(bestAsk)
		resp.BestAsk = &v
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPService) level2(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	isBidSide, err := parseSide(c.DefaultQuery("side", "buy"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	priceLow := core.MinPrice
	priceHigh := core.MaxPrice
	if raw := c.Query("price_low"); raw != "" {
		if priceLow, err = ParseScaled(raw); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	if raw := c.Query("price_high"); raw != "" {
		if priceHigh, err = ParseScaled(raw); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	levels := mkt.Level2Range(priceLow, priceHigh, isBidSide)
	c.JSON(http.StatusOK, gin.H{
		"side":   sideString(isBidSide),
		"levels": priceLevelResponses(levels),
	})
}

func (s *HTTPService) tradingFees(c *gin.Context) {
	mkt, err := s.manager.GetMarket(c.Request.Context(), c.Param("market"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	baseFees, quoteFees := mkt.TradingFees()
	c.JSON(http.StatusOK, FeesResponse{
		BaseFees:  FormatScaled(baseFees),
		QuoteFees: FormatScaled(quoteFees),
	})
}

func (s *HTTPService) deposit(c *gin.Context) {
	user := c.Param("user")

	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := ParseScaled(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.manager.Custodian().IncreaseAvailable(user, req.Asset, amount)
	s.balanceJSON(c, user, req.Asset)
}

func (s *HTTPService) withdraw(c *gin.Context) {
	user := c.Param("user")

	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := ParseScaled(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.manager.Custodian().DecreaseAvailable(user, req.Asset, amount); err != nil {
		abortWithError(c, err)
		return
	}
	s.balanceJSON(c, user, req.Asset)
}

func (s *HTTPService) balance(c *gin.Context) {
	user := c.Param("user")
	asset := c.Query("asset")
	if asset == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "asset query parameter is required"})
		return
	}
	s.balanceJSON(c, user, asset)
}

func (s *HTTPService) balanceJSON(c *gin.Context, user, asset string) {
	custodian := s.manager.Custodian()
	c.JSON(http.StatusOK, BalanceResponse{
		User:      user,
		Asset:     asset,
		Available: FormatScaled(custodian.AvailableBalance(user, asset)),
		Locked:    FormatScaled(custodian.LockedBalance(user, asset)),
	})
}
