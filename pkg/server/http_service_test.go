package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erain9/deepmatch/pkg/backend/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type httpFixture struct {
	router    *gin.Engine
	custodian *memory.Custodian
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	custodian := memory.NewCustodian()
	manager := NewMarketManager(custodian, WithClock(func() int64 { return testClockMs }))
	t.Cleanup(manager.Close)
	return &httpFixture{
		router:    NewHTTPService(manager).Router(),
		custodian: custodian,
	}
}

func (f *httpFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *httpFixture) createMarket(t *testing.T) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/markets", CreateMarketRequest{
		Name:            "BASE-QUOTE",
		BaseAsset:       "BASE",
		QuoteAsset:      "QUOTE",
		TickSize:        "1",
		LotSize:         "0.1",
		TakerFeeRate:    "0.0025",
		MakerRebateRate: "0.001",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHTTPCreateMarket(t *testing.T) {
	f := newHTTPFixture(t)
	f.createMarket(t)

	// Duplicate names conflict.
	w := f.do(t, http.MethodPost, "/api/v1/markets", CreateMarketRequest{
		Name: "BASE-QUOTE", BaseAsset: "BASE", QuoteAsset: "QUOTE",
		TickSize: "1", LotSize: "0.1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/markets/BASE-QUOTE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeJSON[MarketResponse](t, w)
	assert.Equal(t, "1", resp.TickSize)
	assert.Equal(t, "0.1", resp.LotSize)
	assert.Equal(t, "0.0025", resp.TakerFeeRate)
}

func TestHTTPCreateMarketRejectsPrecisionOverflow(t *testing.T) {
	f := newHTTPFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/markets", CreateMarketRequest{
		Name: "BAD", BaseAsset: "BASE", QuoteAsset: "QUOTE",
		TickSize: "0.0000000001", LotSize: "0.1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTPDepositWithdrawBalance(t *testing.T) {
	f := newHTTPFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/accounts/alice/deposit", BalanceRequest{Asset: "QUOTE", Amount: "100.5"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeJSON[BalanceResponse](t, w)
	assert.Equal(t, "100.5", resp.Available)
	assert.Equal(t, "0", resp.Locked)

	w = f.do(t, http.MethodPost, "/api/v1/accounts/alice/withdraw", BalanceRequest{Asset: "QUOTE", Amount: "0.5"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeJSON[BalanceResponse](t, w)
	assert.Equal(t, "100", resp.Available)

	// Overdraft is rejected.
	w = f.do(t, http.MethodPost, "/api/v1/accounts/alice/withdraw", BalanceRequest{Asset: "QUOTE", Amount: "1000"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/accounts/alice/balance?asset=QUOTE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeJSON[BalanceResponse](t, w)
	assert.Equal(t, "100", resp.Available)
}

func TestHTTPPlaceLimitOrderAndStatus(t *testing.T) {
	f := newHTTPFixture(t)
	f.createMarket(t)
	f.custodian.Deposit("alice", "QUOTE", 1_000_000_000_000)

	w := f.do(t, http.MethodPost, "/api/v1/markets/BASE-QUOTE/orders", PlaceOrderRequest{
		Owner:    "alice",
		Side:     "buy",
		Type:     "limit",
		Price:    "10",
		Quantity: "5",
		ExpireAt: 100_000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	placed := decodeJSON[PlaceOrderResponse](t, w)
	assert.True(t, placed.Rested)
	assert.Equal(t, "0", placed.OrderID)
	assert.Equal(t, "0", placed.BaseFilled)

	w = f.do(t, http.MethodGet, "/api/v1/markets/BASE-QUOTE/orders/"+placed.OrderID+"?owner=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeJSON[OrderResponse](t, w)
	assert.Equal(t, "alice", status.Owner)
	assert.Equal(t, "buy", status.Side)
	assert.Equal(t, "10", status.Price)
	assert.Equal(t, "5", status.Quantity)

	// Status reads are owner-scoped: no owner is a bad request, someone
	// else's owner reads as not found.
	w = f.do(t, http.MethodGet, "/api/v1/markets/BASE-QUOTE/orders/"+placed.OrderID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodGet, "/api/v1/markets/BASE-QUOTE/orders/"+placed.OrderID+"?owner=bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTPPlaceOrderValidation(t *testing.T) {
	f := newHTTPFixture(t)
	f.createMarket(t)
	f.custodian.Deposit("alice", "QUOTE", 1_000_000_000_000)

	cases := map[string]PlaceOrderRequest{
		"bad side": {Owner: "alice", Side: "hold", Type: "limit", Price: "10", Quantity: "1", ExpireAt: 100_000},
		"bad type": {Owner: "alice", Side: "buy", Type: "stop", Price: "10", Quantity: "1", ExpireAt: 100_000},
		"bad restriction": {
			Owner: "alice", Side: "buy", Type: "limit", Price: "10", Quantity: "1",
			ExpireAt: 100_000, Restriction: "MAYBE",
		},
		"quote budget on sell": {Owner: "alice", Side: "sell", Type: "market", QuoteQuantity: "10"},
	}
	for name, req := range cases {
		w := f.do(t, http.MethodPost, "/api/v1/markets/BASE-QUOTE/orders", req)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	// Price off the tick grid is rejected by the book itself.
	w := f.do(t, http.MethodPost, "/api/v1/markets/BASE-QUOTE/orders", PlaceOrderRequest{
		Owner: "alice", Side: "buy", Type: "limit", Price: "10.5", Quantity: "1", ExpireAt: 100_000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown market 404s before the body is read.
	w = f.do(t, http.MethodPost, "/api/v1/markets/NOPE/orders", PlaceOrderRequest{
		Owner: "alice", Side: "buy", Type: "limit", Price: "10", Quantity: "1", ExpireAt: 100_000,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTPMatchAndDepth(t *testing.T) {
	f := newHTTPFixture(t)
	f.createMarket(t)
	f.custodian.Deposit("maker", "BASE", 100_000_000_000)
	f.custodian.Deposit("taker", "QUOTE", 1_000_000_000_000)

	w := f.do(t, http.MethodPost, "/api/v1/markets/BASE-QUOTE/orders", PlaceOrderRequest{
		Owner: "maker", Side: "sell", Type: "limit", Price: "10", Quantity: "5", ExpireAt: 100_000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/markets/BASE-QUOTE/book?side=sell", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var depth struct {
		Side   string               `json:"side"`
		Levels []PriceLevelResponse `json:"levels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &depth))
	require.Len(t, depth.Levels, 1)
	assert.Equal(t, "10", depth.Levels[0].Price)
	assert.Equal(t, "5", depth.Levels[0].Quantity)

	// Taker lifts 2 base with a fee of 25 bps on the 20 quote notional.
	w = f.do(t, http.MethodPost, "/api/v1/markets/BASE-QUOTE/orders", PlaceOrderRequest{
		Owner: "taker", Side: "buy", Type: "market", Quantity: "2",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	filled := decodeJSON[PlaceOrderResponse](t, w)
	assert.False(t, filled.Rested)
	assert.Equal(t, "2", filled.BaseFilled)
	assert.Equal(t, "20.05", filled.QuoteSpent)

	w = f.do(t, http.MethodGet, "/api/v1/markets/BASE-QUOTE/price", nil)
	require.Equal(t, http.StatusOK, w.Code)
	price := decodeJSON[MarketPriceResponse](t, w)
	require.NotNil(t, price.BestAsk)
	assert.Equal(t, "10", *price.BestAsk)
	assert.Nil(t, price.BestBid)

	// Net fee pool is commission minus the maker rebate.
	w = f.do(t, http.MethodGet, "/api/v1/markets/BASE-QUOTE/fees", nil)
	require.Equal(t, http.StatusOK, w.Code)
	fees := decodeJSON[FeesResponse](t, w)
	assert.Equal(t, "0.03", fees.QuoteFees)
	assert.Equal(t, "0", fees.BaseFees)
}

func TestHTTPCancelFlows(t *testing.T) {
	f := newHTTPFixture(t)
	f.createMarket(t)
	f.custodian.Deposit("alice", "QUOTE", 1_000_000_000_000)

	var ids []string
	for _, price := range []string{"8", "9", "10"} {
		w := f.do(t, http.MethodPost, "/api/v1/markets/BASE-QUOTE/orders", PlaceOrderRequest{
			Owner: "alice", Side: "buy", Type: "limit", Price: price, Quantity: "1", ExpireAt: 100_000,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		ids = append(ids, decodeJSON[PlaceOrderResponse](t, w).OrderID)
	}

	// Cancel by someone else is forbidden.
	w := f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/markets/BASE-QUOTE/orders/%s?owner=bob", ids[0]), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/markets/BASE-QUOTE/orders/%s?owner=alice", ids[0]), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Batch cancel with a repeated id is atomic and changes nothing.
	w = f.do(t, http.MethodPost, "/api/v1/markets/BASE-QUOTE/orders/batch-cancel", BatchCancelRequest{
		Owner:    "alice",
		OrderIDs: []string{ids[1], ids[1]},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/markets/BASE-QUOTE/orders?owner=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var open struct {
		Orders []*OrderResponse `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &open))
	assert.Len(t, open.Orders, 2)

	w = f.do(t, http.MethodDelete, "/api/v1/markets/BASE-QUOTE/orders?owner=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	canceled := decodeJSON[CancelAllResponse](t, w)
	assert.ElementsMatch(t, []string{ids[1], ids[2]}, canceled.OrderIDs)
}
