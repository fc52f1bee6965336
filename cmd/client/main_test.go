package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erain9/deepmatch/pkg/server"
)

func TestAPIClientDecodesErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"market not found"}`))
	}))
	defer ts.Close()

	old := *serverAddr
	*serverAddr = ts.URL
	defer func() { *serverAddr = old }()

	api := &apiClient{http: ts.Client()}
	err := api.do(context.Background(), http.MethodGet, "/api/v1/markets/NOPE", nil, nil)
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "market not found", apiErr.Message)
}

func TestAPIClientRoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"BTC-USD","base_asset":"BTC","quote_asset":"USD","tick_size":"0.01","lot_size":"0.001"}`))
	}))
	defer ts.Close()

	old := *serverAddr
	*serverAddr = ts.URL
	defer func() { *serverAddr = old }()

	api := &apiClient{http: ts.Client()}
	var resp server.MarketResponse
	err := api.do(context.Background(), http.MethodPost, "/api/v1/markets",
		server.CreateMarketRequest{Name: "BTC-USD"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", resp.Name)
	assert.Equal(t, "0.01", resp.TickSize)
}

func TestPrintBookOrdersAsksAboveBids(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	err := printBook(&buf,
		[]server.PriceLevelResponse{{Price: "99", Quantity: "1"}},
		[]server.PriceLevelResponse{{Price: "101", Quantity: "2"}, {Price: "102", Quantity: "3"}},
	)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ASK")
	assert.Contains(t, out, "BID")
	// Worst ask first, best bid right under the spread.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("102")), bytes.Index(buf.Bytes(), []byte("101")))
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("101")), bytes.Index(buf.Bytes(), []byte("99")))
}
