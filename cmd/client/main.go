// Command client is a command line tool for the order API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erain9/deepmatch/pkg/server"
)

var serverAddr = flag.String("addr", "http://localhost:8080", "The server base URL")

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	// Remove the command from os.Args to make flag parsing work
	os.Args = append(os.Args[:1], os.Args[2:]...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	api := &apiClient{http: &http.Client{Timeout: 10 * time.Second}}

	var err error
	switch command {
	case "create-market":
		err = createMarket(ctx, api)
	case "list-markets":
		err = listMarkets(ctx, api)
	case "get-market":
		err = getMarket(ctx, api)
	case "delete-market":
		err = deleteMarket(ctx, api)
	case "deposit":
		err = moveFunds(ctx, api, "deposit")
	case "withdraw":
		err = moveFunds(ctx, api, "withdraw")
	case "balance":
		err = showBalance(ctx, api)
	case "place":
		err = placeOrder(ctx, api)
	case "cancel":
		err = cancelOrder(ctx, api)
	case "cancel-all":
		err = cancelAll(ctx, api)
	case "orders":
		err = openOrders(ctx, api)
	case "order":
		err = orderStatus(ctx, api)
	case "book":
		err = showBook(ctx, api)
	case "price":
		err = showPrice(ctx, api)
	case "fees":
		err = showFees(ctx, api)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
}

// apiClient wraps the JSON API with error decoding.
type apiClient struct {
	http *http.Client
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (a *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, *serverAddr+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return &apiError{Status: resp.StatusCode, Message: e.Error}
		}
		return &apiError{Status: resp.StatusCode, Message: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func createMarket(ctx context.Context, api *apiClient) error {
	name := flag.String("name", "", "Market name")
	base := flag.String("base", "", "Base asset")
	quote := flag.String("quote", "", "Quote asset")
	tick := flag.String("tick", "0.01", "Tick size")
	lot := flag.String("lot", "0.001", "Lot size")
	fee := flag.String("fee", "0", "Taker fee rate")
	rebate := flag.String("rebate", "0", "Maker rebate rate")
	flag.Parse()

	var resp server.MarketResponse
	err := api.do(ctx, http.MethodPost, "/api/v1/markets", server.CreateMarketRequest{
		Name:            *name,
		BaseAsset:       *base,
		QuoteAsset:      *quote,
		TickSize:        *tick,
		LotSize:         *lot,
		TakerFeeRate:    *fee,
		MakerRebateRate: *rebate,
	}, &resp)
	if err != nil {
		return err
	}
	return printMarkets(os.Stdout, []*server.MarketResponse{&resp})
}

func listMarkets(ctx context.Context, api *apiClient) error {
	flag.Parse()
	var resp struct {
		Markets []*server.MarketResponse `json:"markets"`
	}
	if err := api.do(ctx, http.MethodGet, "/api/v1/markets", nil, &resp); err != nil {
		return err
	}
	return printMarkets(os.Stdout, resp.Markets)
}

func getMarket(ctx context.Context, api *apiClient) error {
	market := requireArg("get-market <market>")
	var resp server.MarketResponse
	if err := api.do(ctx, http.MethodGet, "/api/v1/markets/"+url.PathEscape(market), nil, &resp); err != nil {
		return err
	}
	return printMarkets(os.Stdout, []*server.MarketResponse{&resp})
}

func deleteMarket(ctx context.Context, api *apiClient) error {
	market := requireArg("delete-market <market>")
	if err := api.do(ctx, http.MethodDelete, "/api/v1/markets/"+url.PathEscape(market), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Deleted market %s\n", market)
	return nil
}

func moveFunds(ctx context.Context, api *apiClient, direction string) error {
	user := flag.String("user", "", "Account name")
	asset := flag.String("asset", "", "Asset symbol")
	amount := flag.String("amount", "", "Decimal amount")
	flag.Parse()

	var resp server.BalanceResponse
	path := fmt.Sprintf("/api/v1/accounts/%s/%s", url.PathEscape(*user), direction)
	err := api.do(ctx, http.MethodPost, path, server.BalanceRequest{Asset: *asset, Amount: *amount}, &resp)
	if err != nil {
		return err
	}
	printBalance(os.Stdout, &resp)
	return nil
}

func showBalance(ctx context.Context, api *apiClient) error {
	user := flag.String("user", "", "Account name")
	asset := flag.String("asset", "", "Asset symbol")
	flag.Parse()

	var resp server.BalanceResponse
	path := fmt.Sprintf("/api/v1/accounts/%s/balance?asset=%s", url.PathEscape(*user), url.QueryEscape(*asset))
	if err := api.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	printBalance(os.Stdout, &resp)
	return nil
}

func placeOrder(ctx context.Context, api *apiClient) error {
	market := flag.String("market", "", "Market name")
	owner := flag.String("owner", "", "Order owner")
	side := flag.String("side", "buy", "buy or sell")
	orderType := flag.String("type", "limit", "limit or market")
	price := flag.String("price", "", "Limit price")
	quantity := flag.String("quantity", "", "Base quantity")
	quoteQuantity := flag.String("quote-quantity", "", "Quote budget for a market buy")
	restriction := flag.String("restriction", "", "NO_RESTRICTION, IMMEDIATE_OR_CANCEL, FILL_OR_KILL or POST_OR_ABORT")
	expireAt := flag.Int64("expire-at", 0, "Expiry, unix milliseconds")
	flag.Parse()

	var resp server.PlaceOrderResponse
	path := "/api/v1/markets/" + url.PathEscape(*market) + "/orders"
	err := api.do(ctx, http.MethodPost, path, server.PlaceOrderRequest{
		Owner:         *owner,
		Side:          *side,
		Type:          *orderType,
		Price:         *price,
		Quantity:      *quantity,
		QuoteQuantity: *quoteQuantity,
		Restriction:   *restriction,
		ExpireAt:      *expireAt,
	}, &resp)
	if err != nil {
		return err
	}
	printPlaceResult(os.Stdout, &resp)
	return nil
}

func cancelOrder(ctx context.Context, api *apiClient) error {
	market := flag.String("market", "", "Market name")
	owner := flag.String("owner", "", "Order owner")
	id := flag.String("id", "", "Order id")
	flag.Parse()

	path := fmt.Sprintf("/api/v1/markets/%s/orders/%s?owner=%s",
		url.PathEscape(*market), url.PathEscape(*id), url.QueryEscape(*owner))
	if err := api.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	fmt.Printf("Canceled order %s\n", *id)
	return nil
}

func cancelAll(ctx context.Context, api *apiClient) error {
	market := flag.String("market", "", "Market name")
	owner := flag.String("owner", "", "Order owner")
	flag.Parse()

	var resp server.CancelAllResponse
	path := fmt.Sprintf("/api/v1/markets/%s/orders?owner=%s",
		url.PathEscape(*market), url.QueryEscape(*owner))
	if err := api.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Canceled %d orders\n", len(resp.OrderIDs))
	return nil
}

func openOrders(ctx context.Context, api *apiClient) error {
	market := flag.String("market", "", "Market name")
	owner := flag.String("owner", "", "Order owner")
	flag.Parse()

	var resp struct {
		Orders []*server.OrderResponse `json:"orders"`
	}
	path := fmt.Sprintf("/api/v1/markets/%s/orders?owner=%s",
		url.PathEscape(*market), url.QueryEscape(*owner))
	if err := api.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	return printOrders(os.Stdout, resp.Orders)
}

func orderStatus(ctx context.Context, api *apiClient) error {
	market := flag.String("market", "", "Market name")
	id := flag.String("id", "", "Order id")
	owner := flag.String("owner", "", "Order owner")
	flag.Parse()

	var resp server.OrderResponse
	path := fmt.Sprintf("/api/v1/markets/%s/orders/%s?owner=%s",
		url.PathEscape(*market), url.PathEscape(*id), url.QueryEscape(*owner))
	if err := api.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	return printOrders(os.Stdout, []*server.OrderResponse{&resp})
}

func showBook(ctx context.Context, api *apiClient) error {
	market := flag.String("market", "", "Market name")
	flag.Parse()

	base := "/api/v1/markets/" + url.PathEscape(*market) + "/book"
	var asks, bids struct {
		Levels []server.PriceLevelResponse `json:"levels"`
	}
	if err := api.do(ctx, http.MethodGet, base+"?side=sell", nil, &asks); err != nil {
		return err
	}
	if err := api.do(ctx, http.MethodGet, base+"?side=buy", nil, &bids); err != nil {
		return err
	}
	return printBook(os.Stdout, bids.Levels, asks.Levels)
}

func showPrice(ctx context.Context, api *apiClient) error {
	market := flag.String("market", "", "Market name")
	flag.Parse()

	var resp server.MarketPriceResponse
	path := "/api/v1/markets/" + url.PathEscape(*market) + "/price"
	if err := api.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	format := func(v *string) string {
		if v == nil {
			return "-"
		}
		return *v
	}
	fmt.Printf("best bid: %s\nbest ask: %s\n", format(resp.BestBid), format(resp.BestAsk))
	return nil
}

func showFees(ctx context.Context, api *apiClient) error {
	market := flag.String("market", "", "Market name")
	flag.Parse()

	var resp server.FeesResponse
	path := "/api/v1/markets/" + url.PathEscape(*market) + "/fees"
	if err := api.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	fmt.Printf("base fees:  %s\nquote fees: %s\n", resp.BaseFees, resp.QuoteFees)
	return nil
}

func requireArg(usage string) string {
	if len(os.Args) < 2 {
		fmt.Printf("Usage: %s\n", usage)
		os.Exit(1)
	}
	return os.Args[1]
}

func printMarkets(out io.Writer, markets []*server.MarketResponse) error {
	cyan := color.New(color.FgCyan).SprintfFunc()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		cyan("Name"), cyan("Base"), cyan("Quote"), cyan("Tick"), cyan("Lot"), cyan("Fee"), cyan("Open"))
	for _, m := range markets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			m.Name, m.BaseAsset, m.QuoteAsset, m.TickSize, m.LotSize, m.TakerFeeRate, m.OpenOrders)
	}
	return w.Flush()
}

func printOrders(out io.Writer, orders []*server.OrderResponse) error {
	cyan := color.New(color.FgCyan).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		cyan("ID"), cyan("Owner"), cyan("Side"), cyan("Price"), cyan("Quantity"), cyan("Expires"))
	for _, o := range orders {
		side := green("BUY")
		if o.Side == "sell" {
			side = red("SELL")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			o.OrderID, o.Owner, side, o.Price, o.Quantity, o.ExpireAt)
	}
	return w.Flush()
}

func printBook(out io.Writer, bids, asks []server.PriceLevelResponse) error {
	cyan := color.New(color.FgCyan).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\t%s\t%s\n", cyan("Price"), cyan("Quantity"), cyan("Side"))

	// Asks print worst first so the spread sits in the middle.
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%s\t%s\t%s\n", asks[i].Price, asks[i].Quantity, red("ASK"))
	}
	for _, level := range bids {
		fmt.Fprintf(w, "%s\t%s\t%s\n", level.Price, level.Quantity, green("BID"))
	}
	return w.Flush()
}

func printBalance(out io.Writer, b *server.BalanceResponse) {
	fmt.Fprintf(out, "%s %s: available %s, locked %s\n", b.User, b.Asset, b.Available, b.Locked)
}

func printPlaceResult(out io.Writer, r *server.PlaceOrderResponse) {
	if r.Rested {
		fmt.Fprintf(out, "Order %s rested on the book\n", r.OrderID)
	}
	fmt.Fprintf(out, "filled %s base (spent %s quote, received %s quote, spent %s base), unfilled %s\n",
		r.BaseFilled, r.QuoteSpent, r.QuoteReceived, r.BaseSpent, r.Unfilled)
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  create-market --name=BTC-USD --base=BTC --quote=USD [--tick=0.01] [--lot=0.001] [--fee=0.0025] [--rebate=0.001]")
	fmt.Println("  list-markets | get-market <name> | delete-market <name>")
	fmt.Println("  deposit --user=alice --asset=USD --amount=1000")
	fmt.Println("  withdraw --user=alice --asset=USD --amount=50")
	fmt.Println("  balance --user=alice --asset=USD")
	fmt.Println("  place --market=BTC-USD --owner=alice --side=buy --type=limit --price=100 --quantity=0.5 --expire-at=1700000000000")
	fmt.Println("  place --market=BTC-USD --owner=alice --side=buy --type=market --quote-quantity=250")
	fmt.Println("  cancel --market=BTC-USD --owner=alice --id=42")
	fmt.Println("  cancel-all --market=BTC-USD --owner=alice")
	fmt.Println("  orders --market=BTC-USD --owner=alice")
	fmt.Println("  order --market=BTC-USD --id=42")
	fmt.Println("  book --market=BTC-USD | price --market=BTC-USD | fees --market=BTC-USD")
}
