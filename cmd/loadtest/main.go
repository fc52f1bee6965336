// Command loadtest hammers the order API with randomized limit orders and
// reports throughput and latency percentiles.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"golang.org/x/time/rate"

	"github.com/erain9/deepmatch/pkg/server"
)

const marketName = "LOAD-TEST"

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Server base URL")
	workers := flag.Int("workers", 16, "Concurrent workers")
	ordersPerWorker := flag.Int("orders", 500, "Orders per worker")
	maxRate := flag.Float64("rate", 2000, "Request rate limit per second")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, cleaning up...")
		cancel()
	}()

	client := &http.Client{Timeout: 10 * time.Second}

	if err := setupMarket(ctx, client, *addr, *workers); err != nil {
		log.Fatalf("Failed to set up load test market: %v", err)
	}
	log.Printf("Created market: %s", marketName)

	limiter := rate.NewLimiter(rate.Limit(*maxRate), int(*maxRate))

	// Latencies recorded in microseconds, up to 10s.
	hist := hdrhistogram.New(1, 10_000_000, 3)
	var histMu sync.Mutex

	var wg sync.WaitGroup
	errChan := make(chan error, (*workers)*(*ordersPerWorker))

	start := time.Now()
	log.Printf("Starting %d workers, %d orders per worker...", *workers, *ordersPerWorker)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID)))
			owner := fmt.Sprintf("loadtest-%d", workerID)

			for j := 0; j < *ordersPerWorker; j++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				reqStart := time.Now()
				err := placeRandomOrder(ctx, client, *addr, owner, rng)
				elapsed := time.Since(reqStart)

				histMu.Lock()
				hist.RecordValue(elapsed.Microseconds())
				histMu.Unlock()

				if err != nil {
					errChan <- err
				}
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)
	close(errChan)

	errCount := 0
	for range errChan {
		errCount++
	}

	total := hist.TotalCount()
	log.Printf("Load test completed in %v", duration)
	log.Printf("Total orders attempted: %d", total)
	log.Printf("Throughput: %.0f orders/sec", float64(total)/duration.Seconds())
	log.Printf("Errors encountered: %d", errCount)
	log.Printf("Latency p50: %v", time.Duration(hist.ValueAtQuantile(50))*time.Microsecond)
	log.Printf("Latency p90: %v", time.Duration(hist.ValueAtQuantile(90))*time.Microsecond)
	log.Printf("Latency p99: %v", time.Duration(hist.ValueAtQuantile(99))*time.Microsecond)
	log.Printf("Latency max: %v", time.Duration(hist.Max())*time.Microsecond)

	if err := teardownMarket(context.Background(), client, *addr); err != nil {
		log.Printf("Failed to delete market: %v", err)
	}
}

func setupMarket(ctx context.Context, client *http.Client, addr string, workers int) error {
	if err := postJSON(ctx, client, addr+"/api/v1/markets", server.CreateMarketRequest{
		Name:       marketName,
		BaseAsset:  "LTB",
		QuoteAsset: "LTQ",
		TickSize:   "0.01",
		LotSize:    "0.01",
	}); err != nil {
		return err
	}

	// Fund every worker on both sides so placements never bounce.
	for i := 0; i < workers; i++ {
		owner := fmt.Sprintf("loadtest-%d", i)
		for _, asset := range []string{"LTB", "LTQ"} {
			path := fmt.Sprintf("%s/api/v1/accounts/%s/deposit", addr, owner)
			if err := postJSON(ctx, client, path, server.BalanceRequest{
				Asset:  asset,
				Amount: "100000000",
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func placeRandomOrder(ctx context.Context, client *http.Client, addr, owner string, rng *rand.Rand) error {
	side := "buy"
	if rng.Intn(2) == 0 {
		side = "sell"
	}

	// Prices cluster around 100 so the two sides keep crossing.
	price := 90 + rng.Intn(21)
	quantity := 1 + rng.Intn(100)

	return postJSON(ctx, client, addr+"/api/v1/markets/"+marketName+"/orders", server.PlaceOrderRequest{
		Owner:    owner,
		Side:     side,
		Type:     "limit",
		Price:    fmt.Sprintf("%d", price),
		Quantity: fmt.Sprintf("%d.%02d", quantity/100, quantity%100),
		ExpireAt: time.Now().Add(time.Hour).UnixMilli(),
	})
}

func teardownMarket(ctx context.Context, client *http.Client, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, addr+"/api/v1/markets/"+marketName, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, e.Error)
	}
	return nil
}
