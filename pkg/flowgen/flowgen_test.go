package flowgen

import (
	"context"
	"testing"
	"time"

	"github.com/erain9/deepmatch/pkg/server"
)

type stubFetcher struct {
	price float64
}

func (s *stubFetcher) FetchPrice(context.Context) (float64, error) { return s.price, nil }
func (s *stubFetcher) Close() error                                { return nil }

type recordingPlacer struct {
	placed   []*server.PlaceOrderRequest
	cancels  int
	standing []string
}

func (p *recordingPlacer) PlaceOrder(_ context.Context, req *server.PlaceOrderRequest) (*server.PlaceOrderResponse, error) {
	p.placed = append(p.placed, req)
	return &server.PlaceOrderResponse{Rested: true}, nil
}

func (p *recordingPlacer) CancelAllOrders(context.Context, string) ([]string, error) {
	p.cancels++
	return p.standing, nil
}

func (p *recordingPlacer) Close() error { return nil }

func TestGeneratorRefreshCycle(t *testing.T) {
	cfg := testConfig()
	cfg.UpdateInterval = 10 * time.Millisecond

	placer := &recordingPlacer{standing: []string{"1", "2"}}
	gen := NewGenerator(cfg, testLogger(), placer, &stubFetcher{price: 50000}, NewLayeredSymmetricQuoting(cfg, testLogger()))

	if err := gen.refreshQuotes(context.Background()); err != nil {
		t.Fatalf("refreshQuotes failed: %v", err)
	}

	if placer.cancels != 1 {
		t.Errorf("Expected standing quotes withdrawn once, got %d", placer.cancels)
	}
	if len(placer.placed) != cfg.NumLevels*2 {
		t.Errorf("Expected %d quotes, got %d", cfg.NumLevels*2, len(placer.placed))
	}
}

func TestGeneratorStopWithdrawsQuotes(t *testing.T) {
	cfg := testConfig()
	cfg.UpdateInterval = time.Hour // Loop never ticks during the test

	placer := &recordingPlacer{}
	gen := NewGenerator(cfg, testLogger(), placer, &stubFetcher{price: 50000}, NewLayeredSymmetricQuoting(cfg, testLogger()))

	gen.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := gen.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if placer.cancels != 1 {
		t.Errorf("Expected one withdrawal on shutdown, got %d", placer.cancels)
	}
}
