package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

func testRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestSymbolPriceCached(t *testing.T) {
	client, mr := testRedis(t)
	conn := &stubConn{price: &domain.SymbolPrice{Symbol: "EURUSD", Bid: 1.1, Ask: 1.1002}}
	svc := NewMarketService(testTracer(), &stubSessions{conn: conn}, client)

	for i := 0; i < 3; i++ {
		price, err := svc.SymbolPrice(context.Background(), "acc-1", "EURUSD")
		if err != nil {
			t.Fatal(err)
		}
		if price.Bid != 1.1 {
			t.Fatalf("unexpected price %+v", price)
		}
	}
	if conn.priceHits != 1 {
		t.Fatalf("expected a single platform hit, got %d", conn.priceHits)
	}

	mr.FastForward(priceCacheTTL + time.Second)
	if _, err := svc.SymbolPrice(context.Background(), "acc-1", "EURUSD"); err != nil {
		t.Fatal(err)
	}
	if conn.priceHits != 2 {
		t.Fatalf("expired cache entry should refetch, got %d hits", conn.priceHits)
	}
}

func TestSymbolPriceKeyedByAccountAndSymbol(t *testing.T) {
	client, _ := testRedis(t)
	conn := &stubConn{price: &domain.SymbolPrice{Symbol: "EURUSD"}}
	svc := NewMarketService(testTracer(), &stubSessions{conn: conn}, client)

	if _, err := svc.SymbolPrice(context.Background(), "acc-1", "EURUSD"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SymbolPrice(context.Background(), "acc-2", "EURUSD"); err != nil {
		t.Fatal(err)
	}
	if conn.priceHits != 2 {
		t.Fatalf("distinct accounts must not share cache entries, got %d hits", conn.priceHits)
	}
}

func TestSymbolPriceWithoutRedis(t *testing.T) {
	conn := &stubConn{price: &domain.SymbolPrice{Symbol: "EURUSD"}}
	svc := NewMarketService(testTracer(), &stubSessions{conn: conn}, nil)

	if _, err := svc.SymbolPrice(context.Background(), "acc-1", "EURUSD"); err != nil {
		t.Fatalf("nil redis must degrade to direct reads: %v", err)
	}
}

func TestCandlesRejectsUnsupportedTimeframe(t *testing.T) {
	svc := NewMarketService(testTracer(), &stubSessions{conn: &stubConn{}, account: &stubHistoryAccount{}}, nil)

	if _, err := svc.Candles(context.Background(), "acc-1", "EURUSD", "7m", nil, 10); err == nil {
		t.Fatal("unsupported timeframe must be rejected")
	}
}

func TestCandlesClampsLimit(t *testing.T) {
	account := &stubHistoryAccount{candles: []domain.Candle{{Symbol: "EURUSD"}}}
	svc := NewMarketService(testTracer(), &stubSessions{conn: &stubConn{}, account: account}, nil)

	if _, err := svc.Candles(context.Background(), "acc-1", "EURUSD", "1h", nil, 99999); err != nil {
		t.Fatal(err)
	}
	if account.lastLimit != 1000 {
		t.Fatalf("limit should clamp to 1000, got %d", account.lastLimit)
	}
	if account.lastTimeframe != "1h" {
		t.Fatalf("timeframe not forwarded, got %q", account.lastTimeframe)
	}
}

func TestTicksDefaultLookback(t *testing.T) {
	account := &stubHistoryAccount{}
	svc := NewMarketService(testTracer(), &stubSessions{conn: &stubConn{}, account: account}, nil)

	before := time.Now()
	if _, err := svc.Ticks(context.Background(), "acc-1", "EURUSD", nil, 0, 0); err != nil {
		t.Fatal(err)
	}
	want := before.Add(-time.Hour)
	if account.tickStart.Before(want.Add(-time.Minute)) || account.tickStart.After(want.Add(time.Minute)) {
		t.Fatalf("default tick lookback should be one hour, got start %v", account.tickStart)
	}
	if account.lastLimit != 1000 {
		t.Fatalf("default limit should be 1000, got %d", account.lastLimit)
	}
}

func TestTicksExplicitStart(t *testing.T) {
	account := &stubHistoryAccount{}
	svc := NewMarketService(testTracer(), &stubSessions{conn: &stubConn{}, account: account}, nil)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if _, err := svc.Ticks(context.Background(), "acc-1", "EURUSD", &start, 5, 100); err != nil {
		t.Fatal(err)
	}
	if !account.tickStart.Equal(start) {
		t.Fatalf("explicit start not forwarded, got %v", account.tickStart)
	}
}

func TestCalculateMarginValidatesVolume(t *testing.T) {
	svc := NewMarketService(testTracer(), &stubSessions{conn: &stubConn{}}, nil)

	if _, err := svc.CalculateMargin(context.Background(), "acc-1", "EURUSD", "ORDER_TYPE_BUY", 0, 1.1); err == nil {
		t.Fatal("zero volume must be rejected")
	}
	margin, err := svc.CalculateMargin(context.Background(), "acc-1", "EURUSD", "ORDER_TYPE_BUY", 0.1, 1.1)
	if err != nil {
		t.Fatal(err)
	}
	if margin.Margin != 108.5 {
		t.Fatalf("unexpected margin %+v", margin)
	}
}
