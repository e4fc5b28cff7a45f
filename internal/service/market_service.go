package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/dispatch"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

const (
	priceCacheTTL = 2 * time.Second
	specCacheTTL  = time.Hour
)

// MarketService serves quotes, symbol metadata and historical market data.
// Hot reads go through redis when a client is wired; cache failures degrade
// to a platform round trip.
type MarketService struct {
	tracer   trace.Tracer
	sessions SessionProvider
	redis    *redis.Client
}

func NewMarketService(tracer trace.Tracer, sessions SessionProvider, redisClient *redis.Client) *MarketService {
	return &MarketService{tracer: tracer, sessions: sessions, redis: redisClient}
}

func (s *MarketService) SymbolPrice(ctx context.Context, accountID, symbol string) (*domain.SymbolPrice, error) {
	_, span := s.tracer.Start(ctx, "market-service.symbol-price")
	defer span.End()

	key := "price:" + accountID + ":" + symbol
	var cached domain.SymbolPrice
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	price, err := sess.Conn.SymbolPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, price, priceCacheTTL)
	return price, nil
}

func (s *MarketService) Symbols(ctx context.Context, accountID string) ([]string, error) {
	_, span := s.tracer.Start(ctx, "market-service.symbols")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.Symbols(ctx)
}

func (s *MarketService) SymbolSpecification(ctx context.Context, accountID, symbol string) (*domain.SymbolSpecification, error) {
	_, span := s.tracer.Start(ctx, "market-service.symbol-specification")
	defer span.End()

	key := "spec:" + accountID + ":" + symbol
	var cached domain.SymbolSpecification
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	spec, err := sess.Conn.SymbolSpecification(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, spec, specCacheTTL)
	return spec, nil
}

func (s *MarketService) ServerTime(ctx context.Context, accountID string) (*domain.ServerTime, error) {
	_, span := s.tracer.Start(ctx, "market-service.server-time")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.ServerTime(ctx)
}

func (s *MarketService) CalculateMargin(ctx context.Context, accountID, symbol, orderType string, volume, openPrice float64) (*domain.Margin, error) {
	_, span := s.tracer.Start(ctx, "market-service.calculate-margin")
	defer span.End()

	if volume <= 0 {
		return nil, fmt.Errorf("volume must be positive")
	}
	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.CalculateMargin(ctx, symbol, orderType, volume, openPrice)
}

func (s *MarketService) Candles(ctx context.Context, accountID, symbol, timeframe string, startTime *time.Time, limit int) ([]domain.Candle, error) {
	_, span := s.tracer.Start(ctx, "market-service.candles")
	defer span.End()

	if !slices.Contains(domain.SupportedTimeframes, timeframe) {
		return nil, fmt.Errorf("unsupported timeframe %q, expected one of %v", timeframe, domain.SupportedTimeframes)
	}
	if limit <= 0 || limit > dispatch.DefaultQueryLimit {
		limit = dispatch.DefaultQueryLimit
	}

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Account.HistoricalCandles(ctx, symbol, timeframe, startTime, limit)
}

func (s *MarketService) Ticks(ctx context.Context, accountID, symbol string, startTime *time.Time, offset, limit int) ([]domain.Tick, error) {
	_, span := s.tracer.Start(ctx, "market-service.ticks")
	defer span.End()

	if limit <= 0 || limit > dispatch.DefaultQueryLimit {
		limit = dispatch.DefaultQueryLimit
	}
	start := time.Now().Add(-dispatch.DefaultTickLookback)
	if startTime != nil {
		start = *startTime
	}

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Account.HistoricalTicks(ctx, symbol, start, offset, limit)
}

func (s *MarketService) cacheGet(ctx context.Context, key string, out any) bool {
	if s.redis == nil {
		return false
	}
	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		slog.Warn("cache payload corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (s *MarketService) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
		slog.Debug("cache write failed", "key", key, "error", err)
	}
}
