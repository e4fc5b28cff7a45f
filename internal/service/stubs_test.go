package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/metaapi"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/session"
)

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

// stubConn records platform calls and answers from canned data.
type stubConn struct {
	metaapi.RPCConnection

	mu    sync.Mutex
	calls []string

	tradeErr    error
	tradeResult *domain.TradeResult
	lastSide    domain.OrderSide
	lastSymbol  string
	lastVolume  float64
	lastSL      *float64
	lastTP      *float64
	lastPrice   float64
	lastOpts    metaapi.TradeOptions

	info      *domain.AccountInformation
	positions []domain.Position
	orders    []domain.Order
	deals     []domain.Deal
	price     *domain.SymbolPrice
	spec      *domain.SymbolSpecification
	priceHits int

	historyStart time.Time
	historyEnd   time.Time
}

func (c *stubConn) called(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

func (c *stubConn) result() (*domain.TradeResult, error) {
	if c.tradeErr != nil {
		return nil, c.tradeErr
	}
	if c.tradeResult != nil {
		return c.tradeResult, nil
	}
	return &domain.TradeResult{StringCode: "TRADE_RETCODE_DONE"}, nil
}

func (c *stubConn) CreateMarketOrder(ctx context.Context, side domain.OrderSide, symbol string, volume float64, stopLoss, takeProfit *float64, opts metaapi.TradeOptions) (*domain.TradeResult, error) {
	c.called("CreateMarketOrder")
	c.lastSide, c.lastSymbol, c.lastVolume = side, symbol, volume
	c.lastSL, c.lastTP, c.lastOpts = stopLoss, takeProfit, opts
	return c.result()
}

func (c *stubConn) CreateLimitOrder(ctx context.Context, side domain.OrderSide, symbol string, volume, openPrice float64, stopLoss, takeProfit *float64, opts metaapi.TradeOptions) (*domain.TradeResult, error) {
	c.called("CreateLimitOrder")
	c.lastSide, c.lastSymbol, c.lastVolume, c.lastPrice = side, symbol, volume, openPrice
	c.lastSL, c.lastTP, c.lastOpts = stopLoss, takeProfit, opts
	return c.result()
}

func (c *stubConn) CreateStopOrder(ctx context.Context, side domain.OrderSide, symbol string, volume, openPrice float64, stopLoss, takeProfit *float64, opts metaapi.TradeOptions) (*domain.TradeResult, error) {
	c.called("CreateStopOrder")
	c.lastSide, c.lastSymbol, c.lastVolume, c.lastPrice = side, symbol, volume, openPrice
	c.lastSL, c.lastTP, c.lastOpts = stopLoss, takeProfit, opts
	return c.result()
}

func (c *stubConn) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit *float64) (*domain.TradeResult, error) {
	c.called("ModifyPosition")
	return c.result()
}

func (c *stubConn) ClosePosition(ctx context.Context, positionID string) (*domain.TradeResult, error) {
	c.called("ClosePosition")
	return c.result()
}

func (c *stubConn) ModifyOrder(ctx context.Context, orderID string, openPrice float64, stopLoss, takeProfit *float64) (*domain.TradeResult, error) {
	c.called("ModifyOrder")
	return c.result()
}

func (c *stubConn) CancelOrder(ctx context.Context, orderID string) (*domain.TradeResult, error) {
	c.called("CancelOrder")
	return c.result()
}

func (c *stubConn) AccountInformation(ctx context.Context) (*domain.AccountInformation, error) {
	c.called("AccountInformation")
	return c.info, nil
}

func (c *stubConn) Positions(ctx context.Context) ([]domain.Position, error) {
	c.called("Positions")
	return c.positions, nil
}

func (c *stubConn) Orders(ctx context.Context) ([]domain.Order, error) {
	c.called("Orders")
	return c.orders, nil
}

func (c *stubConn) HistoryOrdersByTimeRange(ctx context.Context, start, end time.Time) ([]domain.Order, error) {
	c.called("HistoryOrdersByTimeRange")
	c.historyStart, c.historyEnd = start, end
	return c.orders, nil
}

func (c *stubConn) DealsByTimeRange(ctx context.Context, start, end time.Time) ([]domain.Deal, error) {
	c.called("DealsByTimeRange")
	c.historyStart, c.historyEnd = start, end
	return c.deals, nil
}

func (c *stubConn) SymbolPrice(ctx context.Context, symbol string) (*domain.SymbolPrice, error) {
	c.called("SymbolPrice")
	c.mu.Lock()
	c.priceHits++
	c.mu.Unlock()
	return c.price, nil
}

func (c *stubConn) SymbolSpecification(ctx context.Context, symbol string) (*domain.SymbolSpecification, error) {
	c.called("SymbolSpecification")
	return c.spec, nil
}

func (c *stubConn) ServerTime(ctx context.Context) (*domain.ServerTime, error) {
	c.called("ServerTime")
	return &domain.ServerTime{Time: time.Unix(0, 0).UTC()}, nil
}

func (c *stubConn) CalculateMargin(ctx context.Context, symbol, orderType string, volume, openPrice float64) (*domain.Margin, error) {
	c.called("CalculateMargin")
	return &domain.Margin{Margin: 108.5}, nil
}

// stubHistoryAccount answers historical market data queries.
type stubHistoryAccount struct {
	metaapi.Account

	candles       []domain.Candle
	ticks         []domain.Tick
	lastTimeframe string
	lastStart     *time.Time
	tickStart     time.Time
	lastLimit     int
}

func (a *stubHistoryAccount) HistoricalCandles(ctx context.Context, symbol, timeframe string, startTime *time.Time, limit int) ([]domain.Candle, error) {
	a.lastTimeframe, a.lastStart, a.lastLimit = timeframe, startTime, limit
	return a.candles, nil
}

func (a *stubHistoryAccount) HistoricalTicks(ctx context.Context, symbol string, startTime time.Time, offset, limit int) ([]domain.Tick, error) {
	a.tickStart, a.lastLimit = startTime, limit
	return a.ticks, nil
}

// stubSessions hands out one fixed session per account.
type stubSessions struct {
	mu      sync.Mutex
	conn    *stubConn
	account metaapi.Account
	getErr  error
	evicted []string
}

func (s *stubSessions) Get(ctx context.Context, accountID string) (*session.Session, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &session.Session{AccountID: accountID, Account: s.account, Conn: s.conn}, nil
}

func (s *stubSessions) Evict(accountID string) {
	s.mu.Lock()
	s.evicted = append(s.evicted, accountID)
	s.mu.Unlock()
}

// stubJournal captures journal writes.
type stubJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
	err     error
}

func (j *stubJournal) Insert(ctx context.Context, entry domain.JournalEntry) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return 0, j.err
	}
	j.entries = append(j.entries, entry)
	return int64(len(j.entries)), nil
}
