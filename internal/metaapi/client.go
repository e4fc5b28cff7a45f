// Package metaapi wraps the remote MetaTrader platform API. Everything above
// this package consumes the interfaces; the REST and websocket details stay
// private to it.
package metaapi

import (
	"context"
	"time"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

// Client is the entry point to the provisioning side of the platform.
type Client interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
}

// Account is one provisioned trading account with its lifecycle commands.
type Account interface {
	ID() string
	State() domain.AccountState
	Details() domain.Account
	Deploy(ctx context.Context) error
	Undeploy(ctx context.Context) error
	WaitConnected(ctx context.Context) error
	RPCConnection() RPCConnection
	StreamingConnection() StreamingConnection
	HistoricalCandles(ctx context.Context, symbol, timeframe string, startTime *time.Time, limit int) ([]domain.Candle, error)
	HistoricalTicks(ctx context.Context, symbol string, startTime time.Time, offset, limit int) ([]domain.Tick, error)
}

// TradeOptions carries the optional fields shared by order-creating calls.
type TradeOptions struct {
	Comment          string
	ClientOrderID    string
	TrailingStopLoss *domain.TrailingStopLoss
}

// RPCConnection is the query/command session bound to a deployed account.
type RPCConnection interface {
	Connect(ctx context.Context) error
	WaitSynchronized(ctx context.Context) error
	Close(ctx context.Context) error

	AccountInformation(ctx context.Context) (*domain.AccountInformation, error)
	Positions(ctx context.Context) ([]domain.Position, error)
	Position(ctx context.Context, positionID string) (*domain.Position, error)
	Orders(ctx context.Context) ([]domain.Order, error)
	Order(ctx context.Context, orderID string) (*domain.Order, error)
	HistoryOrdersByTimeRange(ctx context.Context, start, end time.Time) ([]domain.Order, error)
	HistoryOrdersByTicket(ctx context.Context, ticket string) ([]domain.Order, error)
	DealsByTimeRange(ctx context.Context, start, end time.Time) ([]domain.Deal, error)
	DealsByTicket(ctx context.Context, ticket string) ([]domain.Deal, error)
	SymbolPrice(ctx context.Context, symbol string) (*domain.SymbolPrice, error)
	Symbols(ctx context.Context) ([]string, error)
	SymbolSpecification(ctx context.Context, symbol string) (*domain.SymbolSpecification, error)
	ServerTime(ctx context.Context) (*domain.ServerTime, error)
	CalculateMargin(ctx context.Context, symbol, orderType string, volume, openPrice float64) (*domain.Margin, error)

	CreateMarketOrder(ctx context.Context, side domain.OrderSide, symbol string, volume float64, stopLoss, takeProfit *float64, opts TradeOptions) (*domain.TradeResult, error)
	CreateLimitOrder(ctx context.Context, side domain.OrderSide, symbol string, volume, openPrice float64, stopLoss, takeProfit *float64, opts TradeOptions) (*domain.TradeResult, error)
	CreateStopOrder(ctx context.Context, side domain.OrderSide, symbol string, volume, openPrice float64, stopLoss, takeProfit *float64, opts TradeOptions) (*domain.TradeResult, error)
	ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit *float64) (*domain.TradeResult, error)
	ClosePosition(ctx context.Context, positionID string) (*domain.TradeResult, error)
	ModifyOrder(ctx context.Context, orderID string, openPrice float64, stopLoss, takeProfit *float64) (*domain.TradeResult, error)
	CancelOrder(ctx context.Context, orderID string) (*domain.TradeResult, error)
}

// TickHandler receives live price updates from a streaming connection.
type TickHandler func(tick domain.Tick)

// StreamingConnection is the push-capable session used for market data
// subscriptions. It is a distinct connection variant from RPCConnection and
// is never stored in the session cache.
type StreamingConnection interface {
	Connect(ctx context.Context) error
	SubscribeToMarketData(ctx context.Context, symbol string) error
	UnsubscribeFromMarketData(ctx context.Context, symbol string) error
	OnTick(h TickHandler) (remove func())
	Close() error
}
