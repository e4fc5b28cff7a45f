package mcp

import (
	"context"
	"time"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/service"
)

// AccountOperations exposes account lifecycle and state reads.
type AccountOperations interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	AccountState(ctx context.Context, accountID string) (*service.AccountStateView, error)
	AccountInformation(ctx context.Context, accountID string) (*domain.AccountInformation, error)
	TerminalState(ctx context.Context, accountID string) (*service.TerminalStateView, error)
	Deploy(ctx context.Context, accountID string) error
	Undeploy(ctx context.Context, accountID string) error
	Redeploy(ctx context.Context, accountID string) error
}

// TradeOperations exposes order placement and trading state queries.
type TradeOperations interface {
	PlaceMarketOrder(ctx context.Context, req service.MarketOrderRequest) (*domain.TradeResult, error)
	PlacePendingOrder(ctx context.Context, req service.PendingOrderRequest) (*domain.TradeResult, error)
	ModifyPosition(ctx context.Context, accountID, positionID string, stopLoss, takeProfit *float64) (*domain.TradeResult, error)
	ClosePosition(ctx context.Context, accountID, positionID string) (*domain.TradeResult, error)
	ModifyOrder(ctx context.Context, accountID, orderID string, openPrice float64, stopLoss, takeProfit *float64) (*domain.TradeResult, error)
	CancelOrder(ctx context.Context, accountID, orderID string) (*domain.TradeResult, error)
	Positions(ctx context.Context, accountID string) ([]domain.Position, error)
	Position(ctx context.Context, accountID, positionID string) (*domain.Position, error)
	Orders(ctx context.Context, accountID string) ([]domain.Order, error)
	Order(ctx context.Context, accountID, orderID string) (*domain.Order, error)
	HistoryOrders(ctx context.Context, accountID string, start, end time.Time) ([]domain.Order, error)
	HistoryOrdersByTicket(ctx context.Context, accountID, ticket string) ([]domain.Order, error)
	Deals(ctx context.Context, accountID string, start, end time.Time) ([]domain.Deal, error)
	DealsByTicket(ctx context.Context, accountID, ticket string) ([]domain.Deal, error)
}

// MarketDataOperations exposes quotes, symbol metadata and history.
type MarketDataOperations interface {
	SymbolPrice(ctx context.Context, accountID, symbol string) (*domain.SymbolPrice, error)
	Symbols(ctx context.Context, accountID string) ([]string, error)
	SymbolSpecification(ctx context.Context, accountID, symbol string) (*domain.SymbolSpecification, error)
	ServerTime(ctx context.Context, accountID string) (*domain.ServerTime, error)
	CalculateMargin(ctx context.Context, accountID, symbol, orderType string, volume, openPrice float64) (*domain.Margin, error)
	Candles(ctx context.Context, accountID, symbol, timeframe string, startTime *time.Time, limit int) ([]domain.Candle, error)
	Ticks(ctx context.Context, accountID, symbol string, startTime *time.Time, offset, limit int) ([]domain.Tick, error)
}

// PriceSubscriber manages live price subscriptions.
type PriceSubscriber interface {
	Subscribe(ctx context.Context, accountID, symbol string) (created bool, err error)
	Unsubscribe(ctx context.Context, accountID, symbol string) (removed bool, err error)
	Active() []string
}

// JournalReader serves trade journal queries. Optional.
type JournalReader interface {
	List(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error)
}
