package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/dispatch"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/metaapi"
)

// JournalWriter persists trade attempts. Optional; a nil writer disables the
// journal without touching the trade path.
type JournalWriter interface {
	Insert(ctx context.Context, entry domain.JournalEntry) (int64, error)
}

// JournalReader serves the journal query surface.
type JournalReader interface {
	List(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error)
}

// PendingOrderKind selects between limit and stop placement.
type PendingOrderKind string

const (
	PendingLimit PendingOrderKind = "limit"
	PendingStop  PendingOrderKind = "stop"
)

// MarketOrderRequest is a validated market order placement.
type MarketOrderRequest struct {
	AccountID        string
	Side             domain.OrderSide
	Symbol           string
	Volume           float64
	StopLoss         *float64
	TakeProfit       *float64
	Comment          string
	ClientOrderID    string
	TrailingStopLoss *domain.TrailingStopLoss
}

// PendingOrderRequest is a validated limit or stop order placement.
type PendingOrderRequest struct {
	AccountID     string
	Kind          PendingOrderKind
	Side          domain.OrderSide
	Symbol        string
	Volume        float64
	OpenPrice     float64
	StopLoss      *float64
	TakeProfit    *float64
	Comment       string
	ClientOrderID string
}

type TradeService struct {
	tracer   trace.Tracer
	sessions SessionProvider
	journal  JournalWriter
}

func NewTradeService(tracer trace.Tracer, sessions SessionProvider, journal JournalWriter) *TradeService {
	return &TradeService{tracer: tracer, sessions: sessions, journal: journal}
}

func (s *TradeService) PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (*domain.TradeResult, error) {
	_, span := s.tracer.Start(ctx, "trade-service.place-market-order")
	defer span.End()

	if !req.Side.IsValid() {
		return nil, fmt.Errorf("side must be buy or sell, got %q", req.Side)
	}
	if req.Volume <= 0 {
		return nil, fmt.Errorf("volume must be positive")
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = dispatch.ClientOrderID(req.Side, req.Symbol)
	}

	sess, err := s.sessions.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	result, err := sess.Conn.CreateMarketOrder(ctx, req.Side, req.Symbol, req.Volume, req.StopLoss, req.TakeProfit, metaapi.TradeOptions{
		Comment:          req.Comment,
		ClientOrderID:    req.ClientOrderID,
		TrailingStopLoss: req.TrailingStopLoss,
	})
	s.record(ctx, "place_market_order", req.AccountID, req.Symbol, string(req.Side), req.Volume, req.ClientOrderID, err)
	return result, err
}

func (s *TradeService) PlacePendingOrder(ctx context.Context, req PendingOrderRequest) (*domain.TradeResult, error) {
	_, span := s.tracer.Start(ctx, "trade-service.place-pending-order")
	defer span.End()

	if !req.Side.IsValid() {
		return nil, fmt.Errorf("side must be buy or sell, got %q", req.Side)
	}
	if req.Volume <= 0 {
		return nil, fmt.Errorf("volume must be positive")
	}
	if req.OpenPrice <= 0 {
		return nil, fmt.Errorf("openPrice must be positive")
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = dispatch.ClientOrderID(req.Side, req.Symbol)
	}

	sess, err := s.sessions.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	opts := metaapi.TradeOptions{Comment: req.Comment, ClientOrderID: req.ClientOrderID}

	var result *domain.TradeResult
	var tool string
	switch req.Kind {
	case PendingStop:
		tool = "create_stop_order"
		result, err = sess.Conn.CreateStopOrder(ctx, req.Side, req.Symbol, req.Volume, req.OpenPrice, req.StopLoss, req.TakeProfit, opts)
	default:
		tool = "place_limit_order"
		result, err = sess.Conn.CreateLimitOrder(ctx, req.Side, req.Symbol, req.Volume, req.OpenPrice, req.StopLoss, req.TakeProfit, opts)
	}
	s.record(ctx, tool, req.AccountID, req.Symbol, string(req.Side), req.Volume, req.ClientOrderID, err)
	return result, err
}

func (s *TradeService) ModifyPosition(ctx context.Context, accountID, positionID string, stopLoss, takeProfit *float64) (*domain.TradeResult, error) {
	_, span := s.tracer.Start(ctx, "trade-service.modify-position")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	result, err := sess.Conn.ModifyPosition(ctx, positionID, stopLoss, takeProfit)
	s.record(ctx, "modify_position", accountID, "", "", 0, "", err)
	return result, err
}

func (s *TradeService) ClosePosition(ctx context.Context, accountID, positionID string) (*domain.TradeResult, error) {
	_, span := s.tracer.Start(ctx, "trade-service.close-position")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	result, err := sess.Conn.ClosePosition(ctx, positionID)
	s.record(ctx, "close_position", accountID, "", "", 0, "", err)
	return result, err
}

func (s *TradeService) ModifyOrder(ctx context.Context, accountID, orderID string, openPrice float64, stopLoss, takeProfit *float64) (*domain.TradeResult, error) {
	_, span := s.tracer.Start(ctx, "trade-service.modify-order")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	result, err := sess.Conn.ModifyOrder(ctx, orderID, openPrice, stopLoss, takeProfit)
	s.record(ctx, "modify_order", accountID, "", "", 0, "", err)
	return result, err
}

func (s *TradeService) CancelOrder(ctx context.Context, accountID, orderID string) (*domain.TradeResult, error) {
	_, span := s.tracer.Start(ctx, "trade-service.cancel-order")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	result, err := sess.Conn.CancelOrder(ctx, orderID)
	s.record(ctx, "cancel_order", accountID, "", "", 0, "", err)
	return result, err
}

func (s *TradeService) Positions(ctx context.Context, accountID string) ([]domain.Position, error) {
	_, span := s.tracer.Start(ctx, "trade-service.positions")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.Positions(ctx)
}

func (s *TradeService) Position(ctx context.Context, accountID, positionID string) (*domain.Position, error) {
	_, span := s.tracer.Start(ctx, "trade-service.position")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.Position(ctx, positionID)
}

func (s *TradeService) Orders(ctx context.Context, accountID string) ([]domain.Order, error) {
	_, span := s.tracer.Start(ctx, "trade-service.orders")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.Orders(ctx)
}

func (s *TradeService) Order(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	_, span := s.tracer.Start(ctx, "trade-service.order")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.Order(ctx, orderID)
}

func (s *TradeService) HistoryOrders(ctx context.Context, accountID string, start, end time.Time) ([]domain.Order, error) {
	_, span := s.tracer.Start(ctx, "trade-service.history-orders")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.HistoryOrdersByTimeRange(ctx, start, end)
}

func (s *TradeService) HistoryOrdersByTicket(ctx context.Context, accountID, ticket string) ([]domain.Order, error) {
	_, span := s.tracer.Start(ctx, "trade-service.history-orders-by-ticket")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.HistoryOrdersByTicket(ctx, ticket)
}

func (s *TradeService) Deals(ctx context.Context, accountID string, start, end time.Time) ([]domain.Deal, error) {
	_, span := s.tracer.Start(ctx, "trade-service.deals")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.DealsByTimeRange(ctx, start, end)
}

func (s *TradeService) DealsByTicket(ctx context.Context, accountID, ticket string) ([]domain.Deal, error) {
	_, span := s.tracer.Start(ctx, "trade-service.deals-by-ticket")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.DealsByTicket(ctx, ticket)
}

// record writes the trade attempt to the journal. Journal failures are logged
// and swallowed so the trade result always wins.
func (s *TradeService) record(ctx context.Context, tool, accountID, symbol, side string, volume float64, clientOrderID string, tradeErr error) {
	if s.journal == nil {
		return
	}
	entry := domain.JournalEntry{
		Tool:          tool,
		AccountID:     accountID,
		Symbol:        symbol,
		Side:          side,
		Volume:        volume,
		ClientOrderID: clientOrderID,
		Status:        "ok",
	}
	if tradeErr != nil {
		mapped := domain.MapError(tradeErr)
		entry.Status = "error"
		entry.Code = string(mapped.Code)
		entry.Detail = mapped.Message
	}
	if _, err := s.journal.Insert(ctx, entry); err != nil {
		slog.Warn("journal insert failed", "tool", tool, "accountId", accountID, "error", err)
	}
}
