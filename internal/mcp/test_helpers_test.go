package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/service"
)

type stubAccountOps struct {
	accounts []domain.Account
	state    *service.AccountStateView
	info     *domain.AccountInformation
	terminal *service.TerminalStateView
	err      error

	deployed   []string
	undeployed []string
	redeployed []string
}

func (s *stubAccountOps) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.accounts, s.err
}

func (s *stubAccountOps) AccountState(ctx context.Context, accountID string) (*service.AccountStateView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.state, nil
}

func (s *stubAccountOps) AccountInformation(ctx context.Context, accountID string) (*domain.AccountInformation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.info, nil
}

func (s *stubAccountOps) TerminalState(ctx context.Context, accountID string) (*service.TerminalStateView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.terminal, nil
}

func (s *stubAccountOps) Deploy(ctx context.Context, accountID string) error {
	s.deployed = append(s.deployed, accountID)
	return s.err
}

func (s *stubAccountOps) Undeploy(ctx context.Context, accountID string) error {
	s.undeployed = append(s.undeployed, accountID)
	return s.err
}

func (s *stubAccountOps) Redeploy(ctx context.Context, accountID string) error {
	s.redeployed = append(s.redeployed, accountID)
	return s.err
}

type stubTradeOps struct {
	result *domain.TradeResult
	err    error

	lastMarket  service.MarketOrderRequest
	lastPending service.PendingOrderRequest
	histStart   time.Time
	histEnd     time.Time

	positions []domain.Position
	orders    []domain.Order
	deals     []domain.Deal
}

func (s *stubTradeOps) tradeResult() (*domain.TradeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &domain.TradeResult{StringCode: "TRADE_RETCODE_DONE", OrderID: "1"}, nil
}

func (s *stubTradeOps) PlaceMarketOrder(ctx context.Context, req service.MarketOrderRequest) (*domain.TradeResult, error) {
	s.lastMarket = req
	return s.tradeResult()
}

func (s *stubTradeOps) PlacePendingOrder(ctx context.Context, req service.PendingOrderRequest) (*domain.TradeResult, error) {
	s.lastPending = req
	return s.tradeResult()
}

func (s *stubTradeOps) ModifyPosition(ctx context.Context, accountID, positionID string, stopLoss, takeProfit *float64) (*domain.TradeResult, error) {
	return s.tradeResult()
}

func (s *stubTradeOps) ClosePosition(ctx context.Context, accountID, positionID string) (*domain.TradeResult, error) {
	return s.tradeResult()
}

func (s *stubTradeOps) ModifyOrder(ctx context.Context, accountID, orderID string, openPrice float64, stopLoss, takeProfit *float64) (*domain.TradeResult, error) {
	return s.tradeResult()
}

func (s *stubTradeOps) CancelOrder(ctx context.Context, accountID, orderID string) (*domain.TradeResult, error) {
	return s.tradeResult()
}

func (s *stubTradeOps) Positions(ctx context.Context, accountID string) ([]domain.Position, error) {
	return s.positions, s.err
}

func (s *stubTradeOps) Position(ctx context.Context, accountID, positionID string) (*domain.Position, error) {
	if len(s.positions) == 0 {
		return nil, s.err
	}
	return &s.positions[0], s.err
}

func (s *stubTradeOps) Orders(ctx context.Context, accountID string) ([]domain.Order, error) {
	return s.orders, s.err
}

func (s *stubTradeOps) Order(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	if len(s.orders) == 0 {
		return nil, s.err
	}
	return &s.orders[0], s.err
}

func (s *stubTradeOps) HistoryOrders(ctx context.Context, accountID string, start, end time.Time) ([]domain.Order, error) {
	s.histStart, s.histEnd = start, end
	return s.orders, s.err
}

func (s *stubTradeOps) HistoryOrdersByTicket(ctx context.Context, accountID, ticket string) ([]domain.Order, error) {
	return s.orders, s.err
}

func (s *stubTradeOps) Deals(ctx context.Context, accountID string, start, end time.Time) ([]domain.Deal, error) {
	s.histStart, s.histEnd = start, end
	return s.deals, s.err
}

func (s *stubTradeOps) DealsByTicket(ctx context.Context, accountID, ticket string) ([]domain.Deal, error) {
	return s.deals, s.err
}

type stubMarketOps struct {
	price *domain.SymbolPrice
	spec  *domain.SymbolSpecification
	err   error
}

func (s *stubMarketOps) SymbolPrice(ctx context.Context, accountID, symbol string) (*domain.SymbolPrice, error) {
	return s.price, s.err
}

func (s *stubMarketOps) Symbols(ctx context.Context, accountID string) ([]string, error) {
	return []string{"EURUSD", "GBPUSD"}, s.err
}

func (s *stubMarketOps) SymbolSpecification(ctx context.Context, accountID, symbol string) (*domain.SymbolSpecification, error) {
	return s.spec, s.err
}

func (s *stubMarketOps) ServerTime(ctx context.Context, accountID string) (*domain.ServerTime, error) {
	return &domain.ServerTime{Time: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}, s.err
}

func (s *stubMarketOps) CalculateMargin(ctx context.Context, accountID, symbol, orderType string, volume, openPrice float64) (*domain.Margin, error) {
	return &domain.Margin{Margin: 108.5}, s.err
}

func (s *stubMarketOps) Candles(ctx context.Context, accountID, symbol, timeframe string, startTime *time.Time, limit int) ([]domain.Candle, error) {
	return []domain.Candle{{Symbol: symbol, Timeframe: timeframe}}, s.err
}

func (s *stubMarketOps) Ticks(ctx context.Context, accountID, symbol string, startTime *time.Time, offset, limit int) ([]domain.Tick, error) {
	return []domain.Tick{{Symbol: symbol}}, s.err
}

type stubSubscriber struct {
	active  map[string]struct{}
	lastErr error
}

func newStubSubscriber() *stubSubscriber {
	return &stubSubscriber{active: map[string]struct{}{}}
}

func (s *stubSubscriber) Subscribe(ctx context.Context, accountID, symbol string) (bool, error) {
	if s.lastErr != nil {
		return false, s.lastErr
	}
	key := accountID + ":" + symbol
	if _, ok := s.active[key]; ok {
		return false, nil
	}
	s.active[key] = struct{}{}
	return true, nil
}

func (s *stubSubscriber) Unsubscribe(ctx context.Context, accountID, symbol string) (bool, error) {
	key := accountID + ":" + symbol
	if _, ok := s.active[key]; !ok {
		return false, nil
	}
	delete(s.active, key)
	return true, nil
}

func (s *stubSubscriber) Active() []string {
	keys := make([]string, 0, len(s.active))
	for k := range s.active {
		keys = append(keys, k)
	}
	return keys
}

type stubJournalReader struct {
	entries []domain.JournalEntry
}

func (s *stubJournalReader) List(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error) {
	return s.entries, nil
}

func testServices() Services {
	return Services{
		Accounts: &stubAccountOps{
			accounts: []domain.Account{{ID: "acc-1", Name: "demo", State: domain.StateDeployed}},
			state: &service.AccountStateView{
				ID: "acc-1", State: domain.StateDeployed, ConnectionStatus: domain.StatusConnected,
			},
			info: &domain.AccountInformation{Balance: 1000, Currency: "USD"},
			terminal: &service.TerminalStateView{
				AccountInformation: &domain.AccountInformation{Balance: 1000},
			},
		},
		Trades: &stubTradeOps{
			positions: []domain.Position{{ID: "p1", Symbol: "EURUSD"}},
			orders:    []domain.Order{{ID: "o1", Symbol: "EURUSD"}},
		},
		Market: &stubMarketOps{
			price: &domain.SymbolPrice{Symbol: "EURUSD", Bid: 1.1, Ask: 1.1002},
			spec:  &domain.SymbolSpecification{Symbol: "EURUSD", Digits: 5},
		},
		Subscriptions: newStubSubscriber(),
		Journal:       &stubJournalReader{},
	}
}

func connectInMemory(t *testing.T, srv *sdkmcp.Server) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := srv.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })
	return clientSession
}

func callTool(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) (*sdkmcp.CallToolResult, string) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("call %s returned no content", name)
	}
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	if !ok {
		t.Fatalf("call %s returned non-text content %T", name, result.Content[0])
	}
	return result, text.Text
}

func decodeJSON(t *testing.T, raw string, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
}
