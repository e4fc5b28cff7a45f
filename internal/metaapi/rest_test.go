package metaapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*RESTClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewRESTClient("test-token", nil, &ClientOptions{
		HTTPClient:      srv.Client(),
		ProvisioningURL: srv.URL,
		ClientAPIURL:    srv.URL,
	})
	return client, srv
}

func TestListAccounts(t *testing.T) {
	var gotToken string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("auth-token")
		if r.URL.Path != "/users/current/accounts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]domain.Account{
			{ID: "acc-1", Name: "demo", State: domain.StateDeployed},
		})
	}))

	accounts, err := client.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "acc-1" {
		t.Fatalf("unexpected accounts %+v", accounts)
	}
	if gotToken != "test-token" {
		t.Fatalf("expected auth-token header, got %q", gotToken)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Account not found"})
	}))

	_, err := client.GetAccount(context.Background(), "missing")
	var te *domain.TradeError
	if !errors.As(err, &te) {
		t.Fatalf("expected TradeError, got %v", err)
	}
	if te.Code != domain.CodeAccountNotFound {
		t.Fatalf("expected ACCOUNT_NOT_FOUND, got %s", te.Code)
	}
}

func TestErrorBodyMessageSurfaces(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "TradeError: market is closed"})
	}))

	_, err := client.ListAccounts(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	mapped := domain.MapError(err)
	if mapped.Code != domain.CodeMarketClosed {
		t.Fatalf("error body should feed the mapper, got %s", mapped.Code)
	}
}

func TestCreateMarketOrderBody(t *testing.T) {
	var got tradeRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/users/current/accounts/acc-1/trade" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode trade body: %v", err)
		}
		json.NewEncoder(w).Encode(domain.TradeResult{StringCode: "TRADE_RETCODE_DONE", OrderID: "42"})
	}))

	conn := &restRPCConnection{client: client, accountID: "acc-1"}
	sl := 1.05
	result, err := conn.CreateMarketOrder(context.Background(), domain.SideSell, "EURUSD", 0.1, &sl, nil, TradeOptions{
		Comment:       "scalp",
		ClientOrderID: "sell_EURUSD_1_abc",
	})
	if err != nil {
		t.Fatalf("CreateMarketOrder: %v", err)
	}
	if result.OrderID != "42" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got.ActionType != "ORDER_TYPE_SELL" {
		t.Fatalf("expected ORDER_TYPE_SELL, got %s", got.ActionType)
	}
	if got.ClientOrderID != "sell_EURUSD_1_abc" {
		t.Fatalf("client id not forwarded, got %q", got.ClientOrderID)
	}
	if got.StopLoss == nil || *got.StopLoss != 1.05 {
		t.Fatalf("stop loss not forwarded: %+v", got.StopLoss)
	}
	if got.TakeProfit != nil {
		t.Fatal("take profit should be omitted when unset")
	}
}

func TestCreateLimitOrderActionTypes(t *testing.T) {
	var got tradeRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(domain.TradeResult{})
	}))
	conn := &restRPCConnection{client: client, accountID: "acc-1"}

	if _, err := conn.CreateLimitOrder(context.Background(), domain.SideBuy, "EURUSD", 0.1, 1.08, nil, nil, TradeOptions{}); err != nil {
		t.Fatalf("CreateLimitOrder: %v", err)
	}
	if got.ActionType != "ORDER_TYPE_BUY_LIMIT" {
		t.Fatalf("expected ORDER_TYPE_BUY_LIMIT, got %s", got.ActionType)
	}
	if got.OpenPrice == nil || *got.OpenPrice != 1.08 {
		t.Fatalf("open price not forwarded: %+v", got.OpenPrice)
	}

	if _, err := conn.CreateStopOrder(context.Background(), domain.SideSell, "EURUSD", 0.1, 1.02, nil, nil, TradeOptions{}); err != nil {
		t.Fatalf("CreateStopOrder: %v", err)
	}
	if got.ActionType != "ORDER_TYPE_SELL_STOP" {
		t.Fatalf("expected ORDER_TYPE_SELL_STOP, got %s", got.ActionType)
	}
}

func TestClosePositionBody(t *testing.T) {
	var got tradeRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(domain.TradeResult{StringCode: "TRADE_RETCODE_DONE"})
	}))
	conn := &restRPCConnection{client: client, accountID: "acc-1"}

	if _, err := conn.ClosePosition(context.Background(), "pos-9"); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if got.ActionType != "POSITION_CLOSE_ID" || got.PositionID != "pos-9" {
		t.Fatalf("unexpected body %+v", got)
	}
}
