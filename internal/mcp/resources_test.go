package mcp

import (
	"context"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

func readResource(t *testing.T, session *sdkmcp.ClientSession, uri string) string {
	t.Helper()
	result, err := session.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: uri})
	if err != nil {
		t.Fatalf("read %s: %v", uri, err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("read %s: expected 1 content, got %d", uri, len(result.Contents))
	}
	return result.Contents[0].Text
}

func TestAccountsResource(t *testing.T) {
	srv := newTestServer(t, testServices())
	session := connectInMemory(t, srv)

	text := readResource(t, session, "metaapi://accounts")
	var accounts []domain.Account
	decodeJSON(t, text, &accounts)
	if len(accounts) != 1 || accounts[0].ID != "acc-1" {
		t.Fatalf("unexpected accounts payload: %s", text)
	}
}

func TestAccountPositionsResource(t *testing.T) {
	srv := newTestServer(t, testServices())
	session := connectInMemory(t, srv)

	text := readResource(t, session, "metaapi://accounts/acc-1/positions")
	var positions []domain.Position
	decodeJSON(t, text, &positions)
	if len(positions) != 1 || positions[0].ID != "p1" {
		t.Fatalf("unexpected positions payload: %s", text)
	}
}

func TestAccountOrdersResource(t *testing.T) {
	srv := newTestServer(t, testServices())
	session := connectInMemory(t, srv)

	text := readResource(t, session, "metaapi://accounts/acc-1/orders")
	var orders []domain.Order
	decodeJSON(t, text, &orders)
	if len(orders) != 1 || orders[0].ID != "o1" {
		t.Fatalf("unexpected orders payload: %s", text)
	}
}

func TestSubscriptionsResource(t *testing.T) {
	services := testServices()
	srv := newTestServer(t, services)
	session := connectInMemory(t, srv)

	callTool(t, session, "subscribe_price", map[string]any{
		"accountId": "acc-1", "symbol": "EURUSD",
	})
	text := readResource(t, session, "metaapi://subscriptions")
	var keys []string
	decodeJSON(t, text, &keys)
	if len(keys) != 1 || keys[0] != "acc-1:EURUSD" {
		t.Fatalf("unexpected subscriptions payload: %s", text)
	}
}

func TestUnknownResourcePath(t *testing.T) {
	srv := newTestServer(t, testServices())
	session := connectInMemory(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "metaapi://accounts/acc-1/bogus"})
	if err == nil {
		t.Fatal("unknown sub-path should not resolve")
	}
}

func TestPromptsRegistered(t *testing.T) {
	srv := newTestServer(t, testServices())
	session := connectInMemory(t, srv)

	listed, err := session.ListPrompts(context.Background(), &sdkmcp.ListPromptsParams{})
	if err != nil {
		t.Fatal(err)
	}
	have := map[string]bool{}
	for _, p := range listed.Prompts {
		have[p.Name] = true
	}
	for _, name := range []string{"account_overview", "risk_check", "trading_summary"} {
		if !have[name] {
			t.Errorf("prompt %s not registered", name)
		}
	}

	result, err := session.GetPrompt(context.Background(), &sdkmcp.GetPromptParams{
		Name:      "account_overview",
		Arguments: map[string]string{"accountId": "acc-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected 1 prompt message, got %d", len(result.Messages))
	}
}
