package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

func okHandler(out any) Handler {
	return func(ctx context.Context, args Args) (any, error) { return out, nil }
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Operation{
		{Name: "get_server_time", Handler: okHandler(nil)},
		{Name: "get_server_time", Handler: okHandler(nil)},
	})
	if err == nil {
		t.Fatal("duplicate registration must fail")
	}
	if !strings.Contains(err.Error(), "get_server_time") {
		t.Fatalf("error should name the duplicate, got %v", err)
	}
}

func TestNewRejectsMissingHandler(t *testing.T) {
	if _, err := New([]Operation{{Name: "broken"}}); err == nil {
		t.Fatal("operation without handler must fail")
	}
}

func TestDispatchUnknownOperation(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	_, payload := d.Dispatch(context.Background(), "no_such_tool", nil)
	if payload == nil {
		t.Fatal("expected an error payload")
	}
	if payload.Code != string(domain.CodeUnknownOperation) {
		t.Fatalf("expected UNKNOWN_OPERATION, got %s", payload.Code)
	}
	if payload.Tool != "no_such_tool" {
		t.Fatalf("payload must echo the tool name, got %s", payload.Tool)
	}
}

func TestDispatchMapsHandlerErrors(t *testing.T) {
	d, err := New([]Operation{{
		Name: "place_market_order",
		Handler: func(ctx context.Context, args Args) (any, error) {
			return nil, errors.New("TradeError: not enough money")
		},
	}})
	if err != nil {
		t.Fatal(err)
	}

	_, payload := d.Dispatch(context.Background(), "place_market_order", Args{})
	if payload.Code != string(domain.CodeInsufficientFund) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %s", payload.Code)
	}
	if payload.Error != "Insufficient funds" {
		t.Fatalf("unexpected message %q", payload.Error)
	}
	if payload.Tool != "place_market_order" {
		t.Fatalf("unexpected tool %q", payload.Tool)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	d, err := New([]Operation{{
		Name: "boom",
		Handler: func(ctx context.Context, args Args) (any, error) {
			panic("nil map write")
		},
	}})
	if err != nil {
		t.Fatal(err)
	}

	result, payload := d.Dispatch(context.Background(), "boom", nil)
	if result != nil {
		t.Fatal("panicking handler must not return a result")
	}
	if payload == nil || payload.Code != string(domain.CodeUnknownError) {
		t.Fatalf("expected UNKNOWN_ERROR envelope, got %+v", payload)
	}
}

func TestDispatchSuccess(t *testing.T) {
	d, err := New([]Operation{{Name: "ping", Handler: okHandler("pong")}})
	if err != nil {
		t.Fatal(err)
	}
	result, payload := d.Dispatch(context.Background(), "ping", nil)
	if payload != nil {
		t.Fatalf("unexpected error payload %+v", payload)
	}
	if result != "pong" {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestOperationsSorted(t *testing.T) {
	d, err := New([]Operation{
		{Name: "zeta", Handler: okHandler(nil)},
		{Name: "alpha", Handler: okHandler(nil)},
	})
	if err != nil {
		t.Fatal(err)
	}
	ops := d.Operations()
	if len(ops) != 2 || ops[0].Name != "alpha" || ops[1].Name != "zeta" {
		t.Fatalf("operations must be sorted by name, got %v", ops)
	}
}

func TestArgsGetters(t *testing.T) {
	args := Args{
		"accountId": "acc-1",
		"volume":    0.5,
		"limit":     float64(200),
		"dryRun":    true,
		"startTime": "2026-08-01T00:00:00Z",
	}

	if got, err := args.RequireString("accountId"); err != nil || got != "acc-1" {
		t.Fatalf("RequireString: %v %q", err, got)
	}
	if _, err := args.RequireString("symbol"); err == nil {
		t.Fatal("missing required string must error")
	}
	if v, err := args.RequireFloat("volume"); err != nil || v != 0.5 {
		t.Fatalf("RequireFloat: %v %v", err, v)
	}
	if p := args.OptionalFloat("stopLoss"); p != nil {
		t.Fatal("absent optional float must be nil")
	}
	if got := args.Int("limit", 1000); got != 200 {
		t.Fatalf("Int: got %d", got)
	}
	if got := args.Int("offset", 7); got != 7 {
		t.Fatalf("Int fallback: got %d", got)
	}
	if !args.Bool("dryRun") {
		t.Fatal("Bool: expected true")
	}
	ts, err := args.Time("startTime")
	if err != nil || ts == nil || !ts.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Time: %v %v", err, ts)
	}
	if _, err := args.Time("bad"); err != nil {
		t.Fatal("absent time must not error")
	}
	args["bad"] = "yesterday"
	if _, err := args.Time("bad"); err == nil {
		t.Fatal("malformed time must error")
	}
}

func TestClientOrderIDShape(t *testing.T) {
	id := ClientOrderID(domain.SideBuy, "EURUSD")
	parts := strings.Split(id, "_")
	if len(parts) != 4 {
		t.Fatalf("expected side_symbol_millis_suffix, got %q", id)
	}
	if parts[0] != "buy" || parts[1] != "EURUSD" {
		t.Fatalf("unexpected prefix in %q", id)
	}
	if len(parts[3]) != 8 {
		t.Fatalf("suffix must be 8 chars, got %q", parts[3])
	}

	seen := map[string]struct{}{}
	for i := 0; i < 10000; i++ {
		id := ClientOrderID(domain.SideSell, "GBPUSD")
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
