package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/dispatch"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/service"
)

// Services bundles everything the tool surface needs. Journal may be nil.
type Services struct {
	Accounts      AccountOperations
	Trades        TradeOperations
	Market        MarketDataOperations
	Subscriptions PriceSubscriber
	Journal       JournalReader
}

func objSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func strProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func numProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: desc}
}

func intProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

func sideProp() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: "Order side", Enum: []any{"buy", "sell"}}
}

func accountIDProp() *jsonschema.Schema {
	return strProp("MetaApi account id")
}

// decodeInto re-marshals a loosely typed argument into a concrete struct.
func decodeInto(v any, out any) error {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func historyRange(args dispatch.Args) (time.Time, time.Time, error) {
	start, err := args.Time("startTime")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := args.Time("endTime")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	now := time.Now()
	if end == nil {
		end = &now
	}
	if start == nil {
		s := end.Add(-dispatch.DefaultHistoryLookback)
		start = &s
	}
	return *start, *end, nil
}

func buildOperations(s Services) []dispatch.Operation {
	ops := []dispatch.Operation{
		{
			Name:        "list_accounts",
			Description: "List all MetaApi trading accounts",
			InputSchema: objSchema(nil, map[string]*jsonschema.Schema{}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				return s.Accounts.ListAccounts(ctx)
			},
		},
		{
			Name:        "get_account_state",
			Description: "Get deployment state and connection status for an account",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				return s.Accounts.AccountState(ctx, accountID)
			},
		},
		{
			Name:        "get_account_information",
			Description: "Get balance, equity, margin and leverage for an account",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				return s.Accounts.AccountInformation(ctx, accountID)
			},
		},
		{
			Name:        "get_terminal_state",
			Description: "Get the full terminal snapshot: account information, open positions and pending orders",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				return s.Accounts.TerminalState(ctx, accountID)
			},
		},
		{
			Name:        "deploy_account",
			Description: "Deploy an account so it can trade",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				if err := s.Accounts.Deploy(ctx, accountID); err != nil {
					return nil, err
				}
				return map[string]string{"message": fmt.Sprintf("deploy requested for account %s", accountID)}, nil
			},
		},
		{
			Name:        "undeploy_account",
			Description: "Undeploy an account; drops its cached session and price subscriptions",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				if err := s.Accounts.Undeploy(ctx, accountID); err != nil {
					return nil, err
				}
				return map[string]string{"message": fmt.Sprintf("account %s undeployed", accountID)}, nil
			},
		},
		{
			Name:        "redeploy_account",
			Description: "Undeploy and deploy an account again to recover a stuck terminal",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				if err := s.Accounts.Redeploy(ctx, accountID); err != nil {
					return nil, err
				}
				return map[string]string{"message": fmt.Sprintf("account %s redeployed", accountID)}, nil
			},
		},
	}

	ops = append(ops, tradeOperations(s)...)
	ops = append(ops, queryOperations(s)...)
	ops = append(ops, marketDataOperations(s)...)
	ops = append(ops, subscriptionOperations(s)...)

	if s.Journal != nil {
		ops = append(ops, dispatch.Operation{
			Name:        "get_trade_journal",
			Description: "Query the local trade journal with optional account, tool and status filters",
			InputSchema: objSchema(nil, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"tool":      strProp("Tool name to filter by"),
				"status":    strProp("Entry status: ok or error"),
				"limit":     intProp("Max entries to return (default 50)"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				return s.Journal.List(ctx, domain.JournalFilter{
					AccountID: args.String("accountId"),
					Tool:      args.String("tool"),
					Status:    args.String("status"),
					Limit:     args.Int("limit", 50),
				})
			},
		})
	}

	return ops
}

func marketOrderArgs(args dispatch.Args) (service.MarketOrderRequest, error) {
	var req service.MarketOrderRequest
	accountID, err := args.RequireString("accountId")
	if err != nil {
		return req, err
	}
	symbol, err := args.RequireString("symbol")
	if err != nil {
		return req, err
	}
	volume, err := args.RequireFloat("volume")
	if err != nil {
		return req, err
	}
	req = service.MarketOrderRequest{
		AccountID:     accountID,
		Side:          domain.OrderSide(args.String("side")),
		Symbol:        symbol,
		Volume:        volume,
		StopLoss:      args.OptionalFloat("stopLoss"),
		TakeProfit:    args.OptionalFloat("takeProfit"),
		Comment:       args.String("comment"),
		ClientOrderID: args.String("clientOrderId"),
	}
	if raw, ok := args["trailingStopLoss"]; ok {
		var trailing domain.TrailingStopLoss
		if err := decodeInto(raw, &trailing); err != nil {
			return req, fmt.Errorf("trailingStopLoss is malformed: %w", err)
		}
		req.TrailingStopLoss = &trailing
	}
	return req, nil
}

func pendingOrderArgs(args dispatch.Args, kind service.PendingOrderKind, side domain.OrderSide) (service.PendingOrderRequest, error) {
	var req service.PendingOrderRequest
	accountID, err := args.RequireString("accountId")
	if err != nil {
		return req, err
	}
	symbol, err := args.RequireString("symbol")
	if err != nil {
		return req, err
	}
	volume, err := args.RequireFloat("volume")
	if err != nil {
		return req, err
	}
	openPrice, err := args.RequireFloat("openPrice")
	if err != nil {
		return req, err
	}
	if side == "" {
		side = domain.OrderSide(args.String("side"))
	}
	return service.PendingOrderRequest{
		AccountID:     accountID,
		Kind:          kind,
		Side:          side,
		Symbol:        symbol,
		Volume:        volume,
		OpenPrice:     openPrice,
		StopLoss:      args.OptionalFloat("stopLoss"),
		TakeProfit:    args.OptionalFloat("takeProfit"),
		Comment:       args.String("comment"),
		ClientOrderID: args.String("clientOrderId"),
	}, nil
}

func tradeOperations(s Services) []dispatch.Operation {
	orderProps := func(extra map[string]*jsonschema.Schema) map[string]*jsonschema.Schema {
		props := map[string]*jsonschema.Schema{
			"accountId":     accountIDProp(),
			"symbol":        strProp("Trading symbol, e.g. EURUSD"),
			"volume":        numProp("Volume in lots"),
			"stopLoss":      numProp("Optional stop loss price"),
			"takeProfit":    numProp("Optional take profit price"),
			"comment":       strProp("Optional order comment"),
			"clientOrderId": strProp("Optional client order id; generated when omitted"),
		}
		for k, v := range extra {
			props[k] = v
		}
		return props
	}

	return []dispatch.Operation{
		{
			Name:        "place_market_order",
			Description: "Place a market order (buy or sell) with optional stop loss and take profit",
			InputSchema: objSchema([]string{"accountId", "side", "symbol", "volume"}, orderProps(map[string]*jsonschema.Schema{
				"side": sideProp(),
			})),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				req, err := marketOrderArgs(args)
				if err != nil {
					return nil, err
				}
				return s.Trades.PlaceMarketOrder(ctx, req)
			},
		},
		{
			Name:        "create_market_order_with_trailing_sl",
			Description: "Place a market order with a trailing stop loss in price or points",
			InputSchema: objSchema([]string{"accountId", "side", "symbol", "volume", "trailingStopLoss"}, orderProps(map[string]*jsonschema.Schema{
				"side": sideProp(),
				"trailingStopLoss": {
					Type:        "object",
					Description: "Trailing stop loss: distance {distance, units} and/or threshold settings",
				},
			})),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				req, err := marketOrderArgs(args)
				if err != nil {
					return nil, err
				}
				if req.TrailingStopLoss == nil {
					return nil, fmt.Errorf("trailingStopLoss is required")
				}
				return s.Trades.PlaceMarketOrder(ctx, req)
			},
		},
		{
			Name:        "place_limit_order",
			Description: "Place a pending limit order at the given open price",
			InputSchema: objSchema([]string{"accountId", "side", "symbol", "volume", "openPrice"}, orderProps(map[string]*jsonschema.Schema{
				"side":      sideProp(),
				"openPrice": numProp("Limit price"),
			})),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				req, err := pendingOrderArgs(args, service.PendingLimit, "")
				if err != nil {
					return nil, err
				}
				return s.Trades.PlacePendingOrder(ctx, req)
			},
		},
		{
			Name:        "create_stop_buy_order",
			Description: "Place a pending stop buy order at the given open price",
			InputSchema: objSchema([]string{"accountId", "symbol", "volume", "openPrice"}, orderProps(map[string]*jsonschema.Schema{
				"openPrice": numProp("Stop price"),
			})),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				req, err := pendingOrderArgs(args, service.PendingStop, domain.SideBuy)
				if err != nil {
					return nil, err
				}
				return s.Trades.PlacePendingOrder(ctx, req)
			},
		},
		{
			Name:        "create_stop_sell_order",
			Description: "Place a pending stop sell order at the given open price",
			InputSchema: objSchema([]string{"accountId", "symbol", "volume", "openPrice"}, orderProps(map[string]*jsonschema.Schema{
				"openPrice": numProp("Stop price"),
			})),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				req, err := pendingOrderArgs(args, service.PendingStop, domain.SideSell)
				if err != nil {
					return nil, err
				}
				return s.Trades.PlacePendingOrder(ctx, req)
			},
		},
		{
			Name:        "modify_position",
			Description: "Change stop loss and/or take profit on an open position",
			InputSchema: objSchema([]string{"accountId", "positionId"}, map[string]*jsonschema.Schema{
				"accountId":  accountIDProp(),
				"positionId": strProp("Position id"),
				"stopLoss":   numProp("New stop loss price"),
				"takeProfit": numProp("New take profit price"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				positionID, err := args.RequireString("positionId")
				if err != nil {
					return nil, err
				}
				return s.Trades.ModifyPosition(ctx, accountID, positionID, args.OptionalFloat("stopLoss"), args.OptionalFloat("takeProfit"))
			},
		},
		{
			Name:        "close_position",
			Description: "Close an open position by id",
			InputSchema: objSchema([]string{"accountId", "positionId"}, map[string]*jsonschema.Schema{
				"accountId":  accountIDProp(),
				"positionId": strProp("Position id"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				positionID, err := args.RequireString("positionId")
				if err != nil {
					return nil, err
				}
				return s.Trades.ClosePosition(ctx, accountID, positionID)
			},
		},
		{
			Name:        "modify_order",
			Description: "Change open price, stop loss or take profit on a pending order",
			InputSchema: objSchema([]string{"accountId", "orderId", "openPrice"}, map[string]*jsonschema.Schema{
				"accountId":  accountIDProp(),
				"orderId":    strProp("Order id"),
				"openPrice":  numProp("New open price"),
				"stopLoss":   numProp("New stop loss price"),
				"takeProfit": numProp("New take profit price"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				orderID, err := args.RequireString("orderId")
				if err != nil {
					return nil, err
				}
				openPrice, err := args.RequireFloat("openPrice")
				if err != nil {
					return nil, err
				}
				return s.Trades.ModifyOrder(ctx, accountID, orderID, openPrice, args.OptionalFloat("stopLoss"), args.OptionalFloat("takeProfit"))
			},
		},
		{
			Name:        "cancel_order",
			Description: "Cancel a pending order by id",
			InputSchema: objSchema([]string{"accountId", "orderId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"orderId":   strProp("Order id"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				orderID, err := args.RequireString("orderId")
				if err != nil {
					return nil, err
				}
				return s.Trades.CancelOrder(ctx, accountID, orderID)
			},
		},
	}
}

func queryOperations(s Services) []dispatch.Operation {
	return []dispatch.Operation{
		{
			Name:        "get_positions",
			Description: "List open positions for an account",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				return s.Trades.Positions(ctx, accountID)
			},
		},
		{
			Name:        "get_position",
			Description: "Get one open position by id",
			InputSchema: objSchema([]string{"accountId", "positionId"}, map[string]*jsonschema.Schema{
				"accountId":  accountIDProp(),
				"positionId": strProp("Position id"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				positionID, err := args.RequireString("positionId")
				if err != nil {
					return nil, err
				}
				return s.Trades.Position(ctx, accountID, positionID)
			},
		},
		{
			Name:        "get_orders",
			Description: "List pending orders for an account",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				return s.Trades.Orders(ctx, accountID)
			},
		},
		{
			Name:        "get_order",
			Description: "Get one pending order by id",
			InputSchema: objSchema([]string{"accountId", "orderId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"orderId":   strProp("Order id"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				orderID, err := args.RequireString("orderId")
				if err != nil {
					return nil, err
				}
				return s.Trades.Order(ctx, accountID, orderID)
			},
		},
		{
			Name:        "get_history_orders",
			Description: "List historical orders; defaults to the last 90 days when no range is given",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"startTime": strProp("RFC 3339 range start (default: 90 days ago)"),
				"endTime":   strProp("RFC 3339 range end (default: now)"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				start, end, err := historyRange(args)
				if err != nil {
					return nil, err
				}
				return s.Trades.HistoryOrders(ctx, accountID, start, end)
			},
		},
		{
			Name:        "get_history_orders_by_ticket",
			Description: "List historical orders for one ticket",
			InputSchema: objSchema([]string{"accountId", "ticket"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"ticket":    strProp("Order ticket"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				ticket, err := args.RequireString("ticket")
				if err != nil {
					return nil, err
				}
				return s.Trades.HistoryOrdersByTicket(ctx, accountID, ticket)
			},
		},
		{
			Name:        "get_deals",
			Description: "List deals; defaults to the last 90 days when no range is given",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"startTime": strProp("RFC 3339 range start (default: 90 days ago)"),
				"endTime":   strProp("RFC 3339 range end (default: now)"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				start, end, err := historyRange(args)
				if err != nil {
					return nil, err
				}
				return s.Trades.Deals(ctx, accountID, start, end)
			},
		},
		{
			Name:        "get_deals_by_ticket",
			Description: "List deals for one ticket",
			InputSchema: objSchema([]string{"accountId", "ticket"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"ticket":    strProp("Deal ticket"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				ticket, err := args.RequireString("ticket")
				if err != nil {
					return nil, err
				}
				return s.Trades.DealsByTicket(ctx, accountID, ticket)
			},
		},
	}
}

func marketDataOperations(s Services) []dispatch.Operation {
	return []dispatch.Operation{
		{
			Name:        "get_symbol_price",
			Description: "Get the current bid/ask price for a symbol",
			InputSchema: objSchema([]string{"accountId", "symbol"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"symbol":    strProp("Trading symbol, e.g. EURUSD"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				symbol, err := args.RequireString("symbol")
				if err != nil {
					return nil, err
				}
				return s.Market.SymbolPrice(ctx, accountID, symbol)
			},
		},
		{
			Name:        "get_symbols",
			Description: "List all symbols available on the account",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				return s.Market.Symbols(ctx, accountID)
			},
		},
		{
			Name:        "get_symbol_specification",
			Description: "Get contract specification for a symbol",
			InputSchema: objSchema([]string{"accountId", "symbol"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"symbol":    strProp("Trading symbol, e.g. EURUSD"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				symbol, err := args.RequireString("symbol")
				if err != nil {
					return nil, err
				}
				return s.Market.SymbolSpecification(ctx, accountID, symbol)
			},
		},
		{
			Name:        "get_server_time",
			Description: "Get the broker server time",
			InputSchema: objSchema([]string{"accountId"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				return s.Market.ServerTime(ctx, accountID)
			},
		},
		{
			Name:        "calculate_margin",
			Description: "Calculate the margin required for a hypothetical order",
			InputSchema: objSchema([]string{"accountId", "symbol", "type", "volume", "openPrice"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"symbol":    strProp("Trading symbol, e.g. EURUSD"),
				"type":      strProp("Order type, e.g. ORDER_TYPE_BUY"),
				"volume":    numProp("Volume in lots"),
				"openPrice": numProp("Hypothetical open price"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				symbol, err := args.RequireString("symbol")
				if err != nil {
					return nil, err
				}
				orderType, err := args.RequireString("type")
				if err != nil {
					return nil, err
				}
				volume, err := args.RequireFloat("volume")
				if err != nil {
					return nil, err
				}
				openPrice, err := args.RequireFloat("openPrice")
				if err != nil {
					return nil, err
				}
				return s.Market.CalculateMargin(ctx, accountID, symbol, orderType, volume, openPrice)
			},
		},
		{
			Name:        "get_candles",
			Description: "Get historical OHLCV candles for a symbol and timeframe",
			InputSchema: objSchema([]string{"accountId", "symbol", "timeframe"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"symbol":    strProp("Trading symbol, e.g. EURUSD"),
				"timeframe": strProp("Candle timeframe: 1m, 5m, 15m, 30m, 1h, 4h, 1d, 1w or 1mn"),
				"startTime": strProp("RFC 3339 time of the newest candle to return"),
				"limit":     intProp("Max candles to return (default 1000)"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				symbol, err := args.RequireString("symbol")
				if err != nil {
					return nil, err
				}
				timeframe, err := args.RequireString("timeframe")
				if err != nil {
					return nil, err
				}
				start, err := args.Time("startTime")
				if err != nil {
					return nil, err
				}
				return s.Market.Candles(ctx, accountID, symbol, timeframe, start, args.Int("limit", 0))
			},
		},
		{
			Name:        "get_ticks",
			Description: "Get historical ticks for a symbol; defaults to the last hour",
			InputSchema: objSchema([]string{"accountId", "symbol"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"symbol":    strProp("Trading symbol, e.g. EURUSD"),
				"startTime": strProp("RFC 3339 range start (default: one hour ago)"),
				"offset":    intProp("Tick offset within the start second"),
				"limit":     intProp("Max ticks to return (default 1000)"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				symbol, err := args.RequireString("symbol")
				if err != nil {
					return nil, err
				}
				start, err := args.Time("startTime")
				if err != nil {
					return nil, err
				}
				return s.Market.Ticks(ctx, accountID, symbol, start, args.Int("offset", 0), args.Int("limit", 0))
			},
		},
	}
}

func subscriptionOperations(s Services) []dispatch.Operation {
	return []dispatch.Operation{
		{
			Name:        "subscribe_price",
			Description: "Subscribe to live price updates for a symbol; repeat calls are no-ops",
			InputSchema: objSchema([]string{"accountId", "symbol"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"symbol":    strProp("Trading symbol, e.g. EURUSD"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				symbol, err := args.RequireString("symbol")
				if err != nil {
					return nil, err
				}
				created, err := s.Subscriptions.Subscribe(ctx, accountID, symbol)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"accountId": accountID,
					"symbol":    symbol,
					"active":    true,
					"created":   created,
				}, nil
			},
		},
		{
			Name:        "unsubscribe_price",
			Description: "Stop live price updates for a symbol",
			InputSchema: objSchema([]string{"accountId", "symbol"}, map[string]*jsonschema.Schema{
				"accountId": accountIDProp(),
				"symbol":    strProp("Trading symbol, e.g. EURUSD"),
			}),
			Handler: func(ctx context.Context, args dispatch.Args) (any, error) {
				accountID, err := args.RequireString("accountId")
				if err != nil {
					return nil, err
				}
				symbol, err := args.RequireString("symbol")
				if err != nil {
					return nil, err
				}
				removed, err := s.Subscriptions.Unsubscribe(ctx, accountID, symbol)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"accountId": accountID,
					"symbol":    symbol,
					"active":    false,
					"removed":   removed,
				}, nil
			},
		},
	}
}
