package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerPrompts(server *mcp.Server) {
	server.AddPrompt(&mcp.Prompt{
		Name:        "account_overview",
		Description: "Summarize an account: balance, equity, open positions and pending orders",
		Arguments: []*mcp.PromptArgument{
			{Name: "accountId", Description: "MetaApi account id", Required: true},
		},
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		accountID := req.Params.Arguments["accountId"]
		if accountID == "" {
			return nil, fmt.Errorf("accountId is required")
		}
		text := fmt.Sprintf(
			"Give me an overview of trading account %s. "+
				"Use get_account_information for balance, equity and margin, "+
				"get_positions for open positions and get_orders for pending orders. "+
				"Summarize overall exposure and unrealized profit.",
			accountID)
		return promptResult("Account overview request", text), nil
	})

	server.AddPrompt(&mcp.Prompt{
		Name:        "risk_check",
		Description: "Assess the risk of a planned trade before placing it",
		Arguments: []*mcp.PromptArgument{
			{Name: "accountId", Description: "MetaApi account id", Required: true},
			{Name: "symbol", Description: "Symbol of the planned trade"},
			{Name: "volume", Description: "Planned volume in lots"},
		},
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		accountID := req.Params.Arguments["accountId"]
		if accountID == "" {
			return nil, fmt.Errorf("accountId is required")
		}
		symbol := req.Params.Arguments["symbol"]
		volume := req.Params.Arguments["volume"]
		text := fmt.Sprintf(
			"Check the risk of a planned trade on account %s.", accountID)
		if symbol != "" {
			text += fmt.Sprintf(" The trade is on %s", symbol)
			if volume != "" {
				text += fmt.Sprintf(" with volume %s lots", volume)
			}
			text += "."
		}
		text += " Use get_account_information for free margin and margin level, " +
			"calculate_margin for the required margin, and get_positions for existing exposure. " +
			"Say whether the trade fits the account and what stop loss would cap the loss at 2% of equity."
		return promptResult("Trade risk check request", text), nil
	})

	server.AddPrompt(&mcp.Prompt{
		Name:        "trading_summary",
		Description: "Summarize recent trading activity from history and deals",
		Arguments: []*mcp.PromptArgument{
			{Name: "accountId", Description: "MetaApi account id", Required: true},
			{Name: "days", Description: "Lookback window in days (default 7)"},
		},
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		accountID := req.Params.Arguments["accountId"]
		if accountID == "" {
			return nil, fmt.Errorf("accountId is required")
		}
		days := req.Params.Arguments["days"]
		if days == "" {
			days = "7"
		}
		text := fmt.Sprintf(
			"Summarize the trading activity of account %s over the last %s days. "+
				"Use get_deals and get_history_orders for the period, then report trade count, "+
				"win rate, realized profit, and the most traded symbols.",
			accountID, days)
		return promptResult("Trading summary request", text), nil
	})
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: text},
		}},
	}
}
