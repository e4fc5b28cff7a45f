package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerResources(server *mcp.Server, services Services) {
	server.AddResource(&mcp.Resource{
		URI:         "metaapi://accounts",
		Name:        "accounts",
		Description: "All MetaApi trading accounts",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if services.Accounts == nil {
			return nil, fmt.Errorf("account service unavailable")
		}
		accounts, err := services.Accounts.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, accounts)
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "metaapi://accounts/{accountId}",
		Name:        "account-state",
		Description: "Deployment state and connection status for one account",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		accountID, rest, err := parseAccountURI(req.Params.URI)
		if err != nil || rest != "" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		state, err := services.Accounts.AccountState(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, state)
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "metaapi://accounts/{accountId}/positions",
		Name:        "account-positions",
		Description: "Open positions for one account",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		accountID, rest, err := parseAccountURI(req.Params.URI)
		if err != nil || rest != "positions" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		positions, err := services.Trades.Positions(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, positions)
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "metaapi://accounts/{accountId}/orders",
		Name:        "account-orders",
		Description: "Pending orders for one account",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		accountID, rest, err := parseAccountURI(req.Params.URI)
		if err != nil || rest != "orders" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		orders, err := services.Trades.Orders(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, orders)
	})

	server.AddResource(&mcp.Resource{
		URI:         "metaapi://subscriptions",
		Name:        "price-subscriptions",
		Description: "Active live price subscriptions as accountId:symbol pairs",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		_ = ctx
		if services.Subscriptions == nil {
			return nil, fmt.Errorf("subscription registry unavailable")
		}
		return jsonResource(req.Params.URI, services.Subscriptions.Active())
	})
}

// parseAccountURI splits metaapi://accounts/{id}[/rest] into id and rest.
func parseAccountURI(raw string) (accountID, rest string, err error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if parsed.Scheme != "metaapi" || parsed.Host != "accounts" {
		return "", "", fmt.Errorf("not an account uri: %s", raw)
	}
	path := strings.Trim(strings.TrimSpace(parsed.Path), "/")
	if path == "" {
		return "", "", fmt.Errorf("missing account id: %s", raw)
	}
	parts := strings.SplitN(path, "/", 2)
	accountID = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return accountID, rest, nil
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}, nil
}
