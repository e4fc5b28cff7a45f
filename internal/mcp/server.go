// Package mcp exposes the trading operations as an MCP tool surface over
// stdio or streamable HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/dispatch"
)

const defaultRequestTimeout = 30 * time.Second

const serverInstructions = "Use these tools to manage MetaTrader accounts through MetaApi: " +
	"inspect accounts, positions and orders, place and manage trades, and stream prices. " +
	"Pass the accountId from list_accounts to every account-scoped tool."

type ServerConfig struct {
	RequestTimeout time.Duration
}

// NewServer builds the MCP server with every tool, resource and prompt
// registered. A duplicate tool name is a wiring bug and fails construction.
func NewServer(tracer trace.Tracer, services Services, cfg ServerConfig) (*sdkmcp.Server, error) {
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	dispatcher, err := dispatch.New(buildOperations(services))
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	srv := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "metatrade-metaapi-mcp-server",
		Version: "1.0.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       slog.Default(),
	})

	srv.AddReceivingMiddleware(timeoutMiddleware(requestTimeout))
	if tracer != nil {
		srv.AddReceivingMiddleware(tracingMiddleware(tracer))
	}

	registerTools(srv, dispatcher)
	registerResources(srv, services)
	registerPrompts(srv)
	return srv, nil
}

func registerTools(srv *sdkmcp.Server, dispatcher *dispatch.Dispatcher) {
	for _, op := range dispatcher.Operations() {
		tool := &sdkmcp.Tool{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputSchema,
		}
		name := op.Name
		srv.AddTool(tool, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			args, err := decodeArgs(req.Params.Arguments)
			if err != nil {
				return errorResult(&dispatch.ErrorPayload{
					Error: fmt.Sprintf("invalid arguments: %v", err),
					Code:  "UNKNOWN_ERROR",
					Tool:  name,
				}), nil
			}

			result, errPayload := dispatcher.Dispatch(ctx, name, args)
			if errPayload != nil {
				return errorResult(errPayload), nil
			}

			body, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return errorResult(&dispatch.ErrorPayload{
					Error: fmt.Sprintf("encode result: %v", err),
					Code:  "UNKNOWN_ERROR",
					Tool:  name,
				}), nil
			}
			return &sdkmcp.CallToolResult{
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(body)}},
			}, nil
		})
	}
}

// decodeArgs tolerates the argument shapes different clients send.
func decodeArgs(raw any) (dispatch.Args, error) {
	switch v := raw.(type) {
	case nil:
		return dispatch.Args{}, nil
	case dispatch.Args:
		return v, nil
	case map[string]any:
		return dispatch.Args(v), nil
	case json.RawMessage:
		return unmarshalArgs(v)
	case []byte:
		return unmarshalArgs(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return unmarshalArgs(encoded)
	}
}

func unmarshalArgs(raw []byte) (dispatch.Args, error) {
	if len(raw) == 0 {
		return dispatch.Args{}, nil
	}
	var args dispatch.Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = dispatch.Args{}
	}
	return args, nil
}

func errorResult(payload *dispatch.ErrorPayload) *sdkmcp.CallToolResult {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error":%q,"code":"UNKNOWN_ERROR","tool":%q}`, payload.Error, payload.Tool))
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(body)}},
		IsError: true,
	}
}

func NewHTTPTransportHandler(server *sdkmcp.Server, cfg HTTPHandlerConfig) http.Handler {
	base := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return server
	}, &sdkmcp.StreamableHTTPOptions{})
	return wrapHTTPHandler(base, cfg)
}

func timeoutMiddleware(timeout time.Duration) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if timeout <= 0 {
				return next(ctx, method, req)
			}
			timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(timeoutCtx, method, req)
		}
	}
}

func tracingMiddleware(tracer trace.Tracer) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			spanName := mcpSpanName(method, req)
			ctx, span := tracer.Start(ctx, spanName)
			span.SetAttributes(attribute.String("mcp.method", method))
			defer span.End()

			if callReq, ok := req.(*sdkmcp.CallToolRequest); ok {
				span.SetAttributes(attribute.String("mcp.tool", strings.TrimSpace(callReq.Params.Name)))
			}
			if readReq, ok := req.(*sdkmcp.ReadResourceRequest); ok {
				span.SetAttributes(attribute.String("mcp.resource.uri", strings.TrimSpace(readReq.Params.URI)))
			}

			result, err := next(ctx, method, req)
			if err != nil {
				span.RecordError(err)
			}
			return result, err
		}
	}
}

func mcpSpanName(method string, req sdkmcp.Request) string {
	switch method {
	case "tools/call":
		if callReq, ok := req.(*sdkmcp.CallToolRequest); ok {
			name := strings.TrimSpace(callReq.Params.Name)
			if name != "" {
				return "mcp.tool." + strings.ReplaceAll(name, "/", ".")
			}
		}
		return "mcp.tool.call"
	case "resources/read":
		return "mcp.resource.read"
	default:
		return "mcp." + strings.ReplaceAll(method, "/", ".")
	}
}
