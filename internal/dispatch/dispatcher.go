// Package dispatch routes tool calls to their handlers and normalizes every
// failure into the error envelope callers key off.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

// Query defaults applied when a tool call omits time bounds.
const (
	DefaultHistoryLookback = 90 * 24 * time.Hour
	DefaultTickLookback    = time.Hour
	DefaultQueryLimit      = 1000
)

// Args is the decoded argument object of a tool call.
type Args map[string]any

func (a Args) String(key string) string {
	v, _ := a[key].(string)
	return v
}

// RequireString returns the named string argument or an error naming the
// missing key.
func (a Args) RequireString(key string) (string, error) {
	v, ok := a[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// Float reads a numeric argument. JSON numbers decode as float64; integers
// sent by stricter clients are accepted too.
func (a Args) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (a Args) RequireFloat(key string) (float64, error) {
	v, ok := a.Float(key)
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// OptionalFloat returns a pointer for fields that distinguish unset from zero.
func (a Args) OptionalFloat(key string) *float64 {
	if v, ok := a.Float(key); ok {
		return &v
	}
	return nil
}

func (a Args) Int(key string, fallback int) int {
	if v, ok := a.Float(key); ok {
		return int(v)
	}
	return fallback
}

func (a Args) Bool(key string) bool {
	v, _ := a[key].(bool)
	return v
}

// Time parses an optional RFC 3339 timestamp argument.
func (a Args) Time(key string) (*time.Time, error) {
	raw, ok := a[key].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp: %w", key, err)
	}
	return &ts, nil
}

// Handler executes one tool call against the decoded arguments.
type Handler func(ctx context.Context, args Args) (any, error)

// Operation is one registered tool.
type Operation struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// ErrorPayload is the envelope returned for every failed call.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Tool  string `json:"tool"`
}

// Dispatcher holds the tool registry. Registration is all-or-nothing: a
// duplicate name fails construction rather than silently shadowing.
type Dispatcher struct {
	ops map[string]Operation
}

func New(ops []Operation) (*Dispatcher, error) {
	registry := make(map[string]Operation, len(ops))
	for _, op := range ops {
		if op.Name == "" {
			return nil, fmt.Errorf("operation with empty name")
		}
		if op.Handler == nil {
			return nil, fmt.Errorf("operation %s has no handler", op.Name)
		}
		if _, exists := registry[op.Name]; exists {
			return nil, fmt.Errorf("duplicate operation %s", op.Name)
		}
		registry[op.Name] = op
	}
	return &Dispatcher{ops: registry}, nil
}

// Operations returns the registered tools sorted by name.
func (d *Dispatcher) Operations() []Operation {
	ops := make([]Operation, 0, len(d.ops))
	for _, op := range d.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Dispatch runs the named tool. Every failure, including panics and unknown
// names, comes back as an ErrorPayload; the caller never sees a raw error.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args Args) (result any, errPayload *ErrorPayload) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool handler panicked", "tool", name, "panic", r)
			result = nil
			errPayload = &ErrorPayload{
				Error: fmt.Sprintf("internal error: %v", r),
				Code:  string(domain.CodeUnknownError),
				Tool:  name,
			}
		}
	}()

	op, ok := d.ops[name]
	if !ok {
		return nil, &ErrorPayload{
			Error: fmt.Sprintf("unknown operation: %s", name),
			Code:  string(domain.CodeUnknownOperation),
			Tool:  name,
		}
	}

	out, err := op.Handler(ctx, args)
	if err != nil {
		mapped := domain.MapError(err)
		slog.Warn("tool call failed", "tool", name, "code", mapped.Code, "error", err)
		return nil, &ErrorPayload{
			Error: mapped.Message,
			Code:  string(mapped.Code),
			Tool:  name,
		}
	}
	return out, nil
}

// ClientOrderID builds a traceable id for order-creating calls that did not
// supply one: side_symbol_millis_uuidPrefix.
func ClientOrderID(side domain.OrderSide, symbol string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s", side, symbol, time.Now().UnixMilli(), suffix)
}
