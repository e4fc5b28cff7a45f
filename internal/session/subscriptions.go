package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/metaapi"
)

// TickEvent pairs a live tick with the account it was observed on.
type TickEvent struct {
	AccountID string
	Tick      domain.Tick
}

// TickSink receives ticks from all subscribed streams.
type TickSink interface {
	Publish(event TickEvent)
}

// ChannelSink buffers ticks on a channel. Publish never blocks; when the
// consumer falls behind the oldest pending tick is the one that gets dropped
// from the sender's perspective (the new one is discarded).
type ChannelSink struct {
	events chan TickEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelSink{events: make(chan TickEvent, buffer)}
}

func (s *ChannelSink) Publish(event TickEvent) {
	select {
	case s.events <- event:
	default:
		slog.Debug("tick sink full, dropping tick", "accountId", event.AccountID, "symbol", event.Tick.Symbol)
	}
}

func (s *ChannelSink) Events() <-chan TickEvent { return s.events }

type accountStream struct {
	conn    metaapi.StreamingConnection
	remove  func()
	symbols map[string]struct{}
}

// Registry tracks live price subscriptions keyed by account and symbol.
// Subscribing twice to the same pair is a no-op; one streaming connection is
// shared by all symbols of an account.
type Registry struct {
	client metaapi.Client
	sink   TickSink

	mu      sync.Mutex
	streams map[string]*accountStream
}

func NewRegistry(client metaapi.Client, sink TickSink) *Registry {
	return &Registry{
		client:  client,
		sink:    sink,
		streams: map[string]*accountStream{},
	}
}

// Subscribe starts streaming the symbol for the account. It reports whether a
// new subscription was created; repeat calls return false with no error.
func (r *Registry) Subscribe(ctx context.Context, accountID, symbol string) (created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[accountID]
	if ok {
		if _, exists := stream.symbols[symbol]; exists {
			return false, nil
		}
	} else {
		account, err := r.client.GetAccount(ctx, accountID)
		if err != nil {
			return false, err
		}
		conn := account.StreamingConnection()
		if err := conn.Connect(ctx); err != nil {
			return false, fmt.Errorf("connect stream for %s: %w", accountID, err)
		}
		remove := conn.OnTick(func(tick domain.Tick) {
			if r.sink != nil {
				r.sink.Publish(TickEvent{AccountID: accountID, Tick: tick})
			}
		})
		stream = &accountStream{conn: conn, remove: remove, symbols: map[string]struct{}{}}
		r.streams[accountID] = stream
	}

	if err := stream.conn.SubscribeToMarketData(ctx, symbol); err != nil {
		if len(stream.symbols) == 0 {
			r.dropStreamLocked(accountID, stream)
		}
		return false, err
	}
	stream.symbols[symbol] = struct{}{}
	slog.Info("price subscription added", "accountId", accountID, "symbol", symbol)
	return true, nil
}

// Unsubscribe stops streaming the symbol. It reports whether a subscription
// was actually removed. The account's streaming connection is closed when its
// last symbol goes away.
func (r *Registry) Unsubscribe(ctx context.Context, accountID, symbol string) (removed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[accountID]
	if !ok {
		return false, nil
	}
	if _, exists := stream.symbols[symbol]; !exists {
		return false, nil
	}

	if err := stream.conn.UnsubscribeFromMarketData(ctx, symbol); err != nil {
		return false, err
	}
	delete(stream.symbols, symbol)
	slog.Info("price subscription removed", "accountId", accountID, "symbol", symbol)

	if len(stream.symbols) == 0 {
		r.dropStreamLocked(accountID, stream)
	}
	return true, nil
}

// DropAccount tears down every subscription for the account. Used when the
// account is undeployed.
func (r *Registry) DropAccount(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[accountID]
	if !ok {
		return
	}
	r.dropStreamLocked(accountID, stream)
}

func (r *Registry) dropStreamLocked(accountID string, stream *accountStream) {
	stream.remove()
	if err := stream.conn.Close(); err != nil {
		slog.Warn("close stream", "accountId", accountID, "error", err)
	}
	delete(r.streams, accountID)
}

// Active lists current subscriptions as "accountId:symbol" keys, sorted.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []string
	for accountID, stream := range r.streams {
		for symbol := range stream.symbols {
			keys = append(keys, accountID+":"+symbol)
		}
	}
	sort.Strings(keys)
	return keys
}
