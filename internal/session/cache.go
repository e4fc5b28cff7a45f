// Package session manages the per-account connection lifecycle: building
// ready-to-use platform sessions, caching them, and tracking live price
// subscriptions.
package session

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/metaapi"
)

// Session is a fully prepared account handle: deployed, connected and
// synchronized, ready for queries and trades.
type Session struct {
	AccountID string
	Account   metaapi.Account
	Conn      metaapi.RPCConnection
}

// Builder prepares a session for an account. Implemented by Manager.
type Builder interface {
	Build(ctx context.Context, accountID string) (*Session, error)
}

// Cache hands out sessions keyed by account id. Concurrent requests for the
// same account share one build; distinct accounts build independently.
type Cache struct {
	builder Builder

	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
}

func NewCache(builder Builder) *Cache {
	return &Cache{
		builder:  builder,
		sessions: map[string]*Session{},
	}
}

// Get returns the cached session for the account, building one if needed.
func (c *Cache) Get(ctx context.Context, accountID string) (*Session, error) {
	c.mu.RLock()
	if s, ok := c.sessions[accountID]; ok {
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(accountID, func() (any, error) {
		c.mu.RLock()
		if s, ok := c.sessions[accountID]; ok {
			c.mu.RUnlock()
			return s, nil
		}
		c.mu.RUnlock()

		s, err := c.builder.Build(ctx, accountID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sessions[accountID] = s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Evict drops the cached session and closes its connection. Safe to call for
// accounts that were never cached.
func (c *Cache) Evict(accountID string) {
	c.mu.Lock()
	s, ok := c.sessions[accountID]
	delete(c.sessions, accountID)
	c.mu.Unlock()

	if !ok {
		return
	}
	if err := s.Conn.Close(context.Background()); err != nil {
		slog.Warn("close evicted session", "accountId", accountID, "error", err)
	}
}

// Len reports how many sessions are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
