package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/metaapi"
)

const DefaultStageTimeout = 2 * time.Minute

// Manager builds sessions by walking an account through deploy, connect and
// synchronize. Each stage gets its own timeout so a stuck broker link fails
// with a clear stage name instead of one opaque deadline.
type Manager struct {
	client       metaapi.Client
	stageTimeout time.Duration
	tracer       trace.Tracer
}

func NewManager(client metaapi.Client, stageTimeout time.Duration, tracer trace.Tracer) *Manager {
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	return &Manager{client: client, stageTimeout: stageTimeout, tracer: tracer}
}

func (m *Manager) Build(ctx context.Context, accountID string) (*Session, error) {
	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.Start(ctx, "session.build")
		span.SetAttributes(attribute.String("account.id", accountID))
		defer span.End()
	}

	account, err := m.client.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !account.State().IsDeployed() {
		slog.Info("deploying account", "accountId", accountID, "state", account.State())
		if err := account.Deploy(ctx); err != nil {
			return nil, fmt.Errorf("deploy account %s: %w", accountID, err)
		}
	}

	if err := m.stage(ctx, "connect to broker", accountID, account.WaitConnected); err != nil {
		return nil, err
	}

	conn := account.RPCConnection()
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("open rpc connection for %s: %w", accountID, err)
	}
	if err := m.stage(ctx, "synchronize terminal state", accountID, conn.WaitSynchronized); err != nil {
		return nil, err
	}

	slog.Info("session ready", "accountId", accountID)
	return &Session{AccountID: accountID, Account: account, Conn: conn}, nil
}

func (m *Manager) stage(ctx context.Context, name, accountID string, wait func(context.Context) error) error {
	stageCtx, cancel := context.WithTimeout(ctx, m.stageTimeout)
	defer cancel()

	err := wait(stageCtx)
	if err == nil {
		return nil
	}
	if stageCtx.Err() != nil && ctx.Err() == nil {
		return domain.LifecycleTimeout(name, accountID, err)
	}
	return fmt.Errorf("%s for account %s: %w", name, accountID, err)
}
