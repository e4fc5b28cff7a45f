package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/metaapi"
	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/session"
)

const redeployPause = 2 * time.Second

// SessionProvider hands out ready sessions and drops stale ones.
type SessionProvider interface {
	Get(ctx context.Context, accountID string) (*session.Session, error)
	Evict(accountID string)
}

// SubscriptionDropper tears down live price subscriptions for an account.
type SubscriptionDropper interface {
	DropAccount(accountID string)
}

// AccountStateView is the composite state snapshot returned to callers.
type AccountStateView struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name,omitempty"`
	State            domain.AccountState     `json:"state"`
	ConnectionStatus domain.ConnectionStatus `json:"connectionStatus"`
	Platform         string                  `json:"platform,omitempty"`
	Server           string                  `json:"server,omitempty"`
}

// TerminalStateView bundles everything the terminal knows about an account.
type TerminalStateView struct {
	AccountInformation *domain.AccountInformation `json:"accountInformation"`
	Positions          []domain.Position          `json:"positions"`
	Orders             []domain.Order             `json:"orders"`
}

type AccountService struct {
	tracer   trace.Tracer
	client   metaapi.Client
	sessions SessionProvider
	subs     SubscriptionDropper
	sleep    func(time.Duration)
}

func NewAccountService(tracer trace.Tracer, client metaapi.Client, sessions SessionProvider, subs SubscriptionDropper) *AccountService {
	return &AccountService{
		tracer:   tracer,
		client:   client,
		sessions: sessions,
		subs:     subs,
		sleep:    time.Sleep,
	}
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	_, span := s.tracer.Start(ctx, "account-service.list-accounts")
	defer span.End()

	return s.client.ListAccounts(ctx)
}

func (s *AccountService) AccountState(ctx context.Context, accountID string) (*AccountStateView, error) {
	_, span := s.tracer.Start(ctx, "account-service.account-state")
	defer span.End()

	account, err := s.client.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	details := account.Details()
	return &AccountStateView{
		ID:               details.ID,
		Name:             details.Name,
		State:            details.State,
		ConnectionStatus: details.ConnectionStatus,
		Platform:         details.Platform,
		Server:           details.Server,
	}, nil
}

func (s *AccountService) AccountInformation(ctx context.Context, accountID string) (*domain.AccountInformation, error) {
	_, span := s.tracer.Start(ctx, "account-service.account-information")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess.Conn.AccountInformation(ctx)
}

func (s *AccountService) TerminalState(ctx context.Context, accountID string) (*TerminalStateView, error) {
	_, span := s.tracer.Start(ctx, "account-service.terminal-state")
	defer span.End()

	sess, err := s.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	info, err := sess.Conn.AccountInformation(ctx)
	if err != nil {
		return nil, fmt.Errorf("account information: %w", err)
	}
	positions, err := sess.Conn.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	orders, err := sess.Conn.Orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	return &TerminalStateView{AccountInformation: info, Positions: positions, Orders: orders}, nil
}

func (s *AccountService) Deploy(ctx context.Context, accountID string) error {
	_, span := s.tracer.Start(ctx, "account-service.deploy")
	defer span.End()

	account, err := s.client.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := account.Deploy(ctx); err != nil {
		return fmt.Errorf("deploy account %s: %w", accountID, err)
	}
	slog.Info("account deploy requested", "accountId", accountID)
	return nil
}

// Undeploy stops the account and drops every local resource bound to it: the
// cached session and any live price subscriptions.
func (s *AccountService) Undeploy(ctx context.Context, accountID string) error {
	_, span := s.tracer.Start(ctx, "account-service.undeploy")
	defer span.End()

	account, err := s.client.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := account.Undeploy(ctx); err != nil {
		return fmt.Errorf("undeploy account %s: %w", accountID, err)
	}

	s.sessions.Evict(accountID)
	if s.subs != nil {
		s.subs.DropAccount(accountID)
	}
	slog.Info("account undeployed", "accountId", accountID)
	return nil
}

// Redeploy cycles the account. The pause between undeploy and deploy gives
// the platform time to release the old terminal.
func (s *AccountService) Redeploy(ctx context.Context, accountID string) error {
	_, span := s.tracer.Start(ctx, "account-service.redeploy")
	defer span.End()

	if err := s.Undeploy(ctx, accountID); err != nil {
		return err
	}
	s.sleep(redeployPause)
	return s.Deploy(ctx, accountID)
}
