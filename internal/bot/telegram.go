package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type AccountLister interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}

type PriceQuerier interface {
	SymbolPrice(ctx context.Context, accountID, symbol string) (*domain.SymbolPrice, error)
}

type SubscriptionLister interface {
	Active() []string
}

// StartTelegramBot wires the chat commands and returns the alert dispatcher
// so the tick stream can be fed into it. Returns nil when no token is set.
func StartTelegramBot(token string, accounts AccountLister, prices PriceQuerier, subscriptions SubscriptionLister) *TickAlertDispatcher {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	alerts := NewTickAlertDispatcher(b)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/accounts", func(c tele.Context) error {
		list, err := accounts.ListAccounts(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error listing accounts: %v", err))
		}
		if len(list) == 0 {
			return c.Send("No trading accounts provisioned.")
		}
		lines := make([]string, 0, len(list)+1)
		lines = append(lines, "Trading accounts:")
		for _, a := range list {
			lines = append(lines, formatAccount(a))
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.Handle("/price", func(c tele.Context) error {
		args := c.Args()
		if len(args) < 2 {
			return c.Send("Usage: /price <accountId> <symbol>\nExample: /price a1b2c3 EURUSD")
		}
		accountID := strings.TrimSpace(args[0])
		symbol := strings.ToUpper(strings.TrimSpace(args[1]))
		price, err := prices.SymbolPrice(context.Background(), accountID, symbol)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching price for %s: %v", symbol, err))
		}
		msg := fmt.Sprintf(
			"%s\nBid: %g\nAsk: %g\nSpread: %g",
			symbol, price.Bid, price.Ask, price.Ask-price.Bid,
		)
		return c.Send(msg)
	})

	b.Handle("/subs", func(c tele.Context) error {
		active := subscriptions.Active()
		if len(active) == 0 {
			return c.Send("No active price subscriptions.")
		}
		return c.Send("Active subscriptions:\n" + strings.Join(active, "\n"))
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		mode, err := parseAlertMode(c.Args())
		if err != nil {
			return c.Send("Usage: /alerts on | /alerts off | /alerts status")
		}

		switch mode {
		case "on":
			if alerts.Subscribe(chat.ID) {
				return c.Send("Tick alerts enabled for this chat.")
			}
			return c.Send("Tick alerts are already enabled for this chat.")
		case "off":
			if alerts.Unsubscribe(chat.ID) {
				return c.Send("Tick alerts disabled for this chat.")
			}
			return c.Send("Tick alerts are already disabled for this chat.")
		default:
			if alerts.IsSubscribed(chat.ID) {
				return c.Send("Alerts status: ON")
			}
			return c.Send("Alerts status: OFF")
		}
	})

	log.Println("Telegram bot started")
	go b.Start()
	return alerts
}

func formatAccount(a domain.Account) string {
	return fmt.Sprintf("%s %s [%s/%s] %s", a.ID, a.Name, a.State, a.ConnectionStatus, a.Server)
}
