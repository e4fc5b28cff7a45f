package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/session"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// defaultAlertInterval limits how often the same account/symbol pair may be
// broadcast. Live tick streams fire many times per second.
const defaultAlertInterval = 30 * time.Second

// TickAlertDispatcher broadcasts live price ticks to subscribed chats.
type TickAlertDispatcher struct {
	sender   messageSender
	interval time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	subscribers map[int64]struct{}
	lastSent    map[string]time.Time
}

func NewTickAlertDispatcher(sender messageSender) *TickAlertDispatcher {
	return &TickAlertDispatcher{
		sender:      sender,
		interval:    defaultAlertInterval,
		now:         time.Now,
		subscribers: make(map[int64]struct{}),
		lastSent:    make(map[string]time.Time),
	}
}

func (d *TickAlertDispatcher) Subscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; exists {
		return false
	}
	d.subscribers[chatID] = struct{}{}
	return true
}

func (d *TickAlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; !exists {
		return false
	}
	delete(d.subscribers, chatID)
	return true
}

func (d *TickAlertDispatcher) IsSubscribed(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.subscribers[chatID]
	return exists
}

func (d *TickAlertDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// NotifyTick sends the tick to every subscribed chat, subject to the
// per-pair throttle. Send failures are aggregated so one broken chat does
// not hide the rest.
func (d *TickAlertDispatcher) NotifyTick(ctx context.Context, event session.TickEvent) error {
	_ = ctx
	if d == nil || d.sender == nil {
		return nil
	}
	if !d.shouldSend(event) {
		return nil
	}

	chatIDs := d.snapshotSubscribers()
	if len(chatIDs) == 0 {
		return nil
	}

	msg := formatTickMessage(event)
	var failures []string
	for _, chatID := range chatIDs {
		if _, err := d.sender.Send(&tele.Chat{ID: chatID}, msg); err != nil {
			failures = append(failures, fmt.Sprintf("chat %d: %v", chatID, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed sending %d alerts: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

// Run consumes tick events until the context ends or the channel closes.
func (d *TickAlertDispatcher) Run(ctx context.Context, events <-chan session.TickEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = d.NotifyTick(ctx, event)
		}
	}
}

func (d *TickAlertDispatcher) shouldSend(event session.TickEvent) bool {
	key := event.AccountID + ":" + event.Tick.Symbol
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.interval {
		return false
	}
	d.lastSent[key] = now
	return true
}

func (d *TickAlertDispatcher) snapshotSubscribers() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chatIDs := make([]int64, 0, len(d.subscribers))
	for chatID := range d.subscribers {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func parseAlertMode(args []string) (string, error) {
	if len(args) == 0 {
		return "status", nil
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on":
		return "on", nil
	case "off":
		return "off", nil
	case "status":
		return "status", nil
	default:
		return "", fmt.Errorf("invalid mode")
	}
}

func formatTickMessage(event session.TickEvent) string {
	tick := event.Tick
	return fmt.Sprintf(
		"%s %s\nBid: %g\nAsk: %g\nat %s",
		event.AccountID,
		tick.Symbol,
		tick.Bid,
		tick.Ask,
		tick.Time.UTC().Format(time.RFC822),
	)
}
