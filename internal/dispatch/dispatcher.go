package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lingodesk/bellhop/internal/crm"
	"github.com/lingodesk/bellhop/internal/domain"
)

// refreshPageSize bounds the snapshot fetched on reconnect. The bell
// list never shows more than this many entries at once.
const refreshPageSize = 200

// Client is the slice of the CRM API the dispatcher acknowledges
// reads against and reconciles from.
type Client interface {
	ListNotifications(ctx context.Context, params crm.ListParams) ([]domain.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int, error)
}

// Store is the local history cache behind the dispatcher.
type Store interface {
	Save(ctx context.Context, n domain.Notification) error
	Replace(ctx context.Context, notifications []domain.Notification) error
	List(ctx context.Context, limit, offset int, unreadOnly bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, at time.Time) (int, error)
}

// Subscriber receives every non-duplicate notification exactly once.
type Subscriber func(domain.Notification)

type subscription struct {
	token string
	fn    Subscriber
}

// Dispatcher deduplicates push events by id, fans them out to
// registered subscribers in registration order, and tracks an unread
// counter that converges to the CRM's count on Refresh.
type Dispatcher struct {
	client Client
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	unread int
	subs   []subscription
}

// NewDispatcher creates a dispatcher with no subscribers and a zero
// unread counter. Call Refresh to seed both from the CRM.
func NewDispatcher(client Client, store Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		store:  store,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Subscribe registers fn and returns a closure that removes exactly
// this registration. The closure is safe to call more than once.
func (d *Dispatcher) Subscribe(fn Subscriber) (unsubscribe func()) {
	token := uuid.NewString()

	d.mu.Lock()
	d.subs = append(d.subs, subscription{token: token, fn: fn})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, sub := range d.subs {
			if sub.token == token {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// HandleEvent takes one decoded push event. Duplicates (an id already
// seen this session) are dropped before any side effect. The seen set
// is append-only for the session; notification volume is small enough
// that it never needs eviction.
func (d *Dispatcher) HandleEvent(n *domain.Notification) {
	d.mu.Lock()
	if _, dup := d.seen[n.ID]; dup {
		d.mu.Unlock()
		recordEvent("duplicate")
		d.logger.Debug("duplicate notification dropped", "notification_id", n.ID)
		return
	}
	d.seen[n.ID] = struct{}{}
	if !n.IsRead() {
		d.unread++
		setUnread(d.unread)
	}
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := d.store.Save(ctx, *n); err != nil {
		d.logger.Error("failed to cache notification", "notification_id", n.ID, "error", err)
	}
	cancel()

	recordEvent("delivered")
	for _, sub := range subs {
		d.invoke(sub, *n)
	}
}

// invoke isolates one subscriber callback. A panicking subscriber is
// logged and must not stop delivery to the rest.
func (d *Dispatcher) invoke(sub subscription, n domain.Notification) {
	defer func() {
		if r := recover(); r != nil {
			recordSubscriberPanic()
			d.logger.Error("subscriber panicked",
				"notification_id", n.ID,
				"panic", r,
			)
		}
	}()
	sub.fn(n)
}

// UnreadCount returns the locally tracked counter. It may drift from
// the CRM between pushes and acknowledgments until the next Refresh.
func (d *Dispatcher) UnreadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unread
}

// List serves the bell list from the local cache.
func (d *Dispatcher) List(ctx context.Context, limit, offset int, unreadOnly bool) ([]domain.Notification, error) {
	if limit <= 0 || limit > refreshPageSize {
		limit = refreshPageSize
	}
	return d.store.List(ctx, limit, offset, unreadOnly)
}

// MarkRead acknowledges one notification. Local state updates first
// and is not rolled back if the CRM call fails; the next Refresh
// corrects any drift.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	now := time.Now().UTC()

	d.mu.Lock()
	if d.unread > 0 {
		d.unread--
	}
	setUnread(d.unread)
	d.mu.Unlock()

	if err := d.store.MarkRead(ctx, id, now); err != nil {
		d.logger.Warn("failed to mark cached notification read", "notification_id", id, "error", err)
	}

	if err := d.client.MarkRead(ctx, id); err != nil {
		d.logger.Warn("mark-read acknowledgment failed", "notification_id", id, "error", err)
		return err
	}
	return nil
}

// MarkAllRead zeroes the counter and acknowledges everything.
// Returns the number of notifications the CRM acknowledged, falling
// back to the local count when the CRM call fails.
func (d *Dispatcher) MarkAllRead(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	d.mu.Lock()
	d.unread = 0
	setUnread(0)
	d.mu.Unlock()

	local, err := d.store.MarkAllRead(ctx, now)
	if err != nil {
		d.logger.Warn("failed to mark cached notifications read", "error", err)
	}

	count, err := d.client.MarkAllRead(ctx)
	if err != nil {
		d.logger.Warn("mark-all-read acknowledgment failed", "error", err)
		return local, err
	}
	return count, nil
}

// Refresh replaces the unread counter and the local history with a
// CRM snapshot. Called on startup and after every reconnect to
// reconcile events missed while disconnected.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	notifications, err := d.client.ListNotifications(ctx, crm.ListParams{Limit: refreshPageSize})
	if err != nil {
		return err
	}
	count, err := d.client.UnreadCount(ctx)
	if err != nil {
		return err
	}

	if err := d.store.Replace(ctx, notifications); err != nil {
		d.logger.Error("failed to replace cached notifications", "error", err)
	}

	d.mu.Lock()
	for _, n := range notifications {
		d.seen[n.ID] = struct{}{}
	}
	d.unread = count
	setUnread(count)
	d.mu.Unlock()

	d.logger.Info("notification state reconciled",
		"notifications", len(notifications),
		"unread", count,
	)
	return nil
}
