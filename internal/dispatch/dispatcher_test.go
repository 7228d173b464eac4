package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingodesk/bellhop/internal/crm"
	"github.com/lingodesk/bellhop/internal/domain"
)

type fakeClient struct {
	mu sync.Mutex

	markedRead    []string
	markReadErr   error
	markedAllRead int
	markAllErr    error

	list      []domain.Notification
	listErr   error
	unread    int
	unreadErr error
}

func (f *fakeClient) ListNotifications(_ context.Context, _ crm.ListParams) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list, f.listErr
}

func (f *fakeClient) UnreadCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, f.unreadErr
}

func (f *fakeClient) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, id)
	return f.markReadErr
}

func (f *fakeClient) MarkAllRead(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markedAllRead, f.markAllErr
}

type fakeStore struct {
	mu sync.Mutex

	saved      []domain.Notification
	replaced   []domain.Notification
	markedRead []string
	listed     []domain.Notification
}

func (f *fakeStore) Save(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, n)
	return nil
}

func (f *fakeStore) Replace(_ context.Context, notifications []domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = notifications
	return nil
}

func (f *fakeStore) List(_ context.Context, limit, offset int, _ bool) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= len(f.listed) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.listed) {
		end = len(f.listed)
	}
	return f.listed[offset:end], nil
}

func (f *fakeStore) MarkRead(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeStore) MarkAllRead(context.Context, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.listed {
		if !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func newTestDispatcher(client *fakeClient, store *fakeStore) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(client, store, logger)
}

func event(id string) *domain.Notification {
	return &domain.Notification{
		ID:        id,
		Kind:      domain.KindNewMessage,
		Title:     "New message",
		CreatedAt: time.Now().UTC(),
	}
}

func TestDispatcher_DeliversOnce(t *testing.T) {
	client := &fakeClient{}
	store := &fakeStore{}
	d := newTestDispatcher(client, store)

	var received []string
	d.Subscribe(func(n domain.Notification) {
		received = append(received, n.ID)
	})

	d.HandleEvent(event("n1"))
	d.HandleEvent(event("n1"))
	d.HandleEvent(event("n2"))

	assert.Equal(t, []string{"n1", "n2"}, received)
	assert.Equal(t, 2, d.UnreadCount())
	assert.Len(t, store.saved, 2)
}

func TestDispatcher_AlreadyReadEventDoesNotCount(t *testing.T) {
	d := newTestDispatcher(&fakeClient{}, &fakeStore{})

	read := time.Now().UTC()
	n := event("n1")
	n.ReadAt = &read

	d.HandleEvent(n)

	assert.Equal(t, 0, d.UnreadCount())
}

func TestDispatcher_FanOutInRegistrationOrder(t *testing.T) {
	d := newTestDispatcher(&fakeClient{}, &fakeStore{})

	var order []string
	d.Subscribe(func(domain.Notification) { order = append(order, "first") })
	d.Subscribe(func(domain.Notification) { order = append(order, "second") })
	d.Subscribe(func(domain.Notification) { order = append(order, "third") })

	d.HandleEvent(event("n1"))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDispatcher_UnsubscribeIsIdempotent(t *testing.T) {
	d := newTestDispatcher(&fakeClient{}, &fakeStore{})

	var first, second int
	unsubscribe := d.Subscribe(func(domain.Notification) { first++ })
	d.Subscribe(func(domain.Notification) { second++ })

	d.HandleEvent(event("n1"))
	unsubscribe()
	unsubscribe()
	d.HandleEvent(event("n2"))

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestDispatcher_PanickingSubscriberIsIsolated(t *testing.T) {
	d := newTestDispatcher(&fakeClient{}, &fakeStore{})

	var delivered int
	d.Subscribe(func(domain.Notification) { panic("boom") })
	d.Subscribe(func(domain.Notification) { delivered++ })

	d.HandleEvent(event("n1"))
	d.HandleEvent(event("n2"))

	assert.Equal(t, 2, delivered)
}

func TestDispatcher_MarkReadIsOptimistic(t *testing.T) {
	client := &fakeClient{markReadErr: errors.New("crm down")}
	store := &fakeStore{}
	d := newTestDispatcher(client, store)

	d.HandleEvent(event("n1"))
	require.Equal(t, 1, d.UnreadCount())

	err := d.MarkRead(context.Background(), "n1")

	// The acknowledgment failure surfaces, but local state keeps the
	// decrement. The next Refresh reconciles.
	require.Error(t, err)
	assert.Equal(t, 0, d.UnreadCount())
	assert.Equal(t, []string{"n1"}, store.markedRead)
	assert.Equal(t, []string{"n1"}, client.markedRead)
}

func TestDispatcher_MarkReadNeverGoesNegative(t *testing.T) {
	d := newTestDispatcher(&fakeClient{}, &fakeStore{})

	require.NoError(t, d.MarkRead(context.Background(), "unknown"))

	assert.Equal(t, 0, d.UnreadCount())
}

func TestDispatcher_MarkAllRead(t *testing.T) {
	client := &fakeClient{markedAllRead: 7}
	d := newTestDispatcher(client, &fakeStore{})

	d.HandleEvent(event("n1"))
	d.HandleEvent(event("n2"))

	count, err := d.MarkAllRead(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, 0, d.UnreadCount())
}

func TestDispatcher_RefreshReconciles(t *testing.T) {
	client := &fakeClient{
		list:   []domain.Notification{*event("n1"), *event("n2"), *event("n3")},
		unread: 3,
	}
	store := &fakeStore{}
	d := newTestDispatcher(client, store)

	var delivered int
	d.Subscribe(func(domain.Notification) { delivered++ })

	require.NoError(t, d.Refresh(context.Background()))

	assert.Equal(t, 3, d.UnreadCount())
	assert.Len(t, store.replaced, 3)

	// Snapshot ids are marked seen so a replay over the push channel
	// after reconnect is not delivered again.
	d.HandleEvent(event("n2"))
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 3, d.UnreadCount())
}

func TestDispatcher_RefreshFailureKeepsLocalState(t *testing.T) {
	client := &fakeClient{listErr: errors.New("crm down")}
	d := newTestDispatcher(client, &fakeStore{})

	d.HandleEvent(event("n1"))

	require.Error(t, d.Refresh(context.Background()))
	assert.Equal(t, 1, d.UnreadCount())
}
