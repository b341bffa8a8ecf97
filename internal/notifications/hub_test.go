package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"vibefeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenceRecord struct {
	userID uint
	online bool
}

type fakePresenceStore struct {
	mu      sync.Mutex
	records []presenceRecord
}

func (s *fakePresenceStore) SetPresence(_ context.Context, userID uint, online bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, presenceRecord{userID, online})
	return nil
}

func connect(t *testing.T, h *Hub, userID uint) *Client {
	t.Helper()
	c := NewClient(h, nil, models.Principal{UserID: userID, Username: "u"})
	require.NoError(t, h.Register(context.Background(), c))
	return c
}

func TestHub_RegisterRejectsUnauthenticated(t *testing.T) {
	h := NewHub(HubConfig{})
	c := NewClient(h, nil, models.Principal{})

	err := h.Register(context.Background(), c)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
	assert.Zero(t, h.Registry().ConnectionCount())
	assert.False(t, h.IsOnline(context.Background(), 0))
}

func TestHub_DisconnectStopsDeliveryAndBroadcastsOffline(t *testing.T) {
	store := &fakePresenceStore{}
	h := NewHub(HubConfig{Users: store})
	ctx := context.Background()

	c := connect(t, h, 1)
	watcher := connect(t, h, 2)
	for _, room := range []string{ChatRoom("r1"), ChatRoom("r2")} {
		_, err := h.Join(c, room)
		require.NoError(t, err)
	}
	drain(t, c)
	drain(t, watcher)

	h.UnregisterClient(c)
	assert.True(t, c.Closed())

	h.Publish(ctx, ChatRoom("r1"), Event{Type: EventNewMessage})
	h.Publish(ctx, ChatRoom("r2"), Event{Type: EventNewMessage})

	events := drain(t, watcher)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserStatus, events[0].Type)
	payload := events[0].Payload.(map[string]interface{})
	assert.Equal(t, float64(1), payload["userId"])
	assert.Equal(t, StatusOffline, payload["status"])

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []presenceRecord{{1, true}, {2, true}, {1, false}}, store.records)
}

func TestHub_SecondConnectionKeepsUserOnline(t *testing.T) {
	h := NewHub(HubConfig{})
	ctx := context.Background()

	a := connect(t, h, 5)
	b := connect(t, h, 5)
	watcher := connect(t, h, 6)
	drain(t, watcher)

	h.UnregisterClient(a)
	assert.True(t, h.IsOnline(ctx, 5))
	assert.Empty(t, drain(t, watcher))

	h.UnregisterClient(b)
	assert.False(t, h.IsOnline(ctx, 5))
	assert.Equal(t, []string{EventUserStatus}, eventTypes(drain(t, watcher)))

	// unregistering twice is harmless
	h.UnregisterClient(b)
	assert.Equal(t, []uint{6}, h.OnlineUserIDs(ctx))
}

func TestHub_PublishExceptAndSendError(t *testing.T) {
	h := NewHub(HubConfig{})
	a := connect(t, h, 1)
	b := connect(t, h, 2)
	for _, c := range []*Client{a, b} {
		_, err := h.Join(c, ChatRoom("r1"))
		require.NoError(t, err)
		drain(t, c)
	}

	h.PublishExcept(context.Background(), ChatRoom("r1"), Event{Type: EventTypingIndicator}, a)
	h.SendError(a, "nope")

	assert.Equal(t, []string{EventError}, eventTypes(drain(t, a)))
	assert.Equal(t, []string{EventTypingIndicator}, eventTypes(drain(t, b)))
}

func TestHub_Shutdown(t *testing.T) {
	h := NewHub(HubConfig{})
	a := connect(t, h, 1)
	b := connect(t, h, 2)

	require.NoError(t, h.Shutdown(context.Background()))
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Zero(t, h.Registry().ConnectionCount())
}
