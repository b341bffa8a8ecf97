package notifications

import (
	"context"
	"time"

	"vibefeed/internal/models"
	"vibefeed/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
)

// PresenceStore persists online state and last-seen for a user.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID uint, online bool, lastSeen time.Time) error
}

// HubConfig wires a Hub. Every field is optional.
type HubConfig struct {
	Redis        *redis.Client
	Users        PresenceStore
	OfflineGrace time.Duration
}

// Hub ties the registry, the bus and presence tracking to connection
// lifecycles. It is the only component that attaches or detaches
// connections.
type Hub struct {
	registry *Registry
	bus      *Bus
	presence *PresenceTracker
	users    PresenceStore
	log      *observability.RealtimeLogger
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "realtime hub" }

// NewHub creates a hub. With cfg.Redis set, events are relayed between
// processes and presence is mirrored in Redis.
func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		users:    cfg.Users,
		log:      observability.NewRealtimeLogger("realtime hub"),
	}

	var relay Relay
	if cfg.Redis != nil {
		relay = NewNotifier(cfg.Redis)
	}
	h.bus = NewBus(h.registry, relay)
	h.presence = NewPresenceTracker(cfg.Redis, PresenceConfig{
		OfflineGrace: cfg.OfflineGrace,
		OnOnline:     h.userOnline,
		OnOffline:    h.userOffline,
	})
	return h
}

// Registry exposes room membership.
func (h *Hub) Registry() *Registry { return h.registry }

// Bus exposes the fan-out bus.
func (h *Hub) Bus() *Bus { return h.bus }

// Presence exposes the presence tracker.
func (h *Hub) Presence() *PresenceTracker { return h.presence }

// Connect wraps an upgraded websocket in a Client and registers it.
func (h *Hub) Connect(ctx context.Context, conn *websocket.Conn, principal models.Principal) (*Client, error) {
	c := NewClient(h, conn, principal)
	if err := h.Register(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Register attaches c to the registry and presence tracking. Unauthenticated
// clients are refused before anything is recorded.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	if _, err := h.registry.Attach(c); err != nil {
		return err
	}
	c.OnActivity = func(cl *Client) {
		h.presence.Touch(context.Background(), cl.UserID())
	}
	observability.WebSocketConnectionsTotal.Inc()
	h.log.Connected(ctx, c.UserID(), c.ID)
	h.presence.Register(ctx, c.UserID())
	return nil
}

// UnregisterClient removes c from every room, closes its queue and, when it
// was the user's last connection, lets presence go offline.
func (h *Hub) UnregisterClient(c *Client) {
	dep, ok := h.registry.OnDisconnect(c.ID)
	c.Close()
	if !ok {
		return
	}
	observability.WebSocketConnectionsTotal.Dec()
	h.log.Disconnected(context.Background(), c.UserID(), c.ID, "closed")
	h.presence.Unregister(context.Background(), dep.Client.UserID())
}

// Join adds c to room.
func (h *Hub) Join(c *Client, room string) (bool, error) {
	return h.registry.Join(c.ID, c.Principal, room)
}

// Leave removes c from room.
func (h *Hub) Leave(c *Client, room string) bool {
	return h.registry.Leave(c.ID, room)
}

// Publish implements the service-side event publisher.
func (h *Hub) Publish(ctx context.Context, room string, evt Event) {
	h.bus.Publish(ctx, room, evt)
}

// PublishExcept publishes to room skipping c.
func (h *Hub) PublishExcept(ctx context.Context, room string, evt Event, c *Client) {
	h.bus.PublishExcept(ctx, room, evt, c.ID)
}

// SendError delivers an error event to c only.
func (h *Hub) SendError(c *Client, msg string) {
	h.bus.SendTo(c, ErrorEvent(msg))
}

// IsOnline reports whether userID is online in any process.
func (h *Hub) IsOnline(ctx context.Context, userID uint) bool {
	return h.presence.IsOnline(ctx, userID)
}

// OnlineUserIDs lists users online in any process.
func (h *Hub) OnlineUserIDs(ctx context.Context) []uint {
	return h.presence.OnlineUserIDs(ctx)
}

func (h *Hub) userOnline(userID uint, at time.Time) {
	h.transition(userID, StatusOnline, at)
}

func (h *Hub) userOffline(userID uint, at time.Time) {
	h.transition(userID, StatusOffline, at)
}

func (h *Hub) transition(userID uint, status string, at time.Time) {
	ctx := context.Background()
	if h.users != nil {
		if err := h.users.SetPresence(ctx, userID, status == StatusOnline, at); err != nil {
			observability.LogAsyncError(ctx, "persist_presence", err, "user_id", userID, "status", status)
		}
	}
	h.bus.Publish(ctx, GlobalRoom, Event{
		Type:    EventUserStatus,
		Payload: UserStatus{UserID: userID, Status: status},
	})
}

// Shutdown closes every connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	// closing each queue makes its WritePump send the close frame
	for _, c := range h.registry.all() {
		h.UnregisterClient(c)
	}
	h.log.Lifecycle(ctx, "shutdown")
	return nil
}
