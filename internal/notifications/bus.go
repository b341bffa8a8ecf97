package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vibefeed/internal/observability"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
)

const busName = "event bus"

// relayEnvelope is what travels between processes.
type relayEnvelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Except string          `json:"except,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Bus is the Event Fan-out Bus. Publish delivers to the local members of a
// room in publish order and, when a relay is configured, forwards the event
// to other processes. Delivery is fire-and-forget per connection.
type Bus struct {
	registry *Registry
	relay    Relay
	breaker  *gobreaker.CircuitBreaker[struct{}]
	origin   string
	locks    RoomLocks
	log      *observability.RealtimeLogger
}

// NewBus returns a bus over registry. relay may be nil for a single process.
func NewBus(registry *Registry, relay Relay) *Bus {
	b := &Bus{
		registry: registry,
		relay:    relay,
		origin:   uuid.NewString(),
		log:      observability.NewRealtimeLogger(busName),
	}
	b.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "realtime-relay",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Lifecycle(context.Background(), "breaker_state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

func (b *Bus) String() string { return busName }

// Publish delivers evt to every connection in room, or to all connections
// for GlobalRoom.
func (b *Bus) Publish(ctx context.Context, room string, evt Event) {
	b.PublishExcept(ctx, room, evt, "")
}

// PublishExcept is Publish that skips the connection exceptConnID.
func (b *Bus) PublishExcept(ctx context.Context, room string, evt Event, exceptConnID string) {
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.Failed(ctx, room, evt.Type, err)
		return
	}
	observability.EventsPublished.WithLabelValues(evt.Type, observability.EventScope(room)).Inc()

	unlock := b.locks.Lock(room)
	defer unlock()

	b.deliverLocked(room, data, exceptConnID)
	b.forward(ctx, relayEnvelope{Origin: b.origin, Room: room, Except: exceptConnID, Data: data})
}

// SendTo delivers evt to a single connection.
func (b *Bus) SendTo(c *Client, evt Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		return false
	}
	return c.TrySend(data)
}

func (b *Bus) deliverLocked(room string, data []byte, except string) int {
	delivered := 0
	for _, c := range b.registry.clientsOf(room, except) {
		if c.TrySend(data) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus) forward(ctx context.Context, env relayEnvelope) {
	if b.relay == nil {
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	_, err = b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.relay.Publish(ctx, payload)
	})
	if err != nil {
		observability.RelayFallbacks.Inc()
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.log.Failed(ctx, env.Room, "relay_publish", err)
		}
	}
}

// Serve consumes relayed events from other processes until ctx is done.
func (b *Bus) Serve(ctx context.Context) error {
	if b.relay == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return b.relay.Subscribe(ctx, b.receive)
}

func (b *Bus) receive(payload []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.log.Failed(context.Background(), "", "relay_decode", err)
		return
	}
	if env.Origin == b.origin || env.Room == "" {
		return
	}
	unlock := b.locks.Lock(env.Room)
	defer unlock()
	b.deliverLocked(env.Room, env.Data, env.Except)
}
