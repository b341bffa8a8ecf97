// Package notifications provides real-time notification delivery and management.
package notifications

import (
	"context"
	"fmt"
	"runtime/debug"

	"vibefeed/internal/cache"
	"vibefeed/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Relay carries published events between processes.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe calls onMessage for every relayed payload until ctx is done.
	Subscribe(ctx context.Context, onMessage func(payload []byte)) error
}

// Notifier is the Redis pub/sub Relay.
type Notifier struct {
	rdb     *redis.Client
	channel string
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, channel: cache.RelayChannel}
}

// Publish sends payload on the relay channel.
func (n *Notifier) Publish(ctx context.Context, payload []byte) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, n.channel, payload).Err()
}

// Subscribe blocks, forwarding relay messages to onMessage, until ctx is
// cancelled or the subscription breaks.
func (n *Notifier) Subscribe(ctx context.Context, onMessage func(payload []byte)) error {
	if n.rdb == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	sub := n.rdb.Subscribe(ctx, n.channel)
	defer func() { _ = sub.Close() }()

	// wait for the subscription to be confirmed before consuming
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", n.channel, err)
	}
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", n.channel)
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						observability.GlobalLogger.Error("panic in relay subscriber",
							"panic", r, "stack", string(debug.Stack()))
					}
				}()
				onMessage([]byte(msg.Payload))
			}()
		}
	}
}
