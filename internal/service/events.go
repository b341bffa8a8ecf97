// Package service implements the engagement core: like toggles, the comment
// ledger, trend scoring and the chat message pipeline.
package service

import (
	"context"

	"vibefeed/internal/notifications"
)

// EventPublisher is the fan-out side of the realtime bus.
type EventPublisher interface {
	Publish(ctx context.Context, room string, evt notifications.Event)
}

// TrendScheduler queues a post for score recomputation.
type TrendScheduler interface {
	Schedule(postID uint)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, notifications.Event) {}

type nopScheduler struct{}

func (nopScheduler) Schedule(uint) {}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func schedulerOrNop(s TrendScheduler) TrendScheduler {
	if s == nil {
		return nopScheduler{}
	}
	return s
}
