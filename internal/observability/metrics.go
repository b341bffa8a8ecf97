package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibefeed_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ToggleAttempts counts versioned engagement writes by target and outcome
	// (committed, stale, exhausted).
	ToggleAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibefeed_toggle_attempts_total",
		Help: "Versioned engagement write attempts by target kind and outcome",
	}, []string{"target", "outcome"})

	// EventsPublished counts events handed to the fan-out bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibefeed_events_published_total",
		Help: "Events published by type and room scope",
	}, []string{"event", "scope"})

	// RelayFallbacks counts publishes delivered locally because the relay was unavailable.
	RelayFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibefeed_relay_fallbacks_total",
		Help: "Events delivered locally because the Redis relay was unavailable",
	})

	// WebSocketConnectionsTotal is the gauge of registered realtime connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibefeed_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibefeed_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// ChatMessagesStored counts persisted chat messages.
	ChatMessagesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibefeed_chat_messages_stored_total",
		Help: "Chat messages persisted by the pipeline",
	})

	// TrendRecomputes counts trend score recomputations by trigger.
	TrendRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibefeed_trend_recomputes_total",
		Help: "Trend score recomputations by trigger (engagement, sweep, read)",
	}, []string{"trigger"})
)

// EventScope labels a room for metrics without exploding cardinality.
func EventScope(room string) string {
	switch {
	case room == "*":
		return "global"
	case strings.HasPrefix(room, "user:"):
		return "user"
	case strings.HasPrefix(room, "chat:"):
		return "chat"
	default:
		return "other"
	}
}
