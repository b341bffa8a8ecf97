package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"vibefeed/internal/cache"
	"vibefeed/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

type stubHub struct{}

func (stubHub) UnregisterClient(*Client) {}
func (stubHub) Name() string             { return "test hub" }

func newTestClient(userID uint) *Client {
	return NewClient(stubHub{}, nil, models.Principal{UserID: userID, Username: "tester"})
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := cache.Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// drain returns every event currently queued for c.
func drain(t *testing.T, c *Client) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var evt Event
			require.NoError(t, json.Unmarshal(raw, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}
