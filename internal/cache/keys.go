package cache

import (
	"fmt"
	"time"
)

// Key layouts.
const (
	PostKeyPrefix     = "post:%d"
	TrendingKeyPrefix = "trending:%d:%d"
	TrendingPattern   = "trending:*"
	OnlineUsersKey    = "presence:online_users"
	LastSeenKeyPrefix = "presence:last_seen:%d"
	ConnCountPrefix   = "presence:conns:%d"
	RelayChannel      = "realtime:events"
)

// TTLs.
const (
	PostTTL     = 30 * time.Second
	TrendingTTL = 30 * time.Second
	LastSeenTTL = 24 * time.Hour
)

// PostKey caches a single post read.
func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

// TrendingKey caches one trending page.
func TrendingKey(limit, offset int) string {
	return fmt.Sprintf(TrendingKeyPrefix, limit, offset)
}

// LastSeenKey holds a user's last-seen unix timestamp.
func LastSeenKey(userID uint) string {
	return fmt.Sprintf(LastSeenKeyPrefix, userID)
}

// ConnCountKey is a hash of process id to live connection count for a user.
func ConnCountKey(userID uint) string {
	return fmt.Sprintf(ConnCountPrefix, userID)
}
