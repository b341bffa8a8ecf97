package notifications

import (
	"context"
	"strconv"
	"sync"
	"time"

	"vibefeed/internal/cache"
	"vibefeed/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPresenceTTL    = 90 * time.Second
	defaultReaperInterval = 60 * time.Second
)

// PresenceConfig controls the Redis mirror and offline transitions.
type PresenceConfig struct {
	// OfflineGrace delays the offline transition after the last local
	// connection closes. Zero means immediately.
	OfflineGrace   time.Duration
	LastSeenTTL    time.Duration
	ReaperInterval time.Duration
	OnOnline       func(userID uint, at time.Time)
	OnOffline      func(userID uint, at time.Time)
}

// PresenceTracker counts live connections per user, mirrors presence into
// Redis for other processes and emits online/offline transitions once each.
// A user only goes offline when no process reports a live connection.
type PresenceTracker struct {
	rdb      *redis.Client
	now      func() time.Time
	instance string

	mu              sync.RWMutex
	localConnCounts map[uint]int
	offlineTimers   map[uint]*time.Timer
	offlineNotified map[uint]bool

	offlineGrace   time.Duration
	lastSeenTTL    time.Duration
	reaperInterval time.Duration

	onOnline  func(userID uint, at time.Time)
	onOffline func(userID uint, at time.Time)
}

// NewPresenceTracker returns a tracker. rdb may be nil.
func NewPresenceTracker(rdb *redis.Client, cfg PresenceConfig) *PresenceTracker {
	t := &PresenceTracker{
		rdb:             rdb,
		now:             time.Now,
		instance:        uuid.NewString(),
		localConnCounts: make(map[uint]int),
		offlineTimers:   make(map[uint]*time.Timer),
		offlineNotified: make(map[uint]bool),
		offlineGrace:    cfg.OfflineGrace,
		lastSeenTTL:     defaultPresenceTTL,
		reaperInterval:  defaultReaperInterval,
		onOnline:        cfg.OnOnline,
		onOffline:       cfg.OnOffline,
	}
	if cfg.LastSeenTTL > 0 {
		t.lastSeenTTL = cfg.LastSeenTTL
	}
	if cfg.ReaperInterval > 0 {
		t.reaperInterval = cfg.ReaperInterval
	}
	return t
}

func (t *PresenceTracker) String() string { return "presence reaper" }

// Register counts a new connection for userID and emits online when the user
// was not already online anywhere.
func (t *PresenceTracker) Register(ctx context.Context, userID uint) {
	wasOnline := t.IsOnline(ctx, userID)

	t.mu.Lock()
	if timer, ok := t.offlineTimers[userID]; ok {
		timer.Stop()
		delete(t.offlineTimers, userID)
	}
	t.localConnCounts[userID]++
	t.mu.Unlock()

	t.mirrorConns(ctx, userID, 1)
	t.Touch(ctx, userID)
	if !wasOnline {
		t.emitOnline(userID)
	}
}

// Touch refreshes the user's Redis presence.
func (t *PresenceTracker) Touch(ctx context.Context, userID uint) {
	if t.rdb == nil {
		return
	}
	uid := strconv.FormatUint(uint64(userID), 10)
	if err := t.rdb.SAdd(ctx, cache.OnlineUsersKey, uid).Err(); err != nil {
		observability.LogAsyncError(ctx, "presence_touch", err, "user_id", userID)
		return
	}
	stamp := strconv.FormatInt(t.now().Unix(), 10)
	if err := t.rdb.SetEx(ctx, cache.LastSeenKey(userID), stamp, t.lastSeenTTL).Err(); err != nil {
		observability.LogAsyncError(ctx, "presence_touch", err, "user_id", userID)
	}
	_ = t.rdb.Expire(ctx, cache.ConnCountKey(userID), t.lastSeenTTL).Err()
}

// mirrorConns applies delta to this process's entry in the user's
// connection-count hash, dropping the entry when it reaches zero.
func (t *PresenceTracker) mirrorConns(ctx context.Context, userID uint, delta int64) {
	if t.rdb == nil {
		return
	}
	key := cache.ConnCountKey(userID)
	n, err := t.rdb.HIncrBy(ctx, key, t.instance, delta).Result()
	if err != nil {
		observability.LogAsyncError(ctx, "presence_conns", err, "user_id", userID)
		return
	}
	if n <= 0 {
		_ = t.rdb.HDel(ctx, key, t.instance).Err()
		return
	}
	_ = t.rdb.Expire(ctx, key, t.lastSeenTTL).Err()
}

// connectedElsewhere reports whether another process still counts a live
// connection for userID.
func (t *PresenceTracker) connectedElsewhere(ctx context.Context, userID uint) bool {
	if t.rdb == nil {
		return false
	}
	counts, err := t.rdb.HGetAll(ctx, cache.ConnCountKey(userID)).Result()
	if err != nil {
		return false
	}
	for instance, raw := range counts {
		if instance == t.instance {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return true
		}
	}
	return false
}

// Unregister drops one connection of userID. When it was the last one the
// user goes offline, after OfflineGrace if set.
func (t *PresenceTracker) Unregister(ctx context.Context, userID uint) {
	t.mu.Lock()
	n, tracked := t.localConnCounts[userID]
	if tracked {
		n--
		if n > 0 {
			t.localConnCounts[userID] = n
		} else {
			delete(t.localConnCounts, userID)
		}
	}
	t.mu.Unlock()

	if tracked {
		t.mirrorConns(ctx, userID, -1)
	}
	if n > 0 {
		return
	}

	t.mu.Lock()
	if t.localConnCounts[userID] > 0 {
		t.mu.Unlock()
		return
	}
	if timer, ok := t.offlineTimers[userID]; ok {
		timer.Stop()
		delete(t.offlineTimers, userID)
	}
	grace := t.offlineGrace
	if grace > 0 {
		t.offlineTimers[userID] = time.AfterFunc(grace, func() {
			t.finalizeOffline(context.Background(), userID, true)
		})
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.finalizeOffline(ctx, userID, false)
}

// IsOnline reports whether userID has a connection here or a live Redis
// presence key from any process.
func (t *PresenceTracker) IsOnline(ctx context.Context, userID uint) bool {
	t.mu.RLock()
	local := t.localConnCounts[userID] > 0
	t.mu.RUnlock()
	if local {
		return true
	}
	if t.rdb == nil {
		return false
	}
	exists, err := t.rdb.Exists(ctx, cache.LastSeenKey(userID)).Result()
	return err == nil && exists > 0
}

// OnlineUserIDs returns users online in any process, unioned with local
// connections.
func (t *PresenceTracker) OnlineUserIDs(ctx context.Context) []uint {
	local := t.localUserIDs()
	if t.rdb == nil {
		return local
	}

	members, err := t.rdb.SMembers(ctx, cache.OnlineUsersKey).Result()
	if err != nil {
		return local
	}

	seen := make(map[uint]struct{}, len(members)+len(local))
	result := make([]uint, 0, len(members)+len(local))
	for _, raw := range members {
		userID, ok := parseUserID(raw)
		if !ok {
			continue
		}
		exists, err := t.rdb.Exists(ctx, cache.LastSeenKey(userID)).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			_ = t.rdb.SRem(ctx, cache.OnlineUsersKey, raw).Err()
			continue
		}
		seen[userID] = struct{}{}
		result = append(result, userID)
	}
	for _, userID := range local {
		if _, ok := seen[userID]; ok {
			continue
		}
		result = append(result, userID)
	}
	return result
}

// Serve runs the stale-presence reaper until ctx is done.
func (t *PresenceTracker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.stopTimers()
			return ctx.Err()
		case <-ticker.C:
			t.reapOnce(ctx)
		}
	}
}

// reapOnce drops Redis members whose last-seen key expired and emits
// offline for those with no local connection.
func (t *PresenceTracker) reapOnce(ctx context.Context) {
	if t.rdb == nil {
		return
	}
	members, err := t.rdb.SMembers(ctx, cache.OnlineUsersKey).Result()
	if err != nil {
		return
	}
	for _, raw := range members {
		userID, ok := parseUserID(raw)
		if !ok {
			continue
		}
		exists, err := t.rdb.Exists(ctx, cache.LastSeenKey(userID)).Result()
		if err != nil || exists > 0 {
			continue
		}
		_ = t.rdb.SRem(ctx, cache.OnlineUsersKey, raw).Err()

		t.mu.RLock()
		hasLocal := t.localConnCounts[userID] > 0
		t.mu.RUnlock()
		if !hasLocal {
			t.emitOffline(userID)
		}
	}
}

func (t *PresenceTracker) stopTimers() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for userID, timer := range t.offlineTimers {
		timer.Stop()
		delete(t.offlineTimers, userID)
	}
}

func (t *PresenceTracker) finalizeOffline(ctx context.Context, userID uint, fromTimer bool) {
	t.mu.Lock()
	if fromTimer {
		delete(t.offlineTimers, userID)
	}
	if t.localConnCounts[userID] > 0 {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if t.connectedElsewhere(ctx, userID) {
		return
	}
	if t.rdb != nil {
		_ = t.rdb.Del(ctx, cache.LastSeenKey(userID)).Err()
		_ = t.rdb.SRem(ctx, cache.OnlineUsersKey, strconv.FormatUint(uint64(userID), 10)).Err()
	}
	t.emitOffline(userID)
}

func (t *PresenceTracker) emitOnline(userID uint) {
	t.mu.Lock()
	t.offlineNotified[userID] = false
	cb := t.onOnline
	t.mu.Unlock()
	if cb != nil {
		cb(userID, t.now())
	}
}

func (t *PresenceTracker) emitOffline(userID uint) {
	t.mu.Lock()
	if t.offlineNotified[userID] {
		t.mu.Unlock()
		return
	}
	t.offlineNotified[userID] = true
	cb := t.onOffline
	t.mu.Unlock()
	if cb != nil {
		cb(userID, t.now())
	}
}

func (t *PresenceTracker) localUserIDs() []uint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]uint, 0, len(t.localConnCounts))
	for userID, count := range t.localConnCounts {
		if count > 0 {
			ids = append(ids, userID)
		}
	}
	return ids
}

func parseUserID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
