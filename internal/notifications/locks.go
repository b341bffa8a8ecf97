package notifications

import (
	"hash/fnv"
	"sync"
)

const roomLockStripes = 64

// RoomLocks is a fixed set of mutexes striped by room key. Holding the lock
// for a room serialises publishes to it, which keeps per-room delivery order
// equal to publish order.
type RoomLocks struct {
	stripes [roomLockStripes]sync.Mutex
}

// Lock acquires the stripe for room and returns its unlock func.
func (l *RoomLocks) Lock(room string) func() {
	m := &l.stripes[stripe(room)]
	m.Lock()
	return m.Unlock
}

func stripe(room string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	return h.Sum32() % roomLockStripes
}
