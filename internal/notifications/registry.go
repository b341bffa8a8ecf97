package notifications

import (
	"errors"
	"slices"
	"sync"

	"vibefeed/internal/models"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	errSendBufferFull = errors.New("send buffer full, message dropped")

	// ErrUserConnLimit is returned by Attach when the user already has
	// maxConnsPerUser live connections.
	ErrUserConnLimit = errors.New("user connection limit reached")
	// ErrServerConnLimit is returned by Attach when the process is full.
	ErrServerConnLimit = errors.New("server connection limit reached")
)

// Registry is the Presence & Room Registry: which connections exist, which
// user each belongs to and which rooms each has joined. Membership is only
// changed through Attach, Join, Leave and OnDisconnect.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Client
	byUser map[uint]map[string]*Client
	rooms  map[string]map[string]*Client
	joined map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Client),
		byUser: make(map[uint]map[string]*Client),
		rooms:  make(map[string]map[string]*Client),
		joined: make(map[string]map[string]struct{}),
	}
}

// Attach registers an authenticated connection and joins it to its personal
// room. first reports whether this is the user's only live connection.
func (r *Registry) Attach(c *Client) (first bool, err error) {
	if !c.Principal.Authenticated() {
		return false, models.NewUnauthorizedError("Authentication required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID]; ok {
		return false, nil
	}
	if len(r.conns) >= maxTotalConns {
		return false, ErrServerConnLimit
	}
	userConns := r.byUser[c.UserID()]
	if len(userConns) >= maxConnsPerUser {
		return false, ErrUserConnLimit
	}
	if userConns == nil {
		userConns = make(map[string]*Client)
		r.byUser[c.UserID()] = userConns
	}

	r.conns[c.ID] = c
	userConns[c.ID] = c
	r.joined[c.ID] = make(map[string]struct{})
	r.joinLocked(c, UserRoom(c.UserID()))
	return len(userConns) == 1, nil
}

// Join adds the connection to room. The principal must be authenticated and
// the connection attached; joining twice is a no-op and returns false.
func (r *Registry) Join(connID string, principal models.Principal, room string) (bool, error) {
	if !principal.Authenticated() {
		return false, models.NewUnauthorizedError("Authentication required")
	}
	if room == "" || room == GlobalRoom {
		return false, models.NewValidationError("room is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok || c.UserID() != principal.UserID {
		return false, models.NewUnauthorizedError("Connection is not registered")
	}
	return r.joinLocked(c, room), nil
}

func (r *Registry) joinLocked(c *Client, room string) bool {
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	if _, ok := members[c.ID]; ok {
		return false
	}
	members[c.ID] = c
	r.joined[c.ID][room] = struct{}{}
	return true
}

// Leave removes the connection from room and reports whether it was a member.
func (r *Registry) Leave(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID, room string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, room)
	}
	return true
}

// Departure describes a connection removed by OnDisconnect.
type Departure struct {
	Client *Client
	Rooms  []string
	// LastForUser is set when the user has no other live connection.
	LastForUser bool
}

// OnDisconnect removes the connection from every room it joined. ok is false
// when the connection was not registered.
func (r *Registry) OnDisconnect(connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return Departure{}, false
	}

	rooms := make([]string, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		r.leaveLocked(connID, room)
	}
	slices.Sort(rooms)

	delete(r.joined, connID)
	delete(r.conns, connID)

	userConns := r.byUser[c.UserID()]
	delete(userConns, connID)
	last := len(userConns) == 0
	if last {
		delete(r.byUser, c.UserID())
	}
	return Departure{Client: c, Rooms: rooms, LastForUser: last}, true
}

// MembersOf returns the sorted connection ids in room. GlobalRoom yields
// every registered connection.
func (r *Registry) MembersOf(room string) []string {
	clients := r.clientsOf(room, "")
	ids := make([]string, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ID)
	}
	slices.Sort(ids)
	return ids
}

// RoomsOf returns the sorted rooms a connection has joined.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		rooms = append(rooms, room)
	}
	slices.Sort(rooms)
	return rooms
}

// clientsOf snapshots the clients addressed by room, minus except.
func (r *Registry) clientsOf(room, except string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.rooms[room]
	if room == GlobalRoom {
		src = r.conns
	}
	out := make([]*Client, 0, len(src))
	for id, c := range src {
		if id == except {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Client returns the registered connection with id.
func (r *Registry) Client(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// ConnectionCount is the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// UserConnectionCount is the number of live connections of userID.
func (r *Registry) UserConnectionCount(userID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// OnlineUserIDs returns the sorted ids of users with a live local connection.
func (r *Registry) OnlineUserIDs() []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) all() []*Client {
	return r.clientsOf(GlobalRoom, "")
}
