package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// Conn is one live client connection, whatever the transport.
type Conn interface {
	ID() string
	Send(event string, payload any) error
	Close() error
}

// Peer is the gateway's bookkeeping for a connection.
type Peer struct {
	UserID   string
	Username string

	conn    Conn
	limiter *rate.Limiter
	// serializes event handling for this connection
	mu sync.Mutex
	// guarded by the registry lock
	rooms map[string]struct{}
}

func (p *Peer) ID() string { return p.conn.ID() }

func (p *Peer) send(event string, payload any) error {
	return p.conn.Send(event, payload)
}

// Registry owns the connection maps. Nothing outside the gateway sees them.
type Registry struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	byUser map[string]map[string]struct{}
	rooms  map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		peers:  make(map[string]*Peer),
		byUser: make(map[string]map[string]struct{}),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Add registers p and returns how many connections its user now holds.
func (r *Registry) Add(p *Peer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if p.rooms == nil {
		p.rooms = make(map[string]struct{})
	}
	r.peers[id] = p
	conns, ok := r.byUser[p.UserID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[p.UserID] = conns
	}
	conns[id] = struct{}{}
	return len(conns)
}

// Remove drops a connection and every room subscription it held. It returns
// the rooms it was in and the user's remaining connection count.
func (r *Registry) Remove(connID string) (p *Peer, rooms []string, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok = r.peers[connID]
	if !ok {
		return nil, nil, 0, false
	}
	delete(r.peers, connID)
	for chatID := range p.rooms {
		rooms = append(rooms, chatID)
		r.unsubscribe(chatID, connID)
	}
	p.rooms = make(map[string]struct{})
	if conns, found := r.byUser[p.UserID]; found {
		delete(conns, connID)
		remaining = len(conns)
		if remaining == 0 {
			delete(r.byUser, p.UserID)
		}
	}
	return p, rooms, remaining, true
}

func (r *Registry) unsubscribe(chatID, connID string) {
	members, ok := r.rooms[chatID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, chatID)
	}
}

// Join subscribes a connection to a room. Returns false if it already was.
func (r *Registry) Join(connID, chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[connID]
	if !ok {
		return false
	}
	if _, in := p.rooms[chatID]; in {
		return false
	}
	p.rooms[chatID] = struct{}{}
	members, ok := r.rooms[chatID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[chatID] = members
	}
	members[connID] = struct{}{}
	return true
}

// Leave unsubscribes a connection. Returns false if it was not in the room.
func (r *Registry) Leave(connID, chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[connID]
	if !ok {
		return false
	}
	if _, in := p.rooms[chatID]; !in {
		return false
	}
	delete(p.rooms, chatID)
	r.unsubscribe(chatID, connID)
	return true
}

// LeaveUser unsubscribes every connection of userID from the room.
func (r *Registry) LeaveUser(userID, chatID string) []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var left []*Peer
	for connID := range r.byUser[userID] {
		p := r.peers[connID]
		if _, in := p.rooms[chatID]; !in {
			continue
		}
		delete(p.rooms, chatID)
		r.unsubscribe(chatID, connID)
		left = append(left, p)
	}
	return left
}

func (r *Registry) Get(connID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[connID]
	return p, ok
}

func (r *Registry) InRoom(connID, chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[chatID][connID]
	return ok
}

// RoomPeers lists the connections subscribed to a room.
func (r *Registry) RoomPeers(chatID string) []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.rooms[chatID]))
	for connID := range r.rooms[chatID] {
		out = append(out, r.peers[connID])
	}
	return out
}

// UsersInRoom lists the distinct users with at least one connection in a room.
func (r *Registry) UsersInRoom(chatID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for connID := range r.rooms[chatID] {
		id := r.peers[connID].UserID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (r *Registry) UserPeers(userID string) []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.byUser[userID]))
	for connID := range r.byUser[userID] {
		out = append(out, r.peers[connID])
	}
	return out
}

// OnlineUsers lists every user holding at least one connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		out = append(out, userID)
	}
	return out
}

func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

func (r *Registry) IsOnline(userID string) bool {
	return r.ConnectionCount(userID) > 0
}

// Len is the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
