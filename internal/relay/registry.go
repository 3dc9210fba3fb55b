package relay

import "sync"

// entry is one (user, session) membership record inside a room.
type entry struct {
	userID  string
	session *Session
}

// Registry is the in-memory membership table. It keeps two indexes
// over the same facts: room -> ordered member list and user -> live
// sessions. Both are updated under one lock, so a join or leave is
// atomic and the indexes never disagree.
//
// The registry holds pure state; all client-visible notices are the
// session's job.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[int64][]entry
	userConns map[string]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:     make(map[int64][]entry),
		userConns: make(map[string]map[*Session]struct{}),
	}
}

// Join records (userID, sess) as a member of roomID. Rooms come into
// existence on first join; the REST layer has already authorized the
// room id before the client got here, so no existence check happens.
// A duplicate (userID, sess) pair returns false without mutating
// anything.
func (r *Registry) Join(sess *Session, userID string, roomID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.rooms[roomID] {
		if e.userID == userID && e.session == sess {
			return false
		}
	}

	r.rooms[roomID] = append(r.rooms[roomID], entry{userID: userID, session: sess})

	if r.userConns[userID] == nil {
		r.userConns[userID] = make(map[*Session]struct{})
	}
	r.userConns[userID][sess] = struct{}{}

	return true
}

// Leave removes (userID, sess) from roomID. Returns false when the
// pair was not a member. On the user's last live session the user key
// is dropped entirely so the table does not accumulate empty sets.
func (r *Registry) Leave(sess *Session, userID string, roomID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	idx := -1
	for i, e := range members {
		if e.userID == userID && e.session == sess {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	r.rooms[roomID] = append(members[:idx], members[idx+1:]...)
	if len(r.rooms[roomID]) == 0 {
		delete(r.rooms, roomID)
	}

	if conns, ok := r.userConns[userID]; ok {
		delete(conns, sess)
		if len(conns) == 0 {
			delete(r.userConns, userID)
		}
	}

	return true
}

// MembersOf returns a snapshot of the sessions currently in roomID.
// Callers iterate the snapshot without holding the registry lock.
func (r *Registry) MembersOf(roomID int64) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]*Session, 0, len(members))
	for _, e := range members {
		out = append(out, e.session)
	}
	return out
}

// HasConnection reports whether sess is recorded as one of userID's
// live connections.
func (r *Registry) HasConnection(userID string, sess *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.userConns[userID]
	if !ok {
		return false
	}
	_, ok = conns[sess]
	return ok
}
