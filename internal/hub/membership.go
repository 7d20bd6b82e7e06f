package hub

import "sync"

// membership owns the {connection <-> room} relation. A connection occupies at
// most one room; joining a new room severs the previous edge. The table is
// the single source of truth for room occupancy; nothing else may infer a
// client's room from connection-local state.
type membership struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	current map[*Client]string
}

func newMembership() *membership {
	return &membership{
		rooms:   make(map[string]map[*Client]struct{}),
		current: make(map[*Client]string),
	}
}

// join adds the client to roomName, severing any previous edge first.
// Returns the vacated room name ("" if the client was in no other room) and
// whether the client was already in roomName, in which case the table is
// unchanged.
func (m *membership) join(c *Client, roomName string) (vacated string, rejoined bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.current[c]
	if ok && prev == roomName {
		return "", true
	}
	if ok {
		m.removeLocked(c, prev)
		vacated = prev
	}
	clients, ok := m.rooms[roomName]
	if !ok {
		clients = make(map[*Client]struct{})
		m.rooms[roomName] = clients
	}
	clients[c] = struct{}{}
	m.current[c] = roomName
	return vacated, false
}

// disconnect severs the client's edge to its current room, if any.
func (m *membership) disconnect(c *Client) (roomName string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomName, ok = m.current[c]
	if ok {
		m.removeLocked(c, roomName)
	}
	return roomName, ok
}

// count returns the number of members in roomName.
func (m *membership) count(roomName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[roomName])
}

// members returns a snapshot of roomName's members, minus exclude when it is
// non-nil, safe to iterate without the lock.
func (m *membership) members(roomName string, exclude *Client) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := m.rooms[roomName]
	out := make([]*Client, 0, len(clients))
	for c := range clients {
		if c != exclude {
			out = append(out, c)
		}
	}
	return out
}

// evict severs every edge to roomName and returns the clients that held one.
func (m *membership) evict(roomName string) []*Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	clients := m.rooms[roomName]
	out := make([]*Client, 0, len(clients))
	for c := range clients {
		out = append(out, c)
		delete(m.current, c)
	}
	delete(m.rooms, roomName)
	return out
}

// removeLocked requires m.mu held for writing.
func (m *membership) removeLocked(c *Client, roomName string) {
	if clients, ok := m.rooms[roomName]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(m.rooms, roomName)
		}
	}
	delete(m.current, c)
}
