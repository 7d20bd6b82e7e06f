package hub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/piyushrav1/realtime-whiteboard/internal/dto"
	"github.com/piyushrav1/realtime-whiteboard/internal/service"
)

// hubMessage is the unit of work on the Hub's internal channel.
type hubMessage struct {
	kind   string // "register", "unregister", "event"
	client *Client
	raw    []byte // inbound frame, event only
}

// Hub coordinates every live websocket connection: it owns the membership
// table, fans deltas out to room members, and drives the per-room destruction
// timers. Inbound events are processed one at a time by Run, so operations
// from a single connection apply in the order sent; cross-connection conflicts
// are left to the store's per-operation atomicity (last write wins).
type Hub struct {
	messageChan chan hubMessage

	members *membership
	reaper  *Reaper
	engine  *service.RoomStateEngine

	// Every connected client, roomed or not. Global notices (roomDestroyed)
	// go to all of them.
	clientsMu sync.RWMutex
	clients   map[*Client]struct{}
}

// NewHub creates the Hub and its Reaper. destructionDelay is the grace period
// an empty room survives before its document is deleted.
func NewHub(engine *service.RoomStateEngine, destructionDelay time.Duration) *Hub {
	if engine == nil {
		panic("RoomStateEngine cannot be nil for Hub")
	}
	h := &Hub{
		messageChan: make(chan hubMessage, 512),
		members:     newMembership(),
		engine:      engine,
		clients:     make(map[*Client]struct{}),
	}
	h.reaper = NewReaper(destructionDelay, h.roomIsEmpty, h.destroyRoom)
	return h
}

// Run is the Hub's event loop. It should run in its own goroutine and lives
// for the life of the process.
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running")

	for msg := range h.messageChan {
		switch msg.kind {
		case "register":
			h.addClient(msg.client)
		case "unregister":
			h.removeClient(msg.client)
		case "event":
			h.dispatch(msg.client, msg.raw)
		default:
			log.Warnf("Unknown hub message kind %q", msg.kind)
		}
	}
	log.Info("Hub stopped")
}

// Register queues a new connection. Blocks until the Hub accepts it, so a
// registration is never lost.
func (h *Hub) Register(c *Client) {
	h.messageChan <- hubMessage{kind: "register", client: c}
}

// unregister queues the connection teardown. Called by the client's read pump.
func (h *Hub) unregister(c *Client) {
	h.messageChan <- hubMessage{kind: "unregister", client: c}
}

// enqueueEvent hands an inbound frame to the Hub without blocking the read
// pump. Frames are dropped under overload; the client resynchronizes on its
// next join.
func (h *Hub) enqueueEvent(c *Client, raw []byte) {
	select {
	case h.messageChan <- hubMessage{kind: "event", client: c, raw: raw}:
	default:
		logrus.WithField("conn_id", c.id).Warn("Hub message channel full, dropping frame")
	}
}

// Stop disarms the reaper. The event loop itself drains with the process.
func (h *Hub) Stop() {
	h.reaper.Stop()
}

// MembersOf returns the number of connections currently in roomName.
func (h *Hub) MembersOf(roomName string) int {
	return h.members.count(roomName)
}

// Reaper exposes the destruction timer state machine, mainly for the worker
// and tests.
func (h *Hub) Reaper() *Reaper {
	return h.reaper
}

// NotifyRoomDestroyed announces a destroyed room to every connected client.
// Lobby screens react to it; members of other rooms ignore it.
func (h *Hub) NotifyRoomDestroyed(roomName string) {
	frame, err := dto.Encode(dto.EventRoomDestroyed, dto.RoomPayload{RoomName: roomName})
	if err != nil {
		logrus.WithField("room", roomName).WithError(err).Error("Failed to encode roomDestroyed")
		return
	}
	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		c.trySend(frame)
	}
}

func (h *Hub) addClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	h.clientsMu.Unlock()
	logrus.WithFields(logrus.Fields{"conn_id": c.id, "display_name": c.displayName}).
		Info("Client registered")
}

func (h *Hub) removeClient(c *Client) {
	h.clientsMu.Lock()
	delete(h.clients, c)
	h.clientsMu.Unlock()

	roomName, ok := h.members.disconnect(c)
	if ok {
		logrus.WithFields(logrus.Fields{"conn_id": c.id, "room": roomName}).
			Info("Client disconnected from room")
		h.checkEmptiness(roomName)
	}
	c.stop()
}

// checkEmptiness arms the reaper when roomName has just become empty.
func (h *Hub) checkEmptiness(roomName string) {
	if h.members.count(roomName) == 0 {
		h.reaper.RoomEmptied(roomName)
	}
}

func (h *Hub) roomIsEmpty(roomName string) bool {
	return h.members.count(roomName) == 0
}

// destroyRoom is the reaper's expiry action: delete the document and tell
// everyone. Runs on the timer goroutine, off the Hub loop.
func (h *Hub) destroyRoom(roomName string) {
	ctx, cancel := opContext()
	defer cancel()
	if err := h.engine.Destroy(ctx, roomName); err != nil {
		logrus.WithField("room", roomName).WithError(err).Error("Reaper failed to destroy room")
		return
	}
	h.NotifyRoomDestroyed(roomName)
}

// broadcastRoom fans a frame out to roomName's members, minus exclude when
// non-nil. Best effort: no delivery confirmation, no retry.
func (h *Hub) broadcastRoom(roomName string, frame []byte, exclude *Client) {
	for _, c := range h.members.members(roomName, exclude) {
		c.trySend(frame)
	}
}
