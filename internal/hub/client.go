package hub

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Finalize frames carry a whole
	// object including its accumulated points.
	maxMessageSize = 64 * 1024

	// Per-connection inbound budget. Shape-resize and point streams run at
	// pointer-move frequency, so the limit is generous.
	inboundEventsPerSecond = 120
	inboundBurst           = 240
)

// Client is one websocket connection known to the Hub. Its current room, if
// any, lives in the Hub's membership table, not here.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	id          string
	displayName string

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	limiter  *rate.Limiter
}

// NewClient creates a client with a fresh connection ID and a guest display
// name. The caller still has to register it with the Hub and start the pumps.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:         h,
		conn:        conn,
		id:          uuid.NewString(),
		displayName: guestName(),
		send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		limiter:     rate.NewLimiter(rate.Limit(inboundEventsPerSecond), inboundBurst),
	}
}

func (c *Client) ID() string          { return c.id }
func (c *Client) DisplayName() string { return c.displayName }
func (c *Client) CloseConn()          { c.conn.Close() }

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// stop signals the write pump to exit. The send channel is never closed, so
// a broadcast racing teardown cannot panic; it just queues a frame nobody
// will read.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// trySend queues a frame for this client without blocking. A full send buffer
// means the client is too slow or mid-disconnect; the frame is dropped and the
// client resynchronizes on its next join.
func (c *Client) trySend(message []byte) {
	select {
	case <-c.done:
	case c.send <- message:
	default:
		logrus.WithFields(logrus.Fields{"conn_id": c.id}).
			Warn("Client send buffer full, dropping frame")
	}
}

// readPump pumps inbound frames from the websocket into the Hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		logrus.WithField("conn_id", c.id).Info("Read pump exited, client unregistered")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("conn_id", c.id)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("Websocket read error (unexpected close)")
			} else {
				logCtx.Debug("Websocket connection closed")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.limiter.Allow() {
			logrus.WithField("conn_id", c.id).Warn("Inbound rate limit exceeded, dropping frame")
			continue
		}
		c.hub.enqueueEvent(c, message)
	}
}

// writePump pumps frames from the send channel to the websocket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("conn_id", c.id).WithError(err).Warn("Failed to write frame")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

const guestNameAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// guestName builds a display name like "Guest-k3x9".
func guestName() string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// rand.Read failing means the platform is broken; fall back to a
		// constant rather than taking the connection down.
		return "Guest-anon"
	}
	for i, b := range suffix {
		suffix[i] = guestNameAlphabet[int(b)%len(guestNameAlphabet)]
	}
	return "Guest-" + string(suffix)
}
