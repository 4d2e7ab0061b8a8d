package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termfocus/termfocus/internal/focus"
	"github.com/termfocus/termfocus/internal/logging"
	"github.com/termfocus/termfocus/internal/session"
)

var wsLog = logging.ForComponent(logging.CompWS)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			// Drain until RemoveClient closes the channel.
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// Broadcaster pushes the registry's render model to websocket presenters.
// Registry changes are coalesced into one snapshot per throttle window, and a
// full snapshot is also sent every snapshot interval.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	store   *session.Store

	throttle         time.Duration
	snapshotInterval time.Duration

	flushMu    sync.Mutex
	flushTimer *time.Timer
}

func NewBroadcaster(store *session.Store, throttle, snapshotInterval time.Duration) *Broadcaster {
	return &Broadcaster{
		clients:          make(map[*client]bool),
		store:            store,
		throttle:         throttle,
		snapshotInterval: snapshotInterval,
	}
}

// AddClient registers conn and queues an initial snapshot for it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, sendBuffer),
	}

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	if data, err := b.snapshotMessage(); err == nil {
		b.trySend(c, data)
	}

	go c.writePump()
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// OnStoreChange is installed as the store's change hook.
func (b *Broadcaster) OnStoreChange(ev session.Event) {
	wsLog.Debug("store_changed", slog.String("event", ev.Type.String()), slog.String("window_id", ev.WindowID))
	b.Notify()
}

// Notify schedules a snapshot broadcast after the throttle delay. Calls made
// while one is pending are folded into it.
func (b *Broadcaster) Notify() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	b.flushTimer = nil
	b.flushMu.Unlock()

	b.broadcastSnapshot()
}

// Notice sends n to every presenter immediately.
func (b *Broadcaster) Notice(n focus.Notice) {
	b.broadcast(WSMessage{Type: MsgNotice, Payload: NoticePayload(n)})
}

// Run sends periodic snapshots until ctx is cancelled, then disconnects all
// clients.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.stop()
			return
		case <-ticker.C:
			b.broadcastSnapshot()
		}
	}
}

func (b *Broadcaster) stop() {
	b.flushMu.Lock()
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.flushMu.Unlock()

	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) snapshotMessage() ([]byte, error) {
	return json.Marshal(WSMessage{Type: MsgSnapshot, Payload: b.store.RenderModel()})
}

func (b *Broadcaster) broadcastSnapshot() {
	if b.ClientCount() == 0 {
		return
	}
	data, err := b.snapshotMessage()
	if err != nil {
		wsLog.Error("broadcast_marshal_failed", slog.String("error", err.Error()))
		return
	}
	b.send(data)
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		wsLog.Error("broadcast_marshal_failed", slog.String("error", err.Error()))
		return
	}
	b.send(data)
}

func (b *Broadcaster) send(data []byte) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !b.trySend(c, data) {
			wsLog.Warn("ws_client_too_slow", slog.String("remote", c.conn.RemoteAddr().String()))
			b.RemoveClient(c)
		}
	}
}

// trySend queues data without blocking. It holds the read lock so the send
// cannot race with RemoveClient closing the channel.
func (b *Broadcaster) trySend(c *client, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
