package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termfocus/termfocus/internal/focus"
	"github.com/termfocus/termfocus/internal/session"
)

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// both ends of the connection. The caller must close the server and both
// connections.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

type received struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) (received, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return received{}, false
	}
	var msg received
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg, true
}

func readSnapshot(t *testing.T, conn *websocket.Conn) session.RenderModel {
	t.Helper()
	msg, ok := readMessage(t, conn, 2*time.Second)
	if !ok {
		t.Fatal("no message received")
	}
	if msg.Type != MsgSnapshot {
		t.Fatalf("message type = %q, want snapshot", msg.Type)
	}
	var model session.RenderModel
	if err := json.Unmarshal(msg.Payload, &model); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return model
}

func TestAddClient_SendsInitialSnapshot(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	store := session.NewStore()
	store.Upsert("1", "build", "compiling")
	b := NewBroadcaster(store, time.Hour, time.Hour)
	defer b.stop()

	b.AddClient(serverConn)
	if got := b.ClientCount(); got != 1 {
		t.Fatalf("ClientCount = %d, want 1", got)
	}

	model := readSnapshot(t, clientConn)
	if model.BadgeCount != 1 || len(model.Entries) != 1 || model.Entries[0].WindowID != "1" {
		t.Errorf("unexpected snapshot %+v", model)
	}
}

func TestNotify_CoalescesChanges(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	store := session.NewStore()
	b := NewBroadcaster(store, 100*time.Millisecond, time.Hour)
	store.SetOnChange(b.OnStoreChange)
	defer b.stop()

	b.AddClient(serverConn)
	if model := readSnapshot(t, clientConn); model.Total != 0 {
		t.Fatalf("initial snapshot total = %d", model.Total)
	}

	store.Upsert("1", "a", "")
	store.Upsert("2", "b", "")
	store.Upsert("3", "c", "")

	model := readSnapshot(t, clientConn)
	if model.Total != 3 || model.BadgeCount != 3 {
		t.Errorf("coalesced snapshot total=%d badge=%d, want 3/3", model.Total, model.BadgeCount)
	}

	if msg, ok := readMessage(t, clientConn, 300*time.Millisecond); ok {
		t.Errorf("unexpected extra message %q", msg.Type)
	}
}

func TestNotice_SentImmediately(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour)
	defer b.stop()
	b.AddClient(serverConn)
	readSnapshot(t, clientConn)

	b.Notice(focus.Notice{WindowID: "9", Level: focus.LevelError, Text: "Could not bring window 9 to front"})

	msg, ok := readMessage(t, clientConn, 2*time.Second)
	if !ok {
		t.Fatal("no notice received")
	}
	if msg.Type != MsgNotice {
		t.Fatalf("type = %q, want notice", msg.Type)
	}
	var n focus.Notice
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.WindowID != "9" || n.Level != focus.LevelError {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestRun_PeriodicSnapshotAndStop(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	store := session.NewStore()
	b := NewBroadcaster(store, time.Hour, 50*time.Millisecond)
	b.AddClient(serverConn)
	readSnapshot(t, clientConn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	// No store hook is installed, so only the ticker can deliver this.
	store.Upsert("1", "a", "")
	if model := readSnapshot(t, clientConn); model.Total != 1 {
		t.Errorf("periodic snapshot total = %d, want 1", model.Total)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount after stop = %d, want 0", got)
	}
}

func TestWritePump_RemovesClientOnWriteError(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	clientConn.Close()

	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour)
	defer b.stop()

	// Build a client directly so we control when writePump starts.
	c := &client{
		conn: serverConn,
		b:    b,
		send: make(chan []byte, sendBuffer),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"snapshot"}`)
	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}

func TestSend_DropsSlowClient(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()
	defer serverConn.Close()

	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour)
	defer b.stop()

	// No writePump: the buffer fills and the next send must drop the client.
	c := &client{conn: serverConn, b: b, send: make(chan []byte, 1)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	b.send([]byte("one"))
	if b.ClientCount() != 1 {
		t.Fatal("client dropped too early")
	}
	b.send([]byte("two"))
	if b.ClientCount() != 0 {
		t.Errorf("slow client not dropped; ClientCount = %d", b.ClientCount())
	}
}

func TestRemoveClient_Idempotent(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour)
	c := &client{b: b, send: make(chan []byte, 1)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	b.RemoveClient(c)
	b.RemoveClient(c)
	if b.ClientCount() != 0 {
		t.Errorf("ClientCount = %d", b.ClientCount())
	}
}

func TestHandleWS_PushesSnapshot(t *testing.T) {
	store := session.NewStore()
	store.Upsert("4", "deploy", "rolling")
	b := NewBroadcaster(store, 50*time.Millisecond, time.Hour)
	defer b.stop()

	srv := httptest.NewServer(NewServer(store, b, nil, Options{}).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	model := readSnapshot(t, conn)
	if model.Total != 1 || model.Entries[0].Title != "deploy" {
		t.Errorf("unexpected snapshot %+v", model)
	}
}
