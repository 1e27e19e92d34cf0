package broadcast

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lectern/internal/publish"
)

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) Event {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("frame type: got=%v, want text", typ)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients: got=%d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsToAllSubscribers(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dial(t, ctx, srv)
	b := dial(t, ctx, srv)
	waitClients(t, h, 2)

	msg := publish.Message{Reference: "John 3:16", Text: "John 3:16 — For God so loved the world"}
	if err := h.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		ev := readEvent(t, ctx, conn)
		if ev.Reference != msg.Reference || ev.Text != msg.Text {
			t.Errorf("%s: got=%+v, want %+v", name, ev, msg)
		}
	}
}

func TestHub_ReplaysLatestToNewSubscriber(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	_ = h.Publish(ctx, publish.Message{Reference: "Genesis 1:1"})
	_ = h.Publish(ctx, publish.Message{Reference: "Romans 8:28"})

	conn := dial(t, ctx, srv)
	if ev := readEvent(t, ctx, conn); ev.Reference != "Romans 8:28" {
		t.Errorf("replayed: got=%q, want Romans 8:28", ev.Reference)
	}
}

func TestHub_DisconnectRemovesSubscriber(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, ctx, srv)
	waitClients(t, h, 1)
	conn.Close(websocket.StatusNormalClosure, "bye")
	waitClients(t, h, 0)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	t.Parallel()
	h := New(WithBuffer(1))

	kicked := false
	s := &subscriber{id: "slow", send: make(chan []byte, 1), kick: func() { kicked = true }}
	h.subs[s.id] = s

	_ = h.Publish(context.Background(), publish.Message{Reference: "John 1:1"})
	if kicked || h.Clients() != 1 {
		t.Fatal("first message fits the queue")
	}
	_ = h.Publish(context.Background(), publish.Message{Reference: "John 1:2"})
	if !kicked {
		t.Error("subscriber with a full queue should be kicked")
	}
	if h.Clients() != 0 {
		t.Errorf("clients: got=%d, want 0", h.Clients())
	}
	if !h.dropped("slow") {
		t.Error("dropped should report the kicked subscriber")
	}
}

func TestHub_CloseRefusesSubscribers(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	first := dial(t, ctx, srv)
	waitClients(t, h, 1)
	h.Close()
	if _, _, err := first.Read(ctx); err == nil {
		t.Error("existing subscriber should be disconnected on Close")
	}

	late := dial(t, ctx, srv)
	_, _, err := late.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("late subscriber: got=%v, want StatusGoingAway", err)
	}
}
