package wsstream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lectern/pkg/provider/stt"
	"github.com/MrWong99/lectern/pkg/provider/stt/wsstream"
)

// echoDecoder treats frames starting with "final:" as finals and everything
// else as partials.
func echoDecoder(msg []byte) (stt.Transcript, bool) {
	s := string(msg)
	if s == "" {
		return stt.Transcript{}, false
	}
	if text, ok := strings.CutPrefix(s, "final:"); ok {
		return stt.Transcript{Text: text, IsFinal: true}, true
	}
	return stt.Transcript{Text: s}, true
}

// dial starts a server running handler and returns a client connection to it.
func dial(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn)) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestStart_RequiresDecoder(t *testing.T) {
	t.Parallel()
	conn := dial(t, func(context.Context, *websocket.Conn) {})
	defer conn.CloseNow()

	if _, err := wsstream.Start(context.Background(), conn, wsstream.Config{Name: "x"}); err == nil {
		t.Fatal("expected error without a decoder")
	}
}

func TestSession_RoutesPartialsAndFinals(t *testing.T) {
	t.Parallel()
	conn := dial(t, func(ctx context.Context, c *websocket.Conn) {
		_ = c.Write(ctx, websocket.MessageText, []byte("mark"))
		_ = c.Write(ctx, websocket.MessageText, []byte(""))
		_ = c.Write(ctx, websocket.MessageText, []byte("final:mark ten forty five"))
		// Wait for the client's close message.
		for {
			if _, data, err := c.Read(ctx); err != nil || string(data) == "bye" {
				return
			}
		}
	})

	sess, err := wsstream.Start(context.Background(), conn, wsstream.Config{
		Name:         "test",
		Decode:       echoDecoder,
		CloseMessage: []byte("bye"),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case tr := <-sess.Partials():
		if tr.Text != "mark" {
			t.Errorf("partial: got=%q, want mark", tr.Text)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no partial")
	}
	select {
	case tr := <-sess.Finals():
		if tr.Text != "mark ten forty five" || !tr.IsFinal {
			t.Errorf("final: got=%+v", tr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no final")
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0}); !errors.Is(err, stt.ErrClosed) {
		t.Errorf("SendAudio after Close: got=%v, want ErrClosed", err)
	}
	if _, open := <-sess.Finals(); open {
		t.Error("Finals should be closed after Close")
	}
}

func TestSession_SetKeywordsNotSupported(t *testing.T) {
	t.Parallel()
	conn := dial(t, func(ctx context.Context, c *websocket.Conn) {
		_, _, _ = c.Read(ctx)
	})
	sess, err := wsstream.Start(context.Background(), conn, wsstream.Config{
		Name:         "test",
		Decode:       echoDecoder,
		FlushTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Close()

	if err := sess.SetKeywords([]stt.KeywordBoost{{Keyword: "Obadiah"}}); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("SetKeywords: got=%v, want ErrNotSupported", err)
	}
}

func TestSession_ParentCancelEndsSession(t *testing.T) {
	t.Parallel()
	conn := dial(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := wsstream.Start(ctx, conn, wsstream.Config{Name: "test", Decode: echoDecoder})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case _, open := <-sess.Partials():
		if open {
			t.Error("unexpected partial")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Partials not closed after parent cancellation")
	}
	_ = sess.Close()
}
