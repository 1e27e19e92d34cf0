package propresenter_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lectern/internal/publish"
	"github.com/MrWong99/lectern/internal/publish/propresenter"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := propresenter.New("udp", "localhost:54346"); err == nil {
		t.Error("unknown mode should fail")
	}
	if _, err := propresenter.New(propresenter.ModeTCP, ""); err == nil {
		t.Error("empty address should fail")
	}
	s, err := propresenter.New(propresenter.ModeTCP, "localhost:54346")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != "propresenter" {
		t.Errorf("Name: got=%q", s.Name())
	}
}

func TestPublish_TCP(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	lines := make(chan string, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			line, _ := bufio.NewReader(conn).ReadString('\n')
			conn.Close()
			lines <- line
		}
	}()

	s, err := propresenter.New(propresenter.ModeTCP, ln.Addr().String(), propresenter.WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msgs := []publish.Message{
		{Reference: "John 3:16"},
		{Reference: "Genesis 1:1", Text: "Genesis 1:1 — In the beginning"},
	}
	for _, m := range msgs {
		if err := s.Publish(context.Background(), m); err != nil {
			t.Fatalf("Publish(%s): %v", m.Reference, err)
		}
	}

	for _, m := range msgs {
		line := <-lines
		if !strings.HasSuffix(line, "}\r\n") {
			t.Errorf("line should end with CRLF: %q", line)
		}
		var req map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &req); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		want := map[string]any{"url": "v1/stage/message", "method": "PUT", "body": m.Display(), "chunked": false}
		for k, v := range want {
			if req[k] != v {
				t.Errorf("%s: got=%v, want %v", k, req[k], v)
			}
		}
	}
}

func TestPublish_TCPUnreachable(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s, _ := propresenter.New(propresenter.ModeTCP, addr, propresenter.WithTimeout(500*time.Millisecond))
	if err := s.Publish(context.Background(), publish.Message{Reference: "John 3:16"}); err == nil {
		t.Error("publishing to a closed port should fail")
	}
}

func TestPublish_HTTP(t *testing.T) {
	t.Parallel()

	type got struct {
		method, path, body string
	}
	reqs := make(chan got, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		reqs <- got{r.Method, r.URL.Path, string(b)}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	s, err := propresenter.New(propresenter.ModeHTTP, addr, propresenter.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Publish(context.Background(), publish.Message{Reference: "Psalm 23:1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	r := <-reqs
	if r.method != http.MethodPut || r.path != "/v1/stage/message" {
		t.Errorf("request: got=%s %s, want PUT /v1/stage/message", r.method, r.path)
	}
	if r.body != `"Psalm 23:1"` {
		t.Errorf("body: got=%s, want JSON string", r.body)
	}
}

func TestPublish_HTTPErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "stage layout missing", http.StatusBadRequest)
	}))
	defer srv.Close()

	s, _ := propresenter.New(propresenter.ModeHTTP, strings.TrimPrefix(srv.URL, "http://"))
	if err := s.Publish(context.Background(), publish.Message{Reference: "John 1:1"}); err == nil {
		t.Error("a 400 response should be an error")
	}
}
