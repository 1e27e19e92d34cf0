// Package broadcast streams confirmed references to websocket subscribers,
// typically browser-based lower thirds or a stage-display page on a tablet.
//
// Each subscriber gets a bounded send queue. A subscriber that falls behind
// is disconnected instead of slowing down everyone else.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/publish"
)

// Event is the JSON frame sent to subscribers.
type Event struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
}

const (
	defaultBuffer       = 16
	defaultWriteTimeout = 5 * time.Second
)

// Option configures a [Hub].
type Option func(*Hub)

// WithBuffer sets the per-subscriber queue length. Default: 16.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithMetrics tracks connected subscribers on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithOriginPatterns allows cross-origin subscribers matching patterns, as in
// [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

type subscriber struct {
	id   string
	send chan []byte
	kick func()
}

// Hub is a [publish.Sink] and an [http.Handler] accepting websocket
// subscribers.
type Hub struct {
	buffer  int
	metrics *observe.Metrics
	origins []string

	mu     sync.Mutex
	subs   map[string]*subscriber
	last   []byte
	closed bool
}

var (
	_ publish.Sink = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// New returns an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{buffer: defaultBuffer, subs: make(map[string]*subscriber)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Name implements [publish.Sink].
func (h *Hub) Name() string { return "broadcast" }

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish implements [publish.Sink]. It never blocks on a subscriber.
func (h *Hub) Publish(_ context.Context, m publish.Message) error {
	frame, err := json.Marshal(Event{Reference: m.Reference, Text: m.Text})
	if err != nil {
		return fmt.Errorf("broadcast: encode: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = frame
	for id, s := range h.subs {
		select {
		case s.send <- frame:
		default:
			slog.Warn("broadcast: dropping slow subscriber", "client_id", id)
			delete(h.subs, id)
			s.kick()
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams events until the subscriber
// disconnects or is dropped. A new subscriber first receives the most recent
// event, if any.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Debug("broadcast: websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Subscribers only listen; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	s := &subscriber{id: uuid.NewString(), send: make(chan []byte, h.buffer), kick: cancel}
	if !h.add(s) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.remove(s.id)

	log := slog.With("client_id", s.id, "remote", r.RemoteAddr)
	log.Info("broadcast subscriber connected")
	if h.metrics != nil {
		h.metrics.ActiveWSClients.Add(ctx, 1)
		defer h.metrics.ActiveWSClients.Add(context.WithoutCancel(ctx), -1)
	}

	for {
		select {
		case frame := <-s.send:
			wctx, wcancel := context.WithTimeout(ctx, defaultWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			wcancel()
			if err != nil {
				log.Info("broadcast subscriber gone", "error", err)
				return
			}
		case <-ctx.Done():
			if h.dropped(s.id) {
				conn.Close(websocket.StatusPolicyViolation, "too slow")
			} else {
				conn.Close(websocket.StatusNormalClosure, "")
			}
			log.Info("broadcast subscriber disconnected")
			return
		}
	}
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s.id] = s
	if h.last != nil {
		s.send <- h.last
	}
	return true
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// dropped reports whether id was removed by Publish rather than by the peer.
func (h *Hub) dropped(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[id]
	return !ok && !h.closed
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		s.kick()
	}
}
