// Package api serves lectern's HTTP interface: a display page for the
// operator, JSON endpoints for recent references, recognition, verse text and
// the canon, and mount points for the websocket broadcast, MCP, metrics and
// health handlers.
//
// Routes:
//
//	GET  /                     HTML list of recent references, auto-refreshing
//	GET  /transcript           {"transcript": [...]}
//	GET  /api/v1/references    {"references": [...], "latest": "..."}
//	POST /api/v1/recognize     {"text": "..."} -> {"references": [...]}
//	GET  /api/v1/verses?ref=   verse text from the offline bible
//	GET  /api/v1/books         the active canon
//	GET  /ws                   websocket stream of new references
//	     /mcp                  MCP streamable HTTP endpoint
//	GET  /metrics              Prometheus scrape endpoint
//	GET  /healthz, /readyz     health probes
package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/lectern/internal/health"
	"github.com/MrWong99/lectern/internal/ingest"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/scripture"
	"github.com/MrWong99/lectern/internal/versetext"
)

// maxBody bounds POST bodies.
const maxBody = 64 << 10

// Config wires the server's collaborators. Runner is required; every other
// field is optional and its routes are omitted when nil.
type Config struct {
	// Runner recognises POSTed text and publishes new references.
	Runner *ingest.Runner

	// Verses serves /api/v1/verses.
	Verses versetext.Store

	// Broadcast is mounted at /ws.
	Broadcast http.Handler

	// MCP is mounted at /mcp.
	MCP http.Handler

	// Metrics, if set, is mounted at /metrics.
	Metrics http.Handler

	// Health provides /healthz and /readyz.
	Health *health.Handler

	// Observe records HTTP metrics and spans for every request.
	Observe *observe.Metrics

	// Refresh is the display page reload interval. Default: 2s.
	Refresh time.Duration
}

// Server is the lectern HTTP API.
type Server struct {
	cfg  Config
	page *template.Template
}

// New returns a Server for cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("api: runner is required")
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 2 * time.Second
	}
	page, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, page: page}, nil
}

// Handler returns the routed handler, wrapped in the observe middleware when
// metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/v1/references", s.handleReferences)
	mux.HandleFunc("POST /api/v1/recognize", s.handleRecognize)
	mux.HandleFunc("GET /api/v1/verses", s.handleVerses)
	mux.HandleFunc("GET /api/v1/books", s.handleBooks)
	if s.cfg.Broadcast != nil {
		mux.Handle("GET /ws", s.cfg.Broadcast)
	}
	if s.cfg.MCP != nil {
		mux.Handle("/mcp", s.cfg.MCP)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}
	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}

	if s.cfg.Observe == nil {
		return mux
	}
	return observe.Middleware(s.cfg.Observe)(mux)
}

// ─── Handlers ────────────────────────────────────────────────────────────────

type pageData struct {
	Refresh    int
	References []string
	Latest     string
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	recent := s.cfg.Runner.Recognizer().Recent()
	data := pageData{Refresh: max(int(s.cfg.Refresh/time.Second), 1), References: recent}
	if n := len(recent); n > 0 {
		data.Latest = recent[n-1]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		slog.Warn("api: render page", "error", err)
	}
}

type transcriptResponse struct {
	Transcript []string `json:"transcript"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, transcriptResponse{Transcript: nonNil(s.cfg.Runner.Recognizer().Recent())})
}

type referencesResponse struct {
	References []string `json:"references"`
	Latest     string   `json:"latest,omitempty"`
}

func (s *Server) handleReferences(w http.ResponseWriter, _ *http.Request) {
	buf := s.cfg.Runner.Recognizer().Buffer()
	latest, _ := buf.Latest()
	writeJSON(w, http.StatusOK, referencesResponse{References: nonNil(buf.Snapshot()), Latest: latest})
}

type recognizeRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

type detection struct {
	Reference string `json:"reference"`
	Heard     string `json:"heard"`
	Change    string `json:"change"`
}

type recognizeResponse struct {
	References []string    `json:"references"`
	Detections []detection `json:"detections"`
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	body := http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Source == "" {
		req.Source = "http"
	}

	dets := s.cfg.Runner.Handle(r.Context(), ingest.Fragment{
		Text: req.Text, Final: true, Source: req.Source, At: time.Now(),
	})
	resp := recognizeResponse{References: []string{}, Detections: []detection{}}
	for _, d := range dets {
		ref := d.Reference.String()
		resp.References = append(resp.References, ref)
		resp.Detections = append(resp.Detections, detection{Reference: ref, Heard: d.Text, Change: d.Change.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

type versesResponse struct {
	Reference string            `json:"reference"`
	Text      string            `json:"text"`
	Verses    []versetext.Verse `json:"verses"`
}

func (s *Server) handleVerses(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Verses == nil {
		writeError(w, http.StatusServiceUnavailable, "no bible configured")
		return
	}
	raw := r.URL.Query().Get("ref")
	ref, err := s.parseRef(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	verses, err := s.cfg.Verses.Lookup(r.Context(), ref)
	switch {
	case errors.Is(err, versetext.ErrNotFound):
		writeError(w, http.StatusNotFound, "Verse not found: "+ref.String())
		return
	case err != nil:
		observe.Logger(r.Context()).Error("api: verse lookup", "reference", ref.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, versesResponse{
		Reference: ref.String(),
		Text:      versetext.Render(r.Context(), s.cfg.Verses, ref.String()),
		Verses:    verses,
	})
}

// parseRef accepts a canonical reference whose book is in the active canon,
// ignoring case. Lookups do not touch the recency buffer.
func (s *Server) parseRef(raw string) (scripture.Reference, error) {
	if strings.TrimSpace(raw) == "" {
		return scripture.Reference{}, errors.New("ref is required")
	}
	table := s.cfg.Runner.Recognizer().Table()
	if ref, err := scripture.ParseReference(raw); err == nil {
		if b, ok := table.Lookup(ref.Book); ok {
			ref.Book = b.Name
			return ref, nil
		}
	}
	return scripture.Reference{}, errors.New("ref must look like \"John 3:16\" with a book of the " + table.Name() + " canon")
}

type bookInfo struct {
	Name     string `json:"name"`
	OSIS     string `json:"osis"`
	Chapters []int  `json:"chapters"`
}

type booksResponse struct {
	Canon string     `json:"canon"`
	Books []bookInfo `json:"books"`
}

func (s *Server) handleBooks(w http.ResponseWriter, _ *http.Request) {
	table := s.cfg.Runner.Recognizer().Table()
	resp := booksResponse{Canon: table.Name()}
	for _, b := range table.Books() {
		resp.Books = append(resp.Books, bookInfo{Name: b.Name, OSIS: b.OSIS, Chapters: b.Chapters})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully
// within timeout.
func Serve(ctx context.Context, srv *http.Server, certFile, keyFile string, timeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()
	slog.Info("http server listening", "addr", srv.Addr, "tls", certFile != "")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
