// Package health serves the liveness (/healthz) and readiness (/readyz)
// probes. Readiness aggregates named [Checker]s: the canon, the ingest
// source, the verse store and one circuit breaker per publishing sink.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	statusOK   = "ok"
	statusFail = "fail"

	// probeTimeout bounds every individual check.
	probeTimeout = 5 * time.Second
)

// Checker names one readiness probe. Check returns nil when healthy and must
// honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler is safe for concurrent use. Checkers may be added while serving,
// for example once the ingest source has started.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
}

// New returns a Handler probing checkers.
func New(checkers ...Checker) *Handler {
	h := &Handler{}
	h.Add(checkers...)
	return h
}

// Add registers checkers. A name already present is replaced in place.
func (h *Handler) Add(checkers ...Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range checkers {
		if i := slices.IndexFunc(h.checkers, func(e Checker) bool { return e.Name == c.Name }); i >= 0 {
			h.checkers[i] = c
		} else {
			h.checkers = append(h.checkers, c)
		}
	}
}

// Healthz answers 200 for as long as the process can serve HTTP.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: statusOK})
}

// Readyz runs every checker concurrently and answers 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checkers := slices.Clone(h.checkers)
	h.mu.RUnlock()

	errs := make([]error, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	rep := report{Status: statusOK, Checks: make(map[string]string, len(checkers))}
	code := http.StatusOK
	for i, c := range checkers {
		if errs[i] == nil {
			rep.Checks[c.Name] = statusOK
			continue
		}
		rep.Checks[c.Name] = statusFail + ": " + errs[i].Error()
		rep.Status = statusFail
		code = http.StatusServiceUnavailable
	}
	respond(w, code, rep)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
