package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ok(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

// readyz runs the readiness probe and decodes its body.
func readyz(t *testing.T, h *Handler, ctx context.Context) (int, report) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "ingest", Check: failWith("stopped")})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" || len(body.Checks) != 0 {
		t.Errorf("body = %+v, want status ok without checks", body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   report
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   report{Status: "ok"},
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "canon", Check: ok},
				{Name: "ingest", Check: ok},
			},
			wantStatus: http.StatusOK,
			wantBody:   report{Status: "ok", Checks: map[string]string{"canon": "ok", "ingest": "ok"}},
		},
		{
			name: "one sink open",
			checkers: []Checker{
				{Name: "canon", Check: ok},
				{Name: "sink:propresenter", Check: failWith("circuit open")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   report{Status: "fail", Checks: map[string]string{"canon": "ok", "sink:propresenter": "fail: circuit open"}},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "ingest", Check: failWith("stt session down")},
				{Name: "sink:broadcast", Check: failWith("circuit open")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   report{Status: "fail", Checks: map[string]string{"ingest": "fail: stt session down", "sink:broadcast": "fail: circuit open"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tc.checkers...), context.Background())
			if code != tc.wantStatus {
				t.Errorf("status = %d, want %d", code, tc.wantStatus)
			}
			if body.Status != tc.wantBody.Status {
				t.Errorf("body status = %q, want %q", body.Status, tc.wantBody.Status)
			}
			for name, want := range tc.wantBody.Checks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestAdd_ReplacesByName(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "ingest", Check: failWith("not started")})

	if code, _ := readyz(t, h, context.Background()); code != http.StatusServiceUnavailable {
		t.Fatalf("status before Add = %d, want 503", code)
	}

	h.Add(Checker{Name: "ingest", Check: ok}, Checker{Name: "canon", Check: ok})
	code, body := readyz(t, h, context.Background())
	if code != http.StatusOK {
		t.Errorf("status after Add = %d, want 200 (body %+v)", code, body)
	}
	if len(body.Checks) != 2 {
		t.Errorf("checks = %v, want 2 entries", body.Checks)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "canon", Check: ok})
	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}
