package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/lectern/internal/api"
	"github.com/MrWong99/lectern/internal/health"
	"github.com/MrWong99/lectern/internal/ingest"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/scripture"
	"github.com/MrWong99/lectern/internal/versetext"
	"github.com/MrWong99/lectern/pkg/canon"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const bible = `[
	{"book": "John", "chapter": 3, "verse": 16, "text": "For God so loved the world"},
	{"book": "John", "chapter": 3, "verse": 17, "text": "For God sent not his Son"}
]`

func newServer(t *testing.T, mutate func(*api.Config)) (*httptest.Server, *ingest.Runner) {
	t.Helper()
	rec := scripture.NewRecognizer(canon.Protestant(), nil)
	runner := ingest.NewRunner(rec, nil)
	verses, err := versetext.LoadJSON(strings.NewReader(bible))
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	cfg := api.Config{Runner: runner, Verses: verses}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := api.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, runner
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("GET %s: Content-Type=%q, want application/json", url, ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func TestNew_RequiresRunner(t *testing.T) {
	t.Parallel()
	if _, err := api.New(api.Config{}); err == nil {
		t.Error("New without a runner should fail")
	}
}

func TestRecognize(t *testing.T) {
	t.Parallel()
	ts, runner := newServer(t, nil)

	body := strings.NewReader(`{"text": "john chapter three verse sixteen then genesis one one"}`)
	resp, err := http.Post(ts.URL+"/api/v1/recognize", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got=%d, want 200", resp.StatusCode)
	}
	var out struct {
		References []string `json:"references"`
		Detections []struct {
			Reference string `json:"reference"`
			Change    string `json:"change"`
		} `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"John 3:16", "Genesis 1:1"}
	if !slices.Equal(out.References, want) {
		t.Errorf("references: got=%v, want %v", out.References, want)
	}
	if len(out.Detections) != 2 || out.Detections[0].Change != "added" {
		t.Errorf("detections: got=%+v", out.Detections)
	}
	if got := runner.Recognizer().Recent(); !slices.Equal(got, want) {
		t.Errorf("recent: got=%v, want %v", got, want)
	}
}

func TestRecognize_BadRequests(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"text":`},
		{"empty text", `{"text": "   "}`},
		{"empty body", ``},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp, err := http.Post(ts.URL+"/api/v1/recognize", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status: got=%d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestReferencesAndTranscript(t *testing.T) {
	t.Parallel()
	ts, runner := newServer(t, nil)

	var empty struct {
		References []string `json:"references"`
	}
	getJSON(t, ts.URL+"/api/v1/references", &empty)
	if empty.References == nil || len(empty.References) != 0 {
		t.Errorf("empty buffer: got=%v, want []", empty.References)
	}

	ctx := context.Background()
	for _, text := range []string{"romans eight twenty eight", "psalm twenty three one", "romans eight twenty eight"} {
		runner.Handle(ctx, ingest.Fragment{Text: text, Final: true})
	}

	var refs struct {
		References []string `json:"references"`
		Latest     string   `json:"latest"`
	}
	getJSON(t, ts.URL+"/api/v1/references", &refs)
	want := []string{"Psalm 23:1", "Romans 8:28"}
	if !slices.Equal(refs.References, want) || refs.Latest != "Romans 8:28" {
		t.Errorf("references: got=%+v, want %v with latest Romans 8:28", refs, want)
	}

	var tr struct {
		Transcript []string `json:"transcript"`
	}
	getJSON(t, ts.URL+"/transcript", &tr)
	if !slices.Equal(tr.Transcript, want) {
		t.Errorf("transcript: got=%v, want %v", tr.Transcript, want)
	}
}

func TestVerses(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, nil)

	tests := []struct {
		name       string
		ref        string
		wantStatus int
		wantText   string
	}{
		{"single", "John 3:16", http.StatusOK, "John 3:16 — For God so loved the world"},
		{"lower case", "john 3:16", http.StatusOK, "John 3:16 — For God so loved the world"},
		{"range", "John 3:16-17", http.StatusOK, "John 3:16 — For God so loved the world\nJohn 3:17 — For God sent not his Son"},
		{"missing", "Genesis 1:1", http.StatusNotFound, ""},
		{"malformed", "John three", http.StatusBadRequest, ""},
		{"unknown book", "Hezekiah 1:1", http.StatusBadRequest, ""},
		{"empty", "", http.StatusBadRequest, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out struct {
				Text  string `json:"text"`
				Error string `json:"error"`
			}
			status := getJSON(t, ts.URL+"/api/v1/verses?ref="+urlEscape(tc.ref), &out)
			if status != tc.wantStatus {
				t.Fatalf("status: got=%d, want %d (error %q)", status, tc.wantStatus, out.Error)
			}
			if out.Text != tc.wantText {
				t.Errorf("text:\n got=%q\nwant %q", out.Text, tc.wantText)
			}
		})
	}
}

func urlEscape(s string) string {
	return strings.NewReplacer(" ", "%20", ":", "%3A").Replace(s)
}

func TestVerses_NoStore(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, func(c *api.Config) { c.Verses = nil })
	var out map[string]string
	if status := getJSON(t, ts.URL+"/api/v1/verses?ref=John%203:16", &out); status != http.StatusServiceUnavailable {
		t.Errorf("status: got=%d, want 503", status)
	}
}

func TestBooks(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, nil)
	var out struct {
		Canon string `json:"canon"`
		Books []struct {
			Name     string `json:"name"`
			OSIS     string `json:"osis"`
			Chapters []int  `json:"chapters"`
		} `json:"books"`
	}
	getJSON(t, ts.URL+"/api/v1/books", &out)
	if out.Canon != canon.NameProtestant {
		t.Errorf("canon: got=%q, want %q", out.Canon, canon.NameProtestant)
	}
	if len(out.Books) != 66 {
		t.Fatalf("books: got=%d, want 66", len(out.Books))
	}
	if b := out.Books[0]; b.Name != "Genesis" || b.OSIS != "Gen" || len(b.Chapters) != 50 {
		t.Errorf("first book: got=%s/%s with %d chapters", b.Name, b.OSIS, len(b.Chapters))
	}
}

func TestPage(t *testing.T) {
	t.Parallel()
	ts, runner := newServer(t, nil)
	runner.Handle(context.Background(), ingest.Fragment{Text: "john three sixteen", Final: true})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	page := string(body)

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type: got=%q", resp.Header.Get("Content-Type"))
	}
	for _, want := range []string{`content="2"`, "<li>John 3:16</li>", "<title>John 3:16 · lectern</title>"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}

	// Unknown paths are not swallowed by the page route.
	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope: got=%d, want 404", resp.StatusCode)
	}
}

func TestMounts(t *testing.T) {
	t.Parallel()
	mounted := func(name string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, name)
		})
	}
	hc := health.New(health.Checker{Name: "canon", Check: func(context.Context) error { return nil }})
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ts, _ := newServer(t, func(c *api.Config) {
		c.Broadcast = mounted("ws")
		c.MCP = mounted("mcp")
		c.Metrics = mounted("metrics")
		c.Health = hc
		c.Observe = m
	})

	for path, want := range map[string]string{
		"/ws":      "ws",
		"/mcp":     "mcp",
		"/metrics": "metrics",
		"/readyz":  `"status":"ok"`,
		"/healthz": `"status":"ok"`,
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if !strings.Contains(string(body), want) {
			t.Errorf("GET %s: got=%q, want it to contain %q", path, body, want)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if h, ok := md.Data.(metricdata.Histogram[float64]); ok && md.Name == "lectern.http.request.duration" {
				for _, dp := range h.DataPoints {
					count += dp.Count
				}
			}
		}
	}
	if count != 5 {
		t.Errorf("recorded requests: got=%d, want 5", count)
	}
}
