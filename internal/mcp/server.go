// Package mcp exposes lectern to Model Context Protocol clients. Three tools
// are served:
//
//   - "recognize_references" runs spoken text through the recognizer and
//     publishes every new reference, like any other transcript source.
//   - "recent_references" returns the recency buffer, oldest first.
//   - "lookup_verse" returns the text of a canonical reference from the
//     offline bible, when one is configured.
//
// The server speaks the streamable HTTP transport through [Server.Handler] and
// can be connected to any other transport through [Server.SDK].
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/lectern/internal/ingest"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/scripture"
	"github.com/MrWong99/lectern/internal/versetext"
)

// Source is the fragment source recorded for text recognised over MCP.
const Source = "mcp"

// ErrNoBible is returned by lookup_verse when no verse store is configured.
var ErrNoBible = errors.New("mcp: no bible configured")

// Option configures a [Server].
type Option func(*Server)

// WithVerses enables lookup_verse against store.
func WithVerses(store versetext.Store) Option {
	return func(s *Server) { s.verses = store }
}

// WithMetrics counts tool calls on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server is lectern's MCP tool server.
type Server struct {
	runner  *ingest.Runner
	verses  versetext.Store
	metrics *observe.Metrics
	version string
	sdk     *mcpsdk.Server
}

// NewServer returns a Server whose tools act on runner.
func NewServer(runner *ingest.Runner, opts ...Option) *Server {
	s := &Server{runner: runner, version: "dev"}
	for _, o := range opts {
		o(s)
	}

	s.sdk = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "lectern", Version: s.version}, nil)
	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        "recognize_references",
		Description: "Find scripture references in spoken or transcribed text (e.g. \"john chapter three verse sixteen\"). New references are published to the display like any other transcript.",
	}, instrument(s, "recognize_references", s.recognize))
	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        "recent_references",
		Description: "List the most recently recognised scripture references, oldest first. The last entry is the reference currently on display.",
	}, instrument(s, "recent_references", s.recent))
	if s.verses != nil {
		mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
			Name:        "lookup_verse",
			Description: "Return the text of a canonical scripture reference such as \"John 3:16\" or \"Genesis 2:8-9\".",
		}, instrument(s, "lookup_verse", s.lookupVerse))
	}
	return s
}

// SDK returns the underlying go-sdk server.
func (s *Server) SDK() *mcpsdk.Server { return s.sdk }

// Handler returns a streamable HTTP handler serving s.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.sdk }, nil)
}

// instrument wraps a typed tool handler with a span, a tool call counter and
// a debug log line.
func instrument[In, Out any](s *Server, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		ctx, span := observe.StartSpan(ctx, "mcp."+name)
		defer span.End()

		start := time.Now()
		res, out, err := h(ctx, req, in)
		status := "ok"
		if err != nil {
			status = "error"
			observe.Fail(span, err)
		}
		if s.metrics != nil {
			s.metrics.RecordToolCall(ctx, name, status)
			s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(observe.Attr("tool", name)))
		}
		observe.Logger(ctx).Debug("mcp: tool call", "tool", name, "status", status, "duration", time.Since(start), "error", err)
		return res, out, err
	}
}

// ─── Tools ───────────────────────────────────────────────────────────────────

type recognizeInput struct {
	Text string `json:"text" jsonschema:"transcribed speech to search for references"`
}

// Detection is one reference found by recognize_references.
type Detection struct {
	Reference string `json:"reference"`
	Heard     string `json:"heard" jsonschema:"the words the reference was recognised from"`
	Change    string `json:"change" jsonschema:"added, moved or unchanged relative to the recent list"`
}

type recognizeOutput struct {
	References []string    `json:"references"`
	Detections []Detection `json:"detections"`
}

func (s *Server) recognize(ctx context.Context, _ *mcpsdk.CallToolRequest, in recognizeInput) (*mcpsdk.CallToolResult, recognizeOutput, error) {
	out := recognizeOutput{References: []string{}, Detections: []Detection{}}
	if strings.TrimSpace(in.Text) == "" {
		return nil, out, errors.New("text must not be empty")
	}
	dets := s.runner.Handle(ctx, ingest.Fragment{Text: in.Text, Final: true, Source: Source, At: time.Now()})
	for _, d := range dets {
		ref := d.Reference.String()
		out.References = append(out.References, ref)
		out.Detections = append(out.Detections, Detection{Reference: ref, Heard: d.Text, Change: d.Change.String()})
	}
	return nil, out, nil
}

type recentInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"return at most this many of the newest references; 0 returns all"`
}

type recentOutput struct {
	References []string `json:"references"`
	Latest     string   `json:"latest,omitempty"`
}

func (s *Server) recent(_ context.Context, _ *mcpsdk.CallToolRequest, in recentInput) (*mcpsdk.CallToolResult, recentOutput, error) {
	if in.Limit < 0 {
		return nil, recentOutput{}, fmt.Errorf("limit must not be negative, got %d", in.Limit)
	}
	refs := s.runner.Recognizer().Recent()
	if in.Limit > 0 && len(refs) > in.Limit {
		refs = refs[len(refs)-in.Limit:]
	}
	out := recentOutput{References: refs}
	if out.References == nil {
		out.References = []string{}
	}
	if n := len(refs); n > 0 {
		out.Latest = refs[n-1]
	}
	return nil, out, nil
}

type lookupInput struct {
	Reference string `json:"reference" jsonschema:"canonical reference such as John 3:16 or Genesis 2:8-9"`
}

type lookupOutput struct {
	Reference string            `json:"reference"`
	Text      string            `json:"text"`
	Verses    []versetext.Verse `json:"verses"`
}

func (s *Server) lookupVerse(ctx context.Context, _ *mcpsdk.CallToolRequest, in lookupInput) (*mcpsdk.CallToolResult, lookupOutput, error) {
	if s.verses == nil {
		return nil, lookupOutput{}, ErrNoBible
	}
	ref, err := scripture.ParseReference(in.Reference)
	if err != nil {
		return nil, lookupOutput{}, err
	}
	book, ok := s.runner.Recognizer().Table().Lookup(ref.Book)
	if !ok {
		return nil, lookupOutput{}, fmt.Errorf("unknown book %q", ref.Book)
	}
	ref.Book = book.Name

	verses, err := s.verses.Lookup(ctx, ref)
	if err != nil {
		return nil, lookupOutput{}, err
	}
	return nil, lookupOutput{
		Reference: ref.String(),
		Text:      versetext.Render(ctx, s.verses, ref.String()),
		Verses:    verses,
	}, nil
}
