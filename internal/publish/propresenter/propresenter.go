// Package propresenter shows references on a ProPresenter stage display.
//
// ProPresenter 7 accepts API requests two ways. The TCP/IP interface takes one
// JSON request object per CRLF-terminated line; the HTTP interface takes the
// same request as a plain REST call. Both set the stage message via
// v1/stage/message. Every publish opens a fresh connection, because the
// operator may restart ProPresenter at any time during a service.
package propresenter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/lectern/internal/publish"
)

// Mode selects the ProPresenter API transport.
type Mode string

const (
	ModeTCP  Mode = "tcp"
	ModeHTTP Mode = "http"
)

const stagePath = "v1/stage/message"

// DefaultTimeout bounds one publish, including connection setup.
const DefaultTimeout = 3 * time.Second

// request is the TCP/IP API envelope.
type request struct {
	URL     string `json:"url"`
	Method  string `json:"method"`
	Body    string `json:"body"`
	Chunked bool   `json:"chunked"`
}

// Option configures a [Sink].
type Option func(*Sink)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient sets the client used in HTTP mode.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.client = c }
}

// Sink publishes messages as ProPresenter stage messages.
type Sink struct {
	mode    Mode
	address string
	timeout time.Duration
	client  *http.Client
	dialer  net.Dialer
}

var _ publish.Sink = (*Sink)(nil)

// New returns a Sink talking to the ProPresenter API at address (host:port).
func New(mode Mode, address string, opts ...Option) (*Sink, error) {
	if mode != ModeTCP && mode != ModeHTTP {
		return nil, fmt.Errorf("propresenter: unknown mode %q", mode)
	}
	if address == "" {
		return nil, fmt.Errorf("propresenter: address is required")
	}
	s := &Sink{
		mode:    mode,
		address: address,
		timeout: DefaultTimeout,
		client:  http.DefaultClient,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name implements [publish.Sink].
func (s *Sink) Name() string { return "propresenter" }

// Publish implements [publish.Sink].
func (s *Sink) Publish(ctx context.Context, m publish.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if s.mode == ModeHTTP {
		return s.put(ctx, m.Display())
	}
	return s.send(ctx, m.Display())
}

// send writes one TCP/IP API request.
func (s *Sink) send(ctx context.Context, body string) error {
	line, err := json.Marshal(request{URL: stagePath, Method: http.MethodPut, Body: body})
	if err != nil {
		return fmt.Errorf("propresenter: encode request: %w", err)
	}
	line = append(line, '\r', '\n')

	conn, err := s.dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("propresenter: dial %s: %w", s.address, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	}
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("propresenter: write: %w", err)
	}
	return nil
}

// put issues the HTTP API request.
func (s *Sink) put(ctx context.Context, body string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("propresenter: encode body: %w", err)
	}
	url := "http://" + s.address + "/" + stagePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("propresenter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("propresenter: put: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("propresenter: put: unexpected status %s", resp.Status)
	}
	return nil
}
