// Package ingest feeds transcript text into the recognizer and hands newly
// confirmed references to the publisher.
//
// A [Source] produces [Fragment] values: lines typed or piped on stdin, or
// the partial and final results of a streaming speech-to-text session. A
// [Runner] filters noise, recognises each fragment and publishes every
// reference that changed the recency buffer.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Fragment is one piece of transcript text.
type Fragment struct {
	Text string

	// Final is false for interim STT hypotheses.
	Final bool

	// Source names the producing [Source].
	Source string

	At time.Time
}

// Source produces transcript fragments.
type Source interface {
	// Name labels the source in logs and metrics.
	Name() string

	// Run calls emit for every fragment until the input is exhausted, in
	// which case it returns nil, or ctx is cancelled. emit is never called
	// concurrently.
	Run(ctx context.Context, emit func(context.Context, Fragment)) error
}

// LineSource reads newline separated transcript text, one final fragment per
// non-blank line.
type LineSource struct {
	name string
	r    io.Reader
}

var _ Source = (*LineSource)(nil)

// NewLineSource returns a LineSource reading r. name defaults to "stdin".
func NewLineSource(name string, r io.Reader) *LineSource {
	if name == "" {
		name = "stdin"
	}
	return &LineSource{name: name, r: r}
}

// Name implements [Source].
func (s *LineSource) Name() string { return s.name }

// Run implements [Source]. It returns as soon as ctx is cancelled; the
// goroutine blocked reading s.r exits once that read returns.
func (s *LineSource) Run(ctx context.Context, emit func(context.Context, Fragment)) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		defer func() {
			errc <- sc.Err()
			close(lines)
		}()
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return fmt.Errorf("ingest: read %s: %w", s.name, err)
				}
				return ctx.Err()
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			emit(ctx, Fragment{Text: line, Final: true, Source: s.name, At: time.Now()})
		}
	}
}
