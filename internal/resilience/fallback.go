package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [Group] failed or was
// skipped because its breaker was open.
var ErrAllFailed = errors.New("resilience: all entries failed")

type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds an ordered list of interchangeable values, each behind its own
// [Breaker]. Calls try the entries in order and stop at the first success.
//
// Entries must be added before the group is shared between goroutines.
type Group[T any] struct {
	cfg     BreakerConfig
	entries []entry[T]
}

// NewGroup returns an empty group. cfg is the template for every entry's
// breaker; its Name is replaced by the entry name.
func NewGroup[T any](cfg BreakerConfig) *Group[T] {
	return &Group[T]{cfg: cfg}
}

// Add appends an entry. Entries are tried in the order they were added.
func (g *Group[T]) Add(name string, v T) *Group[T] {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, entry[T]{name: name, value: v, breaker: NewBreaker(cfg)})
	return g
}

// Len returns the number of entries.
func (g *Group[T]) Len() int { return len(g.entries) }

// Breaker returns the breaker guarding the named entry, or nil.
func (g *Group[T]) Breaker(name string) *Breaker {
	for i := range g.entries {
		if g.entries[i].name == name {
			return g.entries[i].breaker
		}
	}
	return nil
}

// Do runs fn against each entry in order until one succeeds.
func (g *Group[T]) Do(ctx context.Context, fn func(context.Context, T) error) error {
	_, _, err := Call(ctx, g, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// Call runs fn against each entry of g in order and returns the first
// successful result together with the name of the entry that produced it.
// A cancelled ctx stops the walk immediately.
func Call[T, R any](ctx context.Context, g *Group[T], fn func(context.Context, T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	if len(g.entries) == 0 {
		return zero, "", fmt.Errorf("%w: group is empty", ErrAllFailed)
	}
	for i := range g.entries {
		e := &g.entries[i]
		var out R
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, e.value)
			return err
		})
		if err == nil {
			return out, e.name, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, "", ctxErr
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping entry with open circuit", "name", e.name)
			continue
		}
		if i < len(g.entries)-1 {
			slog.Warn("entry failed, trying next", "name", e.name, "error", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
