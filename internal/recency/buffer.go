// Package recency keeps the distinct references confirmed during a session in
// the order they were last confirmed.
//
// A [Buffer] is an insertion-ordered set: recording a reference that is
// already present moves it to the tail instead of duplicating it. The head is
// the least recently confirmed entry and, when a capacity is configured, the
// first to be evicted. All methods are safe for concurrent use; the ingest
// loop records while HTTP and MCP handlers read snapshots.
package recency

import (
	"container/list"
	"sync"
)

// Change describes what [Buffer.Record] did with a reference.
type Change int

const (
	// Unchanged means the reference already was the most recent entry.
	Unchanged Change = iota

	// Added means the reference was not present and has been appended.
	Added

	// Moved means the reference was present and has been moved to the tail.
	Moved
)

// String returns the lowercase name of c, used as a metric attribute.
func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Moved:
		return "moved"
	}
	return "unknown"
}

// Option configures a [Buffer].
type Option func(*Buffer)

// WithCapacity bounds the buffer to n entries. Zero or a negative value means
// unbounded, which is the default.
func WithCapacity(n int) Option {
	return func(b *Buffer) {
		b.capacity = max(n, 0)
	}
}

// Buffer is a mutex-guarded, recency-ordered set of reference strings.
type Buffer struct {
	mu       sync.Mutex
	order    *list.List // of string, head = oldest
	index    map[string]*list.Element
	capacity int
}

// New returns an empty Buffer.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Record marks ref as the most recently confirmed entry. A present entry is
// moved to the tail; an absent one is appended after evicting the head when
// the buffer is full.
func (b *Buffer) Record(ref string) Change {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.index[ref]; ok {
		if e == b.order.Back() {
			return Unchanged
		}
		b.order.MoveToBack(e)
		return Moved
	}

	if b.capacity > 0 && b.order.Len() >= b.capacity {
		head := b.order.Front()
		delete(b.index, head.Value.(string))
		b.order.Remove(head)
	}
	b.index[ref] = b.order.PushBack(ref)
	return Added
}

// Snapshot returns a copy of the entries from least to most recent.
func (b *Buffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, b.order.Len())
	for e := b.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

// Latest returns the most recently confirmed entry.
func (b *Buffer) Latest() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e := b.order.Back(); e != nil {
		return e.Value.(string), true
	}
	return "", false
}

// Capacity returns the configured bound, or 0 when unbounded.
func (b *Buffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}
