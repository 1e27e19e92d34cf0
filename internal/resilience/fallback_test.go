package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGroup_Call(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		failing  map[string]bool
		wantFrom string
		wantErr  bool
	}{
		{name: "primary succeeds", wantFrom: "deepgram"},
		{name: "primary fails", failing: map[string]bool{"deepgram": true}, wantFrom: "vosk"},
		{name: "all fail", failing: map[string]bool{"deepgram": true, "vosk": true}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := NewGroup[string](BreakerConfig{MaxFailures: 3}).
				Add("deepgram", "deepgram").
				Add("vosk", "vosk")

			out, from, err := Call(context.Background(), g, func(_ context.Context, v string) (string, error) {
				if tc.failing[v] {
					return "", errSink
				}
				return "session:" + v, nil
			})
			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errSink) {
					t.Fatalf("err: got=%v, want ErrAllFailed wrapping errSink", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if from != tc.wantFrom || out != "session:"+tc.wantFrom {
				t.Errorf("got=(%q, %q), want from %q", out, from, tc.wantFrom)
			}
		})
	}
}

func TestGroup_SkipsOpenEntry(t *testing.T) {
	t.Parallel()
	g := NewGroup[string](BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}).
		Add("primary", "primary").
		Add("secondary", "secondary")
	ctx := context.Background()

	var calls []string
	record := func(_ context.Context, v string) error {
		calls = append(calls, v)
		if v == "primary" {
			return errSink
		}
		return nil
	}
	for range 3 {
		if err := g.Do(ctx, record); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}

	want := []string{"primary", "secondary", "primary", "secondary", "secondary"}
	if len(calls) != len(want) {
		t.Fatalf("calls: got=%v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls: got=%v, want %v", calls, want)
		}
	}
	if g.Breaker("primary").State() != StateOpen {
		t.Error("primary breaker should be open")
	}
	if g.Breaker("missing") != nil {
		t.Error("Breaker(missing) should be nil")
	}
}

func TestGroup_EmptyAndCancelled(t *testing.T) {
	t.Parallel()

	empty := NewGroup[int](BreakerConfig{})
	if err := empty.Do(context.Background(), func(context.Context, int) error { return nil }); !errors.Is(err, ErrAllFailed) {
		t.Errorf("empty group: got=%v, want ErrAllFailed", err)
	}

	g := NewGroup[int](BreakerConfig{}).Add("one", 1).Add("two", 2)
	ctx, cancel := context.WithCancel(context.Background())
	var seen []int
	err := g.Do(ctx, func(ctx context.Context, v int) error {
		seen = append(seen, v)
		cancel()
		return errSink
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got=%v, want context.Canceled", err)
	}
	if len(seen) != 1 {
		t.Errorf("entries tried after cancel: got=%v, want [1]", seen)
	}
	if g.Len() != 2 {
		t.Errorf("Len: got=%d, want 2", g.Len())
	}
}
