package resilience

import (
	"context"
	"log/slog"

	"github.com/MrWong99/lectern/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that opens sessions on the first healthy
// backend of an ordered list. Failover happens only when starting a stream;
// an established session is never migrated.
type STTFallback struct {
	group *Group[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an STTFallback with primary as the preferred backend.
func NewSTTFallback(primaryName string, primary stt.Provider, cfg BreakerConfig) *STTFallback {
	return &STTFallback{group: NewGroup[stt.Provider](cfg).Add(primaryName, primary)}
}

// AddFallback appends a backend tried after the ones already registered.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.Add(name, p)
}

// StartStream opens a session on the first backend that accepts it.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	sess, name, err := Call(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("stt session started", "provider", name)
	return sess, nil
}
