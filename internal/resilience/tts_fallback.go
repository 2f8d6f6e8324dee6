package resilience

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

// TTSFallback wraps a [FallbackGroup] of TTS providers and itself implements
// [tts.Provider].
//
// Failover only covers the initial Synthesize call; once a provider has
// returned its audio channel, a mid-stream failure is surfaced to the caller
// as a prematurely closed channel rather than retried, because partial
// audio may already have been played.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]

	mu   sync.Mutex
	last tts.Provider
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a TTS provider with failover support.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
		last:  primary,
	}
}

// AddFallback registers a fallback TTS provider.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Synthesize implements tts.Provider with automatic failover.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		ch, err := p.Synthesize(ctx, req)
		if err == nil {
			f.mu.Lock()
			f.last = p
			f.mu.Unlock()
		}
		return ch, err
	})
}

// OutputRate implements tts.Provider. It reports the rate of the provider
// that served the most recent successful Synthesize call, so the playback
// path stays consistent with the audio actually being produced.
func (f *TTSFallback) OutputRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last.OutputRate()
}
