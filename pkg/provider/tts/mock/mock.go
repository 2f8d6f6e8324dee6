// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to feed controlled PCM through the playback
// path and to verify the reply text the turn pipeline sent, without a live
// synthesis backend.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

// Call records a single invocation of Synthesize.
type Call struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the PCM sequence emitted on the returned channel before it
	// is closed.
	Chunks [][]byte

	// Err, if non-nil, is returned by Synthesize instead of a channel.
	Err error

	// Rate is returned by OutputRate. Defaults to 24000 when zero.
	Rate int

	// Calls records every invocation in order.
	Calls []Call
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan []byte, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	err := p.Err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// OutputRate implements tts.Provider.
func (p *Provider) OutputRate() int {
	if p.Rate == 0 {
		return 24000
	}
	return p.Rate
}

// CallCount returns the number of recorded Synthesize invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
