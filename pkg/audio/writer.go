package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// WriterPlayer is a [Player] that writes raw little-endian 16-bit PCM to an
// io.Writer instead of an output device: a file to keep replies for later, or
// a pipe into an external playback tool (`parley | aplay -f S16_LE -r 24000`).
type WriterPlayer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Player = (*WriterPlayer)(nil)

// NewWriterPlayer wraps w. The player does not own w; closing the underlying
// writer stays with the caller.
func NewWriterPlayer(w io.Writer) *WriterPlayer {
	return &WriterPlayer{w: w}
}

// Discard returns a WriterPlayer that throws all audio away. Useful for
// headless deployments where replies are consumed as text.
func Discard() *WriterPlayer {
	return &WriterPlayer{w: io.Discard}
}

// Play copies PCM chunks to the writer until pcm is closed or ctx is
// cancelled. The channel is always drained so the producer never leaks.
func (p *WriterPlayer) Play(ctx context.Context, pcm <-chan []byte, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		select {
		case chunk, ok := <-pcm:
			if !ok {
				return nil
			}
			if _, err := p.w.Write(chunk); err != nil {
				go Drain(pcm)
				return fmt.Errorf("audio: write pcm: %w", err)
			}
		case <-ctx.Done():
			go Drain(pcm)
			return ctx.Err()
		}
	}
}

// Close is a no-op; the underlying writer belongs to the caller.
func (p *WriterPlayer) Close() error { return nil }
