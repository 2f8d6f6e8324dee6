// Package mock provides test doubles for the audio.Source and audio.Player
// interfaces.
//
// Use Source to feed a scripted sequence of blocks through the capture loop
// and Player to record what PCM a pipeline stage attempted to play, without
// touching real devices.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
)

// Source is a mock implementation of audio.Source that replays a scripted
// block sequence. After the last block it returns io.EOF (or ReadErr when set).
type Source struct {
	mu sync.Mutex

	// Blocks is the sequence returned by successive ReadBlock calls.
	Blocks []audio.Block

	// Rate is returned by SampleRate.
	Rate int

	// ReadErr, if non-nil, is returned once the scripted blocks are exhausted
	// instead of io.EOF.
	ReadErr error

	// Reads counts ReadBlock invocations.
	Reads int

	// Closed reports whether Close was called.
	Closed bool

	next int
}

var _ audio.Source = (*Source)(nil)

// ReadBlock implements audio.Source.
func (s *Source) ReadBlock(ctx context.Context) (audio.Block, error) {
	if err := ctx.Err(); err != nil {
		return audio.Block{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.next >= len(s.Blocks) {
		if s.ReadErr != nil {
			return audio.Block{}, s.ReadErr
		}
		return audio.Block{}, io.EOF
	}
	b := s.Blocks[s.next]
	s.next++
	return b, nil
}

// SampleRate implements audio.Source.
func (s *Source) SampleRate() int { return s.Rate }

// Close implements audio.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Player is a mock implementation of audio.Player that records every PCM
// chunk it is asked to play.
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play after draining the channel.
	PlayErr error

	// Played accumulates all PCM bytes received across Play calls.
	Played [][]byte

	// PlayCalls counts Play invocations.
	PlayCalls int

	// LastSampleRate records the sample rate of the most recent Play call.
	LastSampleRate int

	// Closed reports whether Close was called.
	Closed bool
}

var _ audio.Player = (*Player)(nil)

// Play implements audio.Player. It drains pcm fully, recording each chunk.
func (p *Player) Play(ctx context.Context, pcm <-chan []byte, sampleRate int) error {
	p.mu.Lock()
	p.PlayCalls++
	p.LastSampleRate = sampleRate
	p.mu.Unlock()

	for chunk := range pcm {
		p.mu.Lock()
		p.Played = append(p.Played, chunk)
		p.mu.Unlock()
		if err := ctx.Err(); err != nil {
			audio.Drain(pcm)
			return err
		}
	}
	return p.PlayErr
}

// Close implements audio.Player.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}
