// Package audio defines the core audio types and capture/playback interfaces
// for the Parley voice pipeline.
//
// The two primary abstractions are:
//
//   - [Source] — a blocking producer of fixed-size PCM sample blocks
//     (a microphone device, a WebSocket stream, or a pre-recorded buffer).
//   - [Player] — a local output sink that consumes synthesised PCM audio.
//
// Between them sit the value types that flow through the pipeline: [Block],
// the atomic capture unit, and [Utterance], one complete spoken segment with
// an explicit ownership and release contract.
//
// This package lives under pkg/ because external capture adapters (platform
// device drivers, alternative transports) are expected to implement [Source].
package audio

import (
	"context"
	"math"
	"time"
)

// Block is a fixed-length ordered sequence of signed 16-bit mono samples
// plus the rate they were captured at. Blocks are immutable once produced:
// the capture source creates them, the endpointer consumes and discards them.
type Block struct {
	// Samples holds the raw signed 16-bit PCM samples, one channel.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for STT-optimised capture).
	SampleRate int
}

// Energy returns the L2 norm (square root of the sum of squared samples) of
// the block. This is the volume measure used for endpointing: silence
// classification compares Energy against a configured threshold.
func (b Block) Energy() float64 {
	var sum float64
	for _, s := range b.Samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// Duration returns the wall-clock length of the block's audio.
func (b Block) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Utterance is one complete captured spoken segment: the concatenation of
// all blocks fed to the endpointer from start of speech to detected end,
// trailing silence included.
//
// An Utterance is exclusively owned by whichever component currently holds
// it — ownership transfers down the pipeline (recorder → turn engine), it is
// never shared. The final owner must call [Utterance.Release] when the
// samples are no longer needed so the backing storage can be reclaimed;
// Release is idempotent so deferred cleanup on error paths is safe.
type Utterance struct {
	seq        uint64
	sampleRate int
	samples    []int16
	released   bool
}

// NewUtterance wraps samples into an Utterance with the given monotonic
// sequence number. The caller hands over ownership of the samples slice and
// must not retain or mutate it afterwards.
func NewUtterance(seq uint64, sampleRate int, samples []int16) *Utterance {
	return &Utterance{
		seq:        seq,
		sampleRate: sampleRate,
		samples:    samples,
	}
}

// Seq returns the monotonic sequence number assigned at capture time.
func (u *Utterance) Seq() uint64 { return u.seq }

// SampleRate returns the capture sample rate in Hz.
func (u *Utterance) SampleRate() int { return u.sampleRate }

// Samples returns the backing sample buffer. Returns nil after Release.
// The caller must not mutate the returned slice.
func (u *Utterance) Samples() []int16 { return u.samples }

// Duration returns the wall-clock length of the utterance.
func (u *Utterance) Duration() time.Duration {
	if u.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.samples)) * time.Second / time.Duration(u.sampleRate)
}

// Release frees the backing sample storage. Safe to call more than once;
// subsequent calls are no-ops.
func (u *Utterance) Release() {
	u.released = true
	u.samples = nil
}

// Released reports whether Release has been called.
func (u *Utterance) Released() bool { return u.released }

// Source is a blocking producer of audio blocks at a fixed sample rate.
//
// Implementations wrap a platform capture device, a network stream, or a
// pre-recorded buffer. ReadBlock blocks until a full block is available or
// ctx is cancelled. A Source is read by exactly one capture loop at a time;
// implementations need not be safe for concurrent use.
type Source interface {
	// ReadBlock returns the next fixed-size block of captured audio.
	// It returns ctx.Err() if ctx is cancelled while waiting and [io.EOF]
	// (possibly wrapped) when the stream has ended.
	ReadBlock(ctx context.Context) (Block, error)

	// SampleRate returns the rate, in Hz, at which this source captures.
	SampleRate() int

	// Close stops capture and releases the underlying device or connection.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Player is a local audio output sink for synthesised speech.
//
// Play consumes raw little-endian 16-bit PCM byte chunks from pcm until the
// channel is closed, playing them at the given sample rate, and returns when
// playback finishes or ctx is cancelled. Implementations must drain pcm even
// on early return so the producing goroutine does not leak.
type Player interface {
	Play(ctx context.Context, pcm <-chan []byte, sampleRate int) error

	// Close releases the output device. Safe to call more than once.
	Close() error
}

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when the data from a streaming channel
// is no longer needed (e.g., a TTS audio channel after a playback error).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
