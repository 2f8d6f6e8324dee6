// Package endpoint implements utterance endpointing: deciding, block by
// block, when a spoken utterance has ended in a live audio stream.
//
// The detector is deliberately simple — a running silence accumulator over
// per-block L2 energy. A block at or above the energy threshold counts as
// speech and resets the accumulator to zero; a full return to voiced audio
// therefore cancels any partial silence run (this is not a sliding window).
// Once the accumulated contiguous silence reaches the configured duration,
// the utterance is complete. Every fed block, silent or voiced, is appended
// to the utterance buffer, so trailing silence remains part of the utterance.
//
// [Recorder] wraps an [Endpointer] and a blocking [audio.Source] into a
// capture loop that produces complete [audio.Utterance] values.
package endpoint

import (
	"fmt"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

// Defaults match a 16 kHz push-to-talk microphone setup.
const (
	DefaultSampleRate      = 16000
	DefaultBlockSize       = 1024
	DefaultEnergyThreshold = 1000
	DefaultSilenceDuration = 1500 * time.Millisecond
)

// Decision is the result of feeding one block to an [Endpointer].
type Decision int

const (
	// Continue means the utterance is still in progress; feed more blocks.
	Continue Decision = iota

	// Complete means the required contiguous silence has been observed and
	// the utterance has ended.
	Complete
)

// String returns the human-readable name of the decision.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Config holds the endpointing parameters.
type Config struct {
	// SampleRate is the capture rate in Hz. Default: 16000.
	SampleRate int

	// BlockSize is the expected number of samples per block. Default: 1024.
	BlockSize int

	// EnergyThreshold is the minimum block L2 energy that counts as speech.
	// A block with energy exactly equal to the threshold is speech; the
	// threshold is an exclusive lower bound for silence. Default: 1000.
	EnergyThreshold float64

	// SilenceDuration is the contiguous low-energy duration required to
	// declare end of speech. Default: 1.5s.
	SilenceDuration time.Duration
}

// withDefaults returns cfg with zero-value fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.EnergyThreshold == 0 {
		c.EnergyThreshold = DefaultEnergyThreshold
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	return c
}

// validate reports the first problem with an already-defaulted config.
func (c Config) validate() error {
	if c.SampleRate < 0 {
		return fmt.Errorf("endpoint: sample rate %d must be positive", c.SampleRate)
	}
	if c.BlockSize < 0 {
		return fmt.Errorf("endpoint: block size %d must be positive", c.BlockSize)
	}
	if c.EnergyThreshold < 0 {
		return fmt.Errorf("endpoint: energy threshold %v must not be negative", c.EnergyThreshold)
	}
	if c.SilenceDuration < 0 {
		return fmt.Errorf("endpoint: silence duration %v must not be negative", c.SilenceDuration)
	}
	return nil
}

// Endpointer accumulates audio blocks and detects end of speech.
//
// An Endpointer is owned by a single capture loop; it is not safe for
// concurrent use.
type Endpointer struct {
	cfg Config

	silence time.Duration
	samples []int16
}

// New creates an Endpointer. Zero-value config fields are replaced with
// defaults; invalid values return an error.
func New(cfg Config) (*Endpointer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Endpointer{cfg: cfg}, nil
}

// Feed appends block to the utterance buffer and returns the endpointing
// decision. Voiced blocks (energy ≥ threshold) reset the silence accumulator;
// silent blocks advance it by the block's duration. Complete is returned on
// the block whose silence contribution reaches the configured duration.
//
// There is no built-in maximum utterance length: an indefinitely voiced
// stream never completes. Callers needing bounded latency must cancel the
// capture loop themselves.
func (e *Endpointer) Feed(block audio.Block) Decision {
	e.samples = append(e.samples, block.Samples...)

	if block.Energy() >= e.cfg.EnergyThreshold {
		e.silence = 0
		return Continue
	}

	e.silence += time.Duration(len(block.Samples)) * time.Second / time.Duration(e.cfg.SampleRate)
	if e.silence >= e.cfg.SilenceDuration {
		return Complete
	}
	return Continue
}

// SampleRate returns the effective capture rate after defaulting.
func (e *Endpointer) SampleRate() int { return e.cfg.SampleRate }

// BufferedSamples returns the number of samples accumulated so far.
func (e *Endpointer) BufferedSamples() int { return len(e.samples) }

// Take hands off the accumulated buffer as an [audio.Utterance] with the
// given sequence number and resets the endpointer for the next utterance.
// Ownership of the sample storage transfers to the returned utterance.
func (e *Endpointer) Take(seq uint64) *audio.Utterance {
	u := audio.NewUtterance(seq, e.cfg.SampleRate, e.samples)
	e.samples = nil
	e.silence = 0
	return u
}

// Reset discards any partially accumulated buffer and silence state.
// Used when the capture source stops before an utterance completes — partial
// utterances are never flushed.
func (e *Endpointer) Reset() {
	e.samples = nil
	e.silence = 0
}
