// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (the OpenAI audio API or
// ElevenLabs) behind a single call that synthesises one complete reply and
// streams the resulting PCM to the caller as it arrives. The channel design
// lets playback begin before synthesis finishes without exposing partial
// synthesis semantics to the turn pipeline.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile describes a synthesis voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g., "onyx").
	ID string

	// Instructions are free-form style directions for providers that accept
	// them (accent, tone, pacing). Ignored by providers that do not.
	Instructions string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 0 = provider default).
	SpeedFactor float64
}

// Request carries one complete reply to synthesise.
type Request struct {
	// Text is the reply to speak.
	Text string

	// Voice selects and styles the synthesis voice.
	Voice VoiceProfile

	// SampleRate is the desired PCM output rate in Hz. Providers with a
	// fixed output rate may ignore this; callers should use
	// [Provider.OutputRate] for playback.
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize sends req to the backend and returns a channel that emits
	// raw little-endian 16-bit PCM byte chunks as they are synthesised. The
	// channel is closed by the implementation when synthesis finishes or
	// ctx is cancelled; the caller must drain it to avoid goroutine leaks.
	//
	// A non-nil error is returned only when synthesis cannot be started.
	// Mid-stream failures are signalled by closing the channel early;
	// callers should check ctx.Err() to distinguish cancellation.
	Synthesize(ctx context.Context, req Request) (<-chan []byte, error)

	// OutputRate returns the sample rate in Hz of the PCM this provider
	// actually emits.
	OutputRate() int
}
